package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"gestured/internal/dispatch"
)

// ---------------------------------------------------------------------------
// Bus fakes
// ---------------------------------------------------------------------------

type call struct {
	method string
	args   []interface{}
}

// fakeObject implements the BusObject methods the adapters use. Anything
// else panics through the nil embedded interface.
type fakeObject struct {
	dbus.BusObject

	mu      sync.Mutex
	calls   []call
	errs    map[string]error
	bodies  map[string][]interface{}
	props   map[string]dbus.Variant
	propErr error
}

func newFakeObject() *fakeObject {
	return &fakeObject{
		errs:   map[string]error{},
		bodies: map[string][]interface{}{},
		props:  map[string]dbus.Variant{},
	}
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, call{method: method, args: args})
	return &dbus.Call{Method: method, Err: o.errs[method], Body: o.bodies[method]}
}

func (o *fakeObject) GetProperty(p string) (dbus.Variant, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.propErr != nil {
		return dbus.Variant{}, o.propErr
	}
	v, ok := o.props[p]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return v, nil
}

func (o *fakeObject) Calls() []call {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]call(nil), o.calls...)
}

func (o *fakeObject) called(method string) bool {
	for _, c := range o.Calls() {
		if c.method == method {
			return true
		}
	}
	return false
}

type emitted struct {
	path dbus.ObjectPath
	name string
	args []interface{}
}

type fakeConn struct {
	mu      sync.Mutex
	objects map[dbus.ObjectPath]*fakeObject
	emitted []emitted
	emitErr error
	matches int
	signals []chan<- *dbus.Signal
}

func newFakeConn() *fakeConn {
	return &fakeConn{objects: map[dbus.ObjectPath]*fakeObject{}}
}

func (c *fakeConn) object(path dbus.ObjectPath) *fakeObject {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[path]
	if !ok {
		o = newFakeObject()
		c.objects[path] = o
	}
	return o
}

func (c *fakeConn) Object(_ string, path dbus.ObjectPath) dbus.BusObject {
	return c.object(path)
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, emitted{path, name, values})
	return nil
}

func (c *fakeConn) AddMatchSignal(...dbus.MatchOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches++
	return nil
}

func (c *fakeConn) RemoveMatchSignal(...dbus.MatchOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matches--
	return nil
}

func (c *fakeConn) Signal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, ch)
}

func (c *fakeConn) RemoveSignal(ch chan<- *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.signals {
		if s == ch {
			c.signals = append(c.signals[:i], c.signals[i+1:]...)
			return
		}
	}
}

func (c *fakeConn) broadcast(sig *dbus.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.signals {
		ch <- sig
	}
}

func (c *fakeConn) state() (matches, signals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matches, len(c.signals)
}

func proximitySignal(near bool) *dbus.Signal {
	return &dbus.Signal{
		Path: sensorProxyPath,
		Name: propertiesInterface + ".PropertiesChanged",
		Body: []interface{}{
			sensorProxyInterface,
			map[string]dbus.Variant{"ProximityNear": dbus.MakeVariant(near)},
			[]string{},
		},
	}
}

func receive(t *testing.T, ch <-chan float32) float32 {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("no proximity reading")
		return -1
	}
}

// ---------------------------------------------------------------------------
// Proximity
// ---------------------------------------------------------------------------

func TestSensorProxyAvailable(t *testing.T) {
	conn := newFakeConn()
	conn.object(sensorProxyPath).props[sensorProxyInterface+".HasProximity"] = dbus.MakeVariant(true)

	s := NewSensorProxy(conn, 0, nil)
	ok, err := s.Available()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ProximityFar, s.MaxRange())
}

func TestSensorProxyDeliversSignal(t *testing.T) {
	conn := newFakeConn()
	obj := conn.object(sensorProxyPath)
	s := NewSensorProxy(conn, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	readings, err := s.SubscribeOnce(ctx, 0)
	require.NoError(t, err)
	assert.True(t, obj.called(sensorProxyInterface+".ClaimProximity"))

	conn.broadcast(proximitySignal(true))
	assert.Equal(t, ProximityNear, receive(t, readings))

	cancel()
	require.Eventually(t, func() bool {
		m, sigs := conn.state()
		return m == 0 && sigs == 0 && obj.called(sensorProxyInterface+".ReleaseProximity")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSensorProxyReadsPropertyAfterSettle(t *testing.T) {
	conn := newFakeConn()
	conn.object(sensorProxyPath).props[sensorProxyInterface+".ProximityNear"] = dbus.MakeVariant(false)
	s := NewSensorProxy(conn, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	readings, err := s.SubscribeOnce(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, ProximityFar, receive(t, readings))
}

func TestSensorProxyClaimError(t *testing.T) {
	conn := newFakeConn()
	conn.object(sensorProxyPath).errs[sensorProxyInterface+".ClaimProximity"] = errors.New("no sensor")
	s := NewSensorProxy(conn, 0, nil)

	_, err := s.SubscribeOnce(context.Background(), 0)
	require.Error(t, err)
	m, sigs := conn.state()
	assert.Equal(t, 0, m)
	assert.Equal(t, 0, sigs)
}

func TestProximityFromSignal(t *testing.T) {
	near, ok := proximityFromSignal(proximitySignal(true))
	assert.True(t, ok)
	assert.True(t, near)

	other := proximitySignal(true)
	other.Body[0] = "net.hadess.Other"
	_, ok = proximityFromSignal(other)
	assert.False(t, ok)

	noProp := proximitySignal(true)
	noProp.Body[1] = map[string]dbus.Variant{"LightLevel": dbus.MakeVariant(1.0)}
	_, ok = proximityFromSignal(noProp)
	assert.False(t, ok)

	_, ok = proximityFromSignal(nil)
	assert.False(t, ok)
}

// ---------------------------------------------------------------------------
// Wake lock
// ---------------------------------------------------------------------------

func TestInhibitorAcquireRelease(t *testing.T) {
	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[1])

	conn := newFakeConn()
	obj := conn.object(logindPath)
	obj.bodies[logindManage+".Inhibit"] = []interface{}{dbus.UnixFD(fds[0])}

	inh := NewInhibitor(conn, "gestured", "proximity check")
	require.NoError(t, inh.Acquire())
	assert.True(t, inh.Held())

	calls := obj.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []interface{}{"sleep", "gestured", "proximity check", "block"}, calls[0].args)

	require.NoError(t, inh.Acquire(), "second acquire is a no-op")
	assert.Len(t, obj.Calls(), 1)

	require.NoError(t, inh.Release())
	assert.False(t, inh.Held())
	assert.Error(t, unix.Close(fds[0]), "descriptor should already be closed")

	assert.ErrorIs(t, inh.Release(), ErrNotHeld)
}

func TestInhibitorAcquireError(t *testing.T) {
	conn := newFakeConn()
	conn.object(logindPath).errs[logindManage+".Inhibit"] = errors.New("denied")

	inh := NewInhibitor(conn, "gestured", "test")
	assert.Error(t, inh.Acquire())
	assert.False(t, inh.Held())
}

// ---------------------------------------------------------------------------
// Modes and actions
// ---------------------------------------------------------------------------

func TestProfileFor(t *testing.T) {
	cases := map[dispatch.RingerMode]string{
		dispatch.RingerNormal:  "full",
		dispatch.RingerVibrate: "quiet",
		dispatch.RingerSilent:  "silent",
	}
	for mode, want := range cases {
		got, err := ProfileFor(mode)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ProfileFor(0)
	assert.Error(t, err)
}

func TestFeedbackModesSetsProfile(t *testing.T) {
	conn := newFakeConn()
	m := NewFeedbackModes(conn, true, FilterTarget{}, nil)

	require.NoError(t, m.SetRingerMode(context.Background(), dispatch.RingerVibrate))

	calls := conn.object(feedbackPath).Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, propertiesInterface+".Set", calls[0].method)
	assert.Equal(t, []interface{}{feedbackInterface, "Profile", dbus.MakeVariant("quiet")}, calls[0].args)

	// No filter target configured: log only.
	require.NoError(t, m.SetInterruptionFilter(context.Background(), dispatch.FilterAlarms))
}

func TestFeedbackModesFilterTarget(t *testing.T) {
	conn := newFakeConn()
	target := FilterTarget{Dest: "org.example.Modes", Path: "/org/example/Modes", Method: "org.example.Modes.SetFilter"}
	m := NewFeedbackModes(conn, false, target, nil)

	require.NoError(t, m.SetInterruptionFilter(context.Background(), dispatch.FilterPriority))
	calls := conn.object("/org/example/Modes").Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "org.example.Modes.SetFilter", calls[0].method)
	assert.Equal(t, []interface{}{"priority"}, calls[0].args)

	conn.object("/org/example/Modes").errs["org.example.Modes.SetFilter"] = errors.New("boom")
	assert.Error(t, m.SetInterruptionFilter(context.Background(), dispatch.FilterNone))

	// Feedbackd disabled: ringer changes are log only.
	require.NoError(t, m.SetRingerMode(context.Background(), dispatch.RingerSilent))
	assert.Empty(t, conn.object(feedbackPath).Calls())
}

func TestFeedbackModesWithoutBus(t *testing.T) {
	m := NewFeedbackModes(nil, true, FilterTarget{Dest: "x"}, nil)
	assert.NoError(t, m.SetRingerMode(context.Background(), dispatch.RingerNormal))
	assert.NoError(t, m.SetInterruptionFilter(context.Background(), dispatch.FilterAll))
}

func TestSignalInvokerEmits(t *testing.T) {
	conn := newFakeConn()
	inv := NewSignalInvoker(conn, "/org/gestured/Gestures")

	require.NoError(t, inv.Invoke(context.Background(), "camera", false))
	require.Len(t, conn.emitted, 1)
	assert.Equal(t, dbus.ObjectPath("/org/gestured/Gestures"), conn.emitted[0].path)
	assert.Equal(t, ActionsInterface+".Invoke", conn.emitted[0].name)
	assert.Equal(t, []interface{}{"camera", false}, conn.emitted[0].args)

	conn.emitErr = errors.New("disconnected")
	assert.Error(t, inv.Invoke(context.Background(), "camera", false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, inv.Invoke(ctx, "camera", false), context.Canceled)
}

// ---------------------------------------------------------------------------
// Vibrator
// ---------------------------------------------------------------------------

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0600))
	}
}

func readAttr(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestVibratorLEDClass(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "activate", "duration", "state")

	v, err := OpenVibrator(dir)
	require.NoError(t, err)
	require.NoError(t, v.Pulse(context.Background(), 50*time.Millisecond))

	assert.Equal(t, "50", readAttr(t, dir, "duration"))
	assert.Equal(t, "1", readAttr(t, dir, "activate"))
}

func TestVibratorTimedOutput(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "enable")

	v, err := ProbeVibrator(dir)
	require.NoError(t, err)
	require.NoError(t, v.Pulse(context.Background(), 50*time.Millisecond))
	assert.Equal(t, "50", readAttr(t, dir, "enable"))
}

func TestVibratorMissing(t *testing.T) {
	_, err := OpenVibrator(t.TempDir())
	assert.ErrorIs(t, err, ErrNoVibrator)
}

func TestFixedSensor(t *testing.T) {
	s := FixedSensor{Reading: ProximityNear}
	ch, err := s.SubscribeOnce(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, ProximityNear, receive(t, ch))
	assert.Equal(t, ProximityFar, s.MaxRange())
}
