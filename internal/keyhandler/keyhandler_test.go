package keyhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestured/internal/action"
	"gestured/internal/dispatch"
	"gestured/internal/gate/gatetest"
	"gestured/internal/gesture"
	"gestured/internal/prefs"
	"gestured/internal/scancode"
)

const maxRange = 5.0

// recorder implements every outbound collaborator and records calls in
// order.
type recorder struct {
	mu      sync.Mutex
	calls   []string
	filters []dispatch.Filter
	ringers []dispatch.RingerMode
	actions []action.Ref
	pulses  []time.Duration
	fail    error
}

func (r *recorder) SetInterruptionFilter(_ context.Context, f dispatch.Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "filter:"+f.String())
	r.filters = append(r.filters, f)
	return r.fail
}

func (r *recorder) SetRingerMode(_ context.Context, m dispatch.RingerMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "ringer:"+m.String())
	r.ringers = append(r.ringers, m)
	return r.fail
}

func (r *recorder) Invoke(_ context.Context, ref action.Ref, fromKeyguard bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fromKeyguard {
		r.calls = append(r.calls, "invoke-keyguard:"+string(ref))
	} else {
		r.calls = append(r.calls, "invoke:"+string(ref))
	}
	r.actions = append(r.actions, ref)
	return r.fail
}

func (r *recorder) Pulse(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "pulse")
	r.pulses = append(r.pulses, d)
	return r.fail
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fixture struct {
	t       *testing.T
	h       *Handler
	rec     *recorder
	store   *prefs.MemoryStore
	sensor  *gatetest.Sensor
	wake    *gatetest.WakeLock
	clock   *gatetest.Clock
	decided chan dispatch.Decision
}

type fixtureOpts struct {
	noSensor  bool
	noHaptics bool
}

func newFixture(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()

	catalog := gesture.New("test", []gesture.Definition{
		{ScanCode: 50, DefaultAction: "torch"},
		{ScanCode: 250, DefaultAction: "wake"},
		{ScanCode: 251, DefaultAction: "camera"},
	}, nil)

	f := &fixture{
		t:       t,
		rec:     &recorder{},
		store:   prefs.NewMemoryStore(),
		sensor:  gatetest.NewSensor(maxRange),
		wake:    &gatetest.WakeLock{},
		clock:   &gatetest.Clock{},
		decided: make(chan dispatch.Decision, 16),
	}

	cfg := Config{
		Catalog:  catalog,
		Resolver: prefs.NewResolver(f.store, catalog, "", nil),
		Modes:    f.rec,
		Actions:  f.rec,
		WakeLock: f.wake,
		Clock:    f.clock,
		OnDispatch: func(_ KeyEvent, d dispatch.Decision) {
			f.decided <- d
		},
	}
	if !o.noSensor {
		cfg.Sensor = f.sensor
	}
	if !o.noHaptics {
		cfg.Haptics = f.rec
	}
	f.h = New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return f
}

func up(code scancode.Code) KeyEvent {
	return KeyEvent{ScanCode: code, Action: ActionUp, Time: time.Now()}
}

func down(code scancode.Code) KeyEvent {
	return KeyEvent{ScanCode: code, Action: ActionDown, Time: time.Now()}
}

func (f *fixture) waitDecision() dispatch.Decision {
	f.t.Helper()
	select {
	case d := <-f.decided:
		require.NoError(f.t, f.h.Sync())
		return d
	case <-time.After(5 * time.Second):
		f.t.Fatal("no dispatch happened")
		return dispatch.Decision{}
	}
}

func (f *fixture) settle() {
	f.t.Helper()
	time.Sleep(50 * time.Millisecond)
	require.NoError(f.t, f.h.Sync())
}

func TestPressEdgeIgnored(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	assert.False(t, f.h.HandleKeyEvent(down(scancode.AlarmsOnly)))
	assert.False(t, f.h.HandleKeyEvent(down(250)))
	f.settle()

	assert.Empty(t, f.rec.snapshot())
	assert.Empty(t, f.sensor.Subscriptions())
	assert.Equal(t, uint64(2), f.h.Stats().Ignored)
}

func TestUnsupportedCodeNotHandled(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	assert.False(t, f.h.HandleKeyEvent(up(42)))
	assert.False(t, f.h.HandleKeyEvent(up(606)))
	f.settle()

	assert.Empty(t, f.rec.snapshot())
	assert.Empty(t, f.sensor.Subscriptions())
	assert.Equal(t, uint64(2), f.h.Stats().Unsupported)
}

func TestModeCodesDispatchImmediately(t *testing.T) {
	tests := []struct {
		code  scancode.Code
		calls []string
	}{
		{scancode.TotalSilence, []string{"filter:none", "pulse"}},
		{scancode.AlarmsOnly, []string{"filter:alarms", "pulse"}},
		{scancode.PriorityOnly, []string{"filter:priority", "ringer:normal", "pulse"}},
		{scancode.None, []string{"filter:all", "ringer:normal", "pulse"}},
		{scancode.Vibrate, []string{"ringer:vibrate", "pulse"}},
		{scancode.Ring, []string{"ringer:normal", "pulse"}},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			f := newFixture(t, fixtureOpts{})

			require.True(t, f.h.HandleKeyEvent(up(tt.code)))
			d := f.waitDecision()

			assert.Equal(t, dispatch.ModeChange, d.Kind)
			assert.Equal(t, tt.calls, f.rec.snapshot())
			assert.Empty(t, f.rec.actions, "mode codes never invoke actions")
			assert.Empty(t, f.sensor.Subscriptions(), "mode codes are never gated")
		})
	}
}

func TestAlarmsOnlyScenario(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	require.True(t, f.h.HandleKeyEvent(up(601)))
	f.waitDecision()

	assert.Equal(t, []dispatch.Filter{dispatch.FilterAlarms}, f.rec.filters)
	assert.Empty(t, f.rec.ringers)
	assert.Equal(t, []time.Duration{DefaultPulse}, f.rec.pulses)
}

func TestPriorityOnlyScenario(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	require.True(t, f.h.HandleKeyEvent(up(602)))
	f.waitDecision()

	assert.Equal(t, []dispatch.Filter{dispatch.FilterPriority}, f.rec.filters)
	assert.Equal(t, []dispatch.RingerMode{dispatch.RingerNormal}, f.rec.ringers)
	assert.Len(t, f.rec.pulses, 1)
}

func TestGestureWithoutSensorDispatchesSynchronously(t *testing.T) {
	f := newFixture(t, fixtureOpts{noSensor: true})

	require.True(t, f.h.HandleKeyEvent(up(250)))
	// Dispatch ran inside HandleKeyEvent's looper call; no wait needed.
	assert.Equal(t, []string{"invoke:wake", "pulse"}, f.rec.snapshot())
	assert.Empty(t, f.clock.Timers())
	assert.Equal(t, uint64(1), f.h.Stats().Immediate)
}

func TestGestureConfirmedAtMaxRange(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	require.True(t, f.h.HandleKeyEvent(up(250)))
	assert.Empty(t, f.rec.snapshot(), "gated gestures wait for the sensor")
	assert.True(t, f.wake.Held())

	require.True(t, f.sensor.Emit(maxRange))
	d := f.waitDecision()

	assert.Equal(t, dispatch.InvokeAction, d.Kind)
	assert.Equal(t, []string{"invoke:wake", "pulse"}, f.rec.snapshot())
	assert.False(t, f.wake.Held())
	assert.Equal(t, 0, f.sensor.ActiveCount())

	stats := f.h.Stats()
	assert.Equal(t, uint64(1), stats.Gated)
	assert.Equal(t, uint64(1), stats.Confirmed)
}

func TestGestureDiscardedWhenNear(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	require.True(t, f.h.HandleKeyEvent(up(250)))
	require.True(t, f.sensor.Emit(0))
	require.Eventually(t, func() bool { return f.h.Stats().Discarded == 1 }, 5*time.Second, 5*time.Millisecond)

	assert.Empty(t, f.rec.snapshot())
	assert.False(t, f.wake.Held())
}

func TestGestureTimesOut(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	require.True(t, f.h.HandleKeyEvent(up(250)))
	require.Equal(t, 1, f.clock.Advance())
	require.Eventually(t, func() bool { return f.h.Stats().TimedOut == 1 }, 5*time.Second, 5*time.Millisecond)

	assert.Empty(t, f.rec.snapshot())
	assert.Equal(t, 0, f.sensor.ActiveCount())
	assert.False(t, f.wake.Held())

	// A reading after the timeout changes nothing.
	f.sensor.Emit(maxRange)
	f.settle()
	assert.Empty(t, f.rec.snapshot())
}

func TestBusyDrop(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	require.True(t, f.h.HandleKeyEvent(up(250)))
	assert.True(t, f.h.HandleKeyEvent(up(251)), "busy-dropped events are still accepted")
	assert.True(t, f.h.HandleKeyEvent(up(scancode.Ring)), "mode codes are dropped while busy too")

	assert.Len(t, f.sensor.WaitSubscriptions(1), 1)
	assert.Len(t, f.clock.Timers(), 1)
	assert.Empty(t, f.rec.snapshot())

	f.sensor.Emit(maxRange)
	f.waitDecision()
	f.settle()

	assert.Equal(t, []string{"invoke:wake", "pulse"}, f.rec.snapshot())
	assert.Equal(t, uint64(2), f.h.Stats().BusyDropped)

	// The gate is free again.
	require.True(t, f.h.HandleKeyEvent(up(251)))
	assert.Len(t, f.sensor.WaitSubscriptions(2), 2)
}

func TestNullOverrideIsIgnored(t *testing.T) {
	f := newFixture(t, fixtureOpts{noSensor: true})
	require.NoError(t, f.store.SetString(prefs.Key("", 50), string(action.Null)))

	require.True(t, f.h.HandleKeyEvent(up(50)))
	d := f.waitDecision()

	assert.Equal(t, dispatch.Ignore, d.Kind)
	assert.Empty(t, f.rec.snapshot(), "no pulse and no invocation")
}

func TestActionNullOverrideIsIgnored(t *testing.T) {
	f := newFixture(t, fixtureOpts{noSensor: true})
	require.NoError(t, f.store.SetString(prefs.Key("", 50), "ACTION_NULL"))

	require.True(t, f.h.HandleKeyEvent(up(50)))
	d := f.waitDecision()

	assert.Equal(t, dispatch.Ignore, d.Kind)
	assert.Empty(t, f.rec.snapshot(), "no pulse and no invocation")
	assert.Equal(t, uint64(0), f.h.Stats().Dispatched)
}

func TestOverrideReplacesDefault(t *testing.T) {
	f := newFixture(t, fixtureOpts{noSensor: true})
	require.NoError(t, f.store.SetString(prefs.Key("", 250), "music"))

	require.True(t, f.h.HandleKeyEvent(up(250)))
	f.waitDecision()
	assert.Equal(t, []action.Ref{"music"}, f.rec.actions)

	require.NoError(t, f.store.Delete(prefs.Key("", 250)))
	require.True(t, f.h.HandleKeyEvent(up(250)))
	f.waitDecision()
	assert.Equal(t, []action.Ref{"music", "wake"}, f.rec.actions)
}

func TestNoVibratorSkipsPulse(t *testing.T) {
	f := newFixture(t, fixtureOpts{noSensor: true, noHaptics: true})

	require.True(t, f.h.HandleKeyEvent(up(scancode.Vibrate)))
	f.waitDecision()
	assert.Equal(t, []string{"ringer:vibrate"}, f.rec.snapshot())
}

func TestCollaboratorErrorsDoNotSurface(t *testing.T) {
	f := newFixture(t, fixtureOpts{noSensor: true})
	f.rec.fail = errors.New("service unavailable")

	assert.True(t, f.h.HandleKeyEvent(up(scancode.PriorityOnly)))
	f.waitDecision()
	assert.True(t, f.h.HandleKeyEvent(up(250)))
	f.waitDecision()

	assert.Equal(t, []string{
		"filter:priority", "ringer:normal", "pulse",
		"invoke:wake", "pulse",
	}, f.rec.snapshot())
}

func TestEmptyCatalogKeepsModeCodes(t *testing.T) {
	rec := &recorder{}
	h := New(Config{
		Catalog:  gesture.Empty(),
		Resolver: prefs.NewResolver(nil, gesture.Empty(), "", nil),
		Modes:    rec,
		Actions:  rec,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	assert.False(t, h.HandleKeyEvent(up(250)))
	assert.True(t, h.HandleKeyEvent(up(scancode.AlarmsOnly)))
	assert.Equal(t, []string{"filter:alarms"}, rec.snapshot())
}

func TestHandleAfterStopReturnsFalse(t *testing.T) {
	h := New(Config{Catalog: gesture.Empty()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.Run(ctx)

	assert.False(t, h.HandleKeyEvent(up(scancode.AlarmsOnly)))
}

func TestStatsSurviveStop(t *testing.T) {
	rec := &recorder{}
	h := New(Config{
		Catalog: gesture.Empty(),
		Modes:   rec,
		Haptics: rec,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()

	require.True(t, h.HandleKeyEvent(up(scancode.AlarmsOnly)))
	require.True(t, h.HandleKeyEvent(up(scancode.Vibrate)))
	require.Equal(t, uint64(2), h.Stats().Dispatched)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	st := h.Stats()
	assert.Equal(t, uint64(2), st.Immediate)
	assert.Equal(t, uint64(2), st.Dispatched)
}

func TestMissingCollaboratorsDoNotCountAsDispatched(t *testing.T) {
	rec := &recorder{}
	catalog := gesture.New("test", []gesture.Definition{{ScanCode: 250, DefaultAction: "wake"}}, nil)
	h := New(Config{Catalog: catalog, Haptics: rec})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	require.True(t, h.HandleKeyEvent(up(scancode.Ring)))
	require.True(t, h.HandleKeyEvent(up(250)))

	st := h.Stats()
	assert.Equal(t, uint64(2), st.Immediate)
	assert.Equal(t, uint64(0), st.Dispatched)
	assert.Empty(t, rec.snapshot(), "nothing was applied, so no pulse")
}

func TestNilResolverFallsBackToCatalogDefaults(t *testing.T) {
	rec := &recorder{}
	catalog := gesture.New("test", []gesture.Definition{{ScanCode: 251, DefaultAction: "camera"}}, nil)
	h := New(Config{Catalog: catalog, Actions: rec})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	require.NotPanics(t, func() {
		require.True(t, h.HandleKeyEvent(up(251)))
	})
	assert.Equal(t, []action.Ref{"camera"}, rec.actions)
	assert.Equal(t, uint64(1), h.Stats().Dispatched)
}
