package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"gestured/internal/gate"
)

const (
	sensorProxyDest      = "net.hadess.SensorProxy"
	sensorProxyPath      = dbus.ObjectPath("/net/hadess/SensorProxy")
	sensorProxyInterface = "net.hadess.SensorProxy"
)

// Proximity readings. iio-sensor-proxy only reports near or far, so far is
// the maximum range.
const (
	ProximityNear float32 = 0
	ProximityFar  float32 = 1
)

// DefaultSettle is how long SensorProxy waits for a change signal after
// claiming before it reads the property directly.
const DefaultSettle = 30 * time.Millisecond

// SensorProxy is a gate.Sensor backed by iio-sensor-proxy on the system bus.
type SensorProxy struct {
	conn   Conn
	obj    dbus.BusObject
	settle time.Duration
	logger *slog.Logger
}

var _ gate.Sensor = (*SensorProxy)(nil)

// NewSensorProxy returns a proximity sensor on conn. settle <= 0 uses
// DefaultSettle.
func NewSensorProxy(conn Conn, settle time.Duration, logger *slog.Logger) *SensorProxy {
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SensorProxy{
		conn:   conn,
		obj:    conn.Object(sensorProxyDest, sensorProxyPath),
		settle: settle,
		logger: logger,
	}
}

// Available reports whether the service exposes a proximity sensor.
func (s *SensorProxy) Available() (bool, error) {
	v, err := s.obj.GetProperty(sensorProxyInterface + ".HasProximity")
	if err != nil {
		return false, fmt.Errorf("query HasProximity: %w", err)
	}
	has, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("HasProximity has type %s", v.Signature())
	}
	return has, nil
}

// MaxRange implements gate.Sensor.
func (s *SensorProxy) MaxRange() float32 {
	return ProximityFar
}

// SubscribeOnce implements gate.Sensor. It claims the sensor, delivers the
// first ProximityNear change (or the property value once the settle delay
// passes) and releases the claim when ctx is cancelled.
func (s *SensorProxy) SubscribeOnce(ctx context.Context, _ gate.SamplingRate) (<-chan float32, error) {
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(sensorProxyPath),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, sensorProxyInterface),
	}
	if err := s.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("match proximity signal: %w", err)
	}
	signals := make(chan *dbus.Signal, 8)
	s.conn.Signal(signals)

	cleanup := func() {
		s.conn.RemoveSignal(signals)
		if err := s.conn.RemoveMatchSignal(match...); err != nil {
			s.logger.Debug("remove proximity match failed", "error", err)
		}
	}

	if call := s.obj.CallWithContext(ctx, sensorProxyInterface+".ClaimProximity", 0); call.Err != nil {
		cleanup()
		return nil, fmt.Errorf("claim proximity: %w", call.Err)
	}

	out := make(chan float32, 1)
	go func() {
		defer func() {
			release, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if call := s.obj.CallWithContext(release, sensorProxyInterface+".ReleaseProximity", 0); call.Err != nil {
				s.logger.Debug("release proximity failed", "error", call.Err)
			}
			cleanup()
		}()

		settle := time.NewTimer(s.settle)
		defer settle.Stop()

		sent := false
		deliver := func(near bool) {
			if !sent {
				out <- nearToReading(near)
				sent = true
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-signals:
				if near, ok := proximityFromSignal(sig); ok {
					deliver(near)
				}
			case <-settle.C:
				v, err := s.obj.GetProperty(sensorProxyInterface + ".ProximityNear")
				if err != nil {
					s.logger.Debug("read ProximityNear failed", "error", err)
					continue
				}
				if near, ok := v.Value().(bool); ok {
					deliver(near)
				}
			}
		}
	}()
	return out, nil
}

func nearToReading(near bool) float32 {
	if near {
		return ProximityNear
	}
	return ProximityFar
}

// proximityFromSignal extracts ProximityNear from a PropertiesChanged signal.
func proximityFromSignal(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Path != sensorProxyPath || sig.Name != propertiesInterface+".PropertiesChanged" {
		return false, false
	}
	if len(sig.Body) < 2 {
		return false, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != sensorProxyInterface {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed["ProximityNear"]
	if !ok {
		return false, false
	}
	near, ok := v.Value().(bool)
	return near, ok
}

// FixedSensor reports the same reading for every subscription. It stands in
// for real hardware in the simulator.
type FixedSensor struct {
	Reading float32
}

// MaxRange implements gate.Sensor.
func (FixedSensor) MaxRange() float32 {
	return ProximityFar
}

// SubscribeOnce implements gate.Sensor.
func (f FixedSensor) SubscribeOnce(context.Context, gate.SamplingRate) (<-chan float32, error) {
	ch := make(chan float32, 1)
	ch <- f.Reading
	return ch, nil
}
