package metrics

import (
	"time"

	"gestured/internal/dispatch"
	"gestured/internal/keyhandler"
)

// Gestured holds the daemon's metrics.
type Gestured struct {
	registry *Registry
	started  time.Time

	EventsIgnored     *Counter
	EventsUnsupported *Counter
	EventsBusyDropped *Counter
	EventsGated       *Counter
	EventsImmediate   *Counter
	Dispatched        *Counter
	GateConfirmed     *Counter
	GateDiscarded     *Counter
	GateTimedOut      *Counter

	ModeChanges *Counter
	Actions     *Counter

	InputDevices  *Gauge
	ProximityGate *Gauge
	UptimeSeconds *Gauge

	DispatchLatency *Histogram
}

// NewGestured registers the daemon metrics in registry.
func NewGestured(registry *Registry) *Gestured {
	r := registry
	m := &Gestured{
		registry: r,
		started:  time.Now(),

		EventsIgnored:     r.RegisterCounter("events_ignored_total", "Key press edges ignored", nil),
		EventsUnsupported: r.RegisterCounter("events_unsupported_total", "Releases with a scan code that is neither a mode code nor a catalog gesture", nil),
		EventsBusyDropped: r.RegisterCounter("events_busy_dropped_total", "Supported releases dropped while a gesture awaited proximity", nil),
		EventsGated:       r.RegisterCounter("events_gated_total", "Gesture releases handed to the proximity gate", nil),
		EventsImmediate:   r.RegisterCounter("events_immediate_total", "Releases dispatched without a proximity check", nil),
		Dispatched:        r.RegisterCounter("dispatched_total", "Decisions that produced a side effect", nil),
		GateConfirmed:     r.RegisterCounter("gate_confirmed_total", "Pending gestures confirmed by a far reading", nil),
		GateDiscarded:     r.RegisterCounter("gate_discarded_total", "Pending gestures discarded by a near reading or sensor error", nil),
		GateTimedOut:      r.RegisterCounter("gate_timed_out_total", "Pending gestures discarded because no reading arrived in time", nil),

		ModeChanges: r.RegisterCounter("mode_changes_total", "Mode switch decisions", nil),
		Actions:     r.RegisterCounter("actions_total", "Action invocation decisions", nil),

		InputDevices:  r.RegisterGauge("input_devices", "Input devices being read", nil),
		ProximityGate: r.RegisterGauge("proximity_gate", "1 when gestures are proximity gated", nil),
		UptimeSeconds: r.RegisterGauge("uptime_seconds", "Seconds since the daemon started", nil),

		DispatchLatency: r.RegisterHistogram("dispatch_latency_seconds", "Time from key release to dispatch, including the proximity check", nil, LatencyBuckets),
	}
	r.OnCollect(func() {
		m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
	})
	return m
}

// Registry returns the registry the metrics live in.
func (m *Gestured) Registry() *Registry {
	return m.registry
}

// CollectStats mirrors handler counters on every scrape. stats is called
// from the scraping goroutine.
func (m *Gestured) CollectStats(stats func() keyhandler.Stats) {
	m.registry.OnCollect(func() {
		m.Update(stats())
	})
}

// Update copies a handler stats snapshot into the counters.
func (m *Gestured) Update(st keyhandler.Stats) {
	m.EventsIgnored.Mirror(st.Ignored)
	m.EventsUnsupported.Mirror(st.Unsupported)
	m.EventsBusyDropped.Mirror(st.BusyDropped)
	m.EventsGated.Mirror(st.Gated)
	m.EventsImmediate.Mirror(st.Immediate)
	m.Dispatched.Mirror(st.Dispatched)
	m.GateConfirmed.Mirror(st.Confirmed)
	m.GateDiscarded.Mirror(st.Discarded)
	m.GateTimedOut.Mirror(st.TimedOut)
}

// ObserveDispatch records one dispatch decision. It has the signature of
// keyhandler.Config.OnDispatch.
func (m *Gestured) ObserveDispatch(ev keyhandler.KeyEvent, d dispatch.Decision) {
	switch d.Kind {
	case dispatch.ModeChange:
		m.ModeChanges.Inc()
	case dispatch.InvokeAction:
		m.Actions.Inc()
	}
	if !ev.Time.IsZero() {
		if lat := time.Since(ev.Time); lat >= 0 {
			m.DispatchLatency.ObserveDuration(lat)
		}
	}
}
