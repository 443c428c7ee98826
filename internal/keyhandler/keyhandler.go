// Package keyhandler is the entry point for raw scan-code events.
//
// Handler filters events down to supported key releases, routes gesture
// codes through the proximity gate when a sensor is present, and performs
// the final dispatch: a mode change or an action invocation, followed by a
// short haptic pulse.
//
// All decisions run on a single looper. HandleKeyEvent waits for the intake
// verdict but never for gating, so callers are not blocked for the length of
// a proximity check.
package keyhandler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gestured/internal/action"
	"gestured/internal/dispatch"
	"gestured/internal/gate"
	"gestured/internal/looper"
	"gestured/internal/scancode"
)

// DefaultPulse is the haptic pulse length after a dispatch.
const DefaultPulse = 50 * time.Millisecond

// KeyAction is the edge of a key event.
type KeyAction int

const (
	ActionDown KeyAction = iota
	ActionUp
)

func (a KeyAction) String() string {
	if a == ActionUp {
		return "up"
	}
	return "down"
}

// KeyEvent is one raw key transition.
type KeyEvent struct {
	ScanCode scancode.Code
	Action   KeyAction
	Time     time.Time
	Device   string
}

// Catalog answers which gesture codes the device defines.
type Catalog interface {
	Contains(code scancode.Code) bool
}

// ModeController changes system interruption and ringer modes.
type ModeController interface {
	SetInterruptionFilter(ctx context.Context, f dispatch.Filter) error
	SetRingerMode(ctx context.Context, m dispatch.RingerMode) error
}

// ActionInvoker runs abstract actions.
type ActionInvoker interface {
	Invoke(ctx context.Context, ref action.Ref, fromKeyguard bool) error
}

// Haptics produces vibration feedback.
type Haptics interface {
	Pulse(ctx context.Context, d time.Duration) error
}

// Config wires a Handler.
type Config struct {
	Catalog  Catalog
	Resolver dispatch.Resolver
	Modes    ModeController
	Actions  ActionInvoker

	// Haptics is nil when the device has no vibrator.
	Haptics Haptics

	// Sensor is nil when the device has no proximity sensor; gesture codes
	// then dispatch immediately.
	Sensor   gate.Sensor
	WakeLock gate.WakeLock

	GateTimeout   time.Duration
	PulseDuration time.Duration

	// CallTimeout bounds each collaborator call.
	CallTimeout time.Duration

	Clock  gate.Clock
	Logger *slog.Logger

	// OnDispatch, if set, observes every dispatch decision on the looper.
	OnDispatch func(KeyEvent, dispatch.Decision)
}

// Stats counts intake outcomes.
type Stats struct {
	Ignored     uint64 // press edges
	Unsupported uint64
	BusyDropped uint64
	Gated       uint64
	Immediate   uint64
	Dispatched  uint64
	Confirmed   uint64
	Discarded   uint64
	TimedOut    uint64
}

// Handler is the event intake.
type Handler struct {
	cfg    Config
	loop   *looper.Looper
	gate   *gate.Gate
	logger *slog.Logger

	// stats is only touched on the looper.
	stats Stats

	// final holds the counters once the looper has stopped.
	mu    sync.Mutex
	final Stats
}

// catalogDefaults resolves every gesture to its catalog default.
type catalogDefaults struct {
	catalog interface {
		Default(code scancode.Code) action.Ref
	}
}

func (c catalogDefaults) Resolve(code scancode.Code) action.Ref {
	return c.catalog.Default(code)
}

// noActions resolves every gesture to no action.
type noActions struct{}

func (noActions) Resolve(scancode.Code) action.Ref { return "" }

// New creates a Handler. Call Run to start processing.
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PulseDuration <= 0 {
		cfg.PulseDuration = DefaultPulse
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 2 * time.Second
	}
	if cfg.Resolver == nil {
		if d, ok := cfg.Catalog.(interface {
			Default(code scancode.Code) action.Ref
		}); ok {
			cfg.Resolver = catalogDefaults{catalog: d}
		} else {
			cfg.Resolver = noActions{}
		}
	}

	h := &Handler{
		cfg:    cfg,
		loop:   looper.New(cfg.Logger),
		logger: cfg.Logger,
	}
	if cfg.Sensor != nil {
		h.gate = gate.New(cfg.Sensor, cfg.WakeLock, h.loop, gate.Options{
			Timeout:    cfg.GateTimeout,
			Clock:      cfg.Clock,
			Logger:     cfg.Logger.With("component", "gate"),
			OnResolved: h.onResolved,
		})
	}
	return h
}

// Run processes events until ctx is done. Stats stays readable after it
// returns.
func (h *Handler) Run(ctx context.Context) {
	h.loop.Run(ctx)

	// The looper ran on this goroutine and has stopped, so stats is ours.
	h.mu.Lock()
	h.final = h.stats
	h.mu.Unlock()
}

// Sync waits for all work queued so far, including gate callbacks that
// have already been posted.
func (h *Handler) Sync() error {
	return h.loop.Sync()
}

// Stats returns a snapshot of the intake counters. After Run has returned
// it reports the final counts.
func (h *Handler) Stats() Stats {
	var s Stats
	if err := h.loop.Call(func() { s = h.stats }); err != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.final
	}
	return s
}

// HandleKeyEvent takes one raw event and reports whether its scan code is
// handled by gestured. A false result means the caller should let the event
// through to default handling. It never returns an error; failures only
// mean the event is not dispatched.
func (h *Handler) HandleKeyEvent(ev KeyEvent) bool {
	if ev.Action != ActionUp {
		_ = h.loop.Post(func() { h.stats.Ignored++ })
		return false
	}

	var accepted bool
	if err := h.loop.Call(func() { accepted = h.intake(ev) }); err != nil {
		h.logger.Debug("event dropped", "scan_code", int(ev.ScanCode), "error", err)
		return false
	}
	return accepted
}

// Supported reports whether code is a mode code or a catalog gesture.
func (h *Handler) Supported(code scancode.Code) bool {
	if scancode.IsMode(code) {
		return true
	}
	return h.cfg.Catalog != nil && h.cfg.Catalog.Contains(code)
}

func (h *Handler) intake(ev KeyEvent) bool {
	if !h.Supported(ev.ScanCode) {
		h.stats.Unsupported++
		return false
	}

	log := h.logger.With("scan_code", int(ev.ScanCode))

	if h.gate != nil && h.gate.Busy() {
		h.stats.BusyDropped++
		log.Debug("dropping event while a gesture is pending")
		return true
	}

	if h.needsGating(ev.ScanCode) {
		h.stats.Gated++
		h.gate.Submit(ev.ScanCode, ev, func(p gate.Pending) {
			h.dispatch(p.Payload.(KeyEvent))
		})
		return true
	}

	h.stats.Immediate++
	h.dispatch(ev)
	return true
}

func (h *Handler) needsGating(code scancode.Code) bool {
	return h.gate != nil && scancode.IsGesture(code)
}

func (h *Handler) onResolved(_ gate.Pending, o gate.Outcome) {
	switch o {
	case gate.Confirmed:
		h.stats.Confirmed++
	case gate.Discarded:
		h.stats.Discarded++
	case gate.TimedOut:
		h.stats.TimedOut++
	}
}

// dispatch performs the side effects for a confirmed event.
func (h *Handler) dispatch(ev KeyEvent) {
	d := dispatch.Decide(ev.ScanCode, h.cfg.Resolver)
	if h.cfg.OnDispatch != nil {
		h.cfg.OnDispatch(ev, d)
	}

	log := h.logger.With("scan_code", int(ev.ScanCode), "decision", d.Kind.String())

	var handled bool
	switch d.Kind {
	case dispatch.Ignore:
		log.Debug("gesture mapped to no action")
		return
	case dispatch.ModeChange:
		handled = h.applyMode(log, d)
	case dispatch.InvokeAction:
		handled = h.invoke(log, d.Action)
	}
	if !handled {
		return
	}

	h.stats.Dispatched++
	h.pulse(log)
}

// applyMode and invoke report false when there is no collaborator to call.
// A call that fails still counts as a dispatch.
func (h *Handler) applyMode(log *slog.Logger, d dispatch.Decision) bool {
	if h.cfg.Modes == nil {
		log.Warn("no mode controller configured")
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CallTimeout)
	defer cancel()

	if d.Filter != 0 {
		if err := h.cfg.Modes.SetInterruptionFilter(ctx, d.Filter); err != nil {
			log.Warn("set interruption filter failed", "filter", d.Filter.String(), "error", err)
		} else {
			log.Info("interruption filter set", "filter", d.Filter.String())
		}
	}
	if d.Ringer != 0 {
		if err := h.cfg.Modes.SetRingerMode(ctx, d.Ringer); err != nil {
			log.Warn("set ringer mode failed", "ringer", d.Ringer.String(), "error", err)
		} else {
			log.Info("ringer mode set", "ringer", d.Ringer.String())
		}
	}
	return true
}

func (h *Handler) invoke(log *slog.Logger, ref action.Ref) bool {
	if h.cfg.Actions == nil {
		log.Warn("no action invoker configured")
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CallTimeout)
	defer cancel()

	if err := h.cfg.Actions.Invoke(ctx, ref, false); err != nil {
		log.Warn("invoke action failed", "action", string(ref), "error", err)
		return true
	}
	log.Info("action invoked", "action", string(ref))
	return true
}

func (h *Handler) pulse(log *slog.Logger) {
	if h.cfg.Haptics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CallTimeout)
	defer cancel()

	if err := h.cfg.Haptics.Pulse(ctx, h.cfg.PulseDuration); err != nil {
		log.Debug("haptic pulse failed", "error", err)
	}
}
