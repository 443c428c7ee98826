// Package gate implements proximity gating for screen-off gestures.
//
// A gated event is held while a single proximity reading is taken. The
// first of two things resolves it:
//   - a reading arrives: it is dispatched only if the reading equals the
//     sensor's maximum range (nothing near the screen), otherwise it is
//     dropped;
//   - the timeout fires: it is dropped.
//
// The gate holds at most one pending event. All methods must run on the
// same serialized context (see package looper); timer and sensor callbacks
// are posted back to it and checked against the pending token, so a late
// signal for an already resolved event has no effect.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gestured/internal/scancode"
)

// DefaultTimeout is how long the gate waits for a proximity reading.
const DefaultTimeout = 200 * time.Millisecond

// State is the gate state.
type State int

const (
	Idle State = iota
	AwaitingProximity
)

func (s State) String() string {
	if s == AwaitingProximity {
		return "awaiting-proximity"
	}
	return "idle"
}

// Outcome is how a pending event was resolved.
type Outcome int

const (
	Confirmed Outcome = iota + 1
	Discarded
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case Discarded:
		return "discarded"
	case TimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// SamplingRate selects how fast the sensor reports.
type SamplingRate int

const (
	SamplingNormal SamplingRate = iota
	SamplingFastest
)

// Sensor is a proximity sensor that can be read once.
type Sensor interface {
	// MaxRange is the value reported when nothing is near.
	MaxRange() float32

	// SubscribeOnce starts a single-shot subscription. The channel receives
	// at most one reading. Cancelling ctx unsubscribes.
	SubscribeOnce(ctx context.Context, rate SamplingRate) (<-chan float32, error)
}

// WakeLock keeps the platform awake while a reading is pending.
type WakeLock interface {
	Acquire() error
	Release() error
}

// Timer is a stoppable pending callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Poster queues work on the serialized context.
type Poster interface {
	Post(f func()) error
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Pending is the event held by the gate.
type Pending struct {
	ID        string
	Code      scancode.Code
	Payload   any
	CreatedAt time.Time
	Token     uint64
}

// Options tunes a Gate.
type Options struct {
	Timeout time.Duration
	Clock   Clock
	Logger  *slog.Logger

	// OnResolved, if set, is called on the serialized context after each
	// pending event resolves, before any confirm callback.
	OnResolved func(Pending, Outcome)
}

// Gate is the proximity gate state machine.
type Gate struct {
	sensor Sensor
	wake   WakeLock
	post   Poster
	clock  Clock
	opts   Options
	logger *slog.Logger

	state     State
	lastToken uint64
	pending   Pending
	onConfirm func(Pending)

	timer     Timer
	cancelSub context.CancelFunc
	lockHeld  bool
}

// New creates a gate. wake may be nil.
func New(sensor Sensor, wake WakeLock, post Poster, opts Options) *Gate {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gate{
		sensor: sensor,
		wake:   wake,
		post:   post,
		clock:  opts.Clock,
		opts:   opts,
		logger: opts.Logger,
	}
}

// State returns the current state.
func (g *Gate) State() State {
	return g.state
}

// Busy reports whether an event is pending.
func (g *Gate) Busy() bool {
	return g.state != Idle
}

// Submit starts gating an event. It returns false without side effects if
// another event is pending. onConfirm runs on the serialized context if the
// event is confirmed.
func (g *Gate) Submit(code scancode.Code, payload any, onConfirm func(Pending)) bool {
	if g.state != Idle {
		return false
	}

	g.lastToken++
	token := g.lastToken
	g.pending = Pending{
		ID:        uuid.NewString(),
		Code:      code,
		Payload:   payload,
		CreatedAt: time.Now(),
		Token:     token,
	}
	g.onConfirm = onConfirm
	g.state = AwaitingProximity

	log := g.logger.With("event_id", g.pending.ID, "scan_code", int(code))

	if g.wake != nil {
		if err := g.wake.Acquire(); err != nil {
			log.Warn("wake lock acquire failed", "error", err)
		} else {
			g.lockHeld = true
		}
	}

	g.timer = g.clock.AfterFunc(g.opts.Timeout, func() {
		g.postOrDrop(func() { g.handleTimeout(token) })
	})

	// The claim can block on the bus, so it is made off the serialized
	// context. Resolving cancels ctx, which bounds it by the timeout.
	ctx, cancel := context.WithCancel(context.Background())
	g.cancelSub = cancel
	go g.subscribe(ctx, token)

	log.Debug("awaiting proximity", "timeout", g.opts.Timeout)
	return true
}

func (g *Gate) subscribe(ctx context.Context, token uint64) {
	if ctx.Err() != nil {
		return
	}
	readings, err := g.sensor.SubscribeOnce(ctx, SamplingFastest)
	if err != nil {
		if ctx.Err() == nil {
			g.postOrDrop(func() { g.handleSubscribeError(token, err) })
		}
		return
	}
	select {
	case v, ok := <-readings:
		if ok {
			g.postOrDrop(func() { g.handleReading(token, v) })
		}
	case <-ctx.Done():
	}
}

func (g *Gate) postOrDrop(f func()) {
	if err := g.post.Post(f); err != nil {
		g.logger.Debug("gate callback dropped", "error", err)
	}
}

func (g *Gate) live(token uint64) bool {
	return g.state == AwaitingProximity && g.pending.Token == token
}

func (g *Gate) handleReading(token uint64, value float32) {
	if !g.live(token) {
		return
	}

	if value == g.sensor.MaxRange() {
		g.resolve(Confirmed)
		return
	}
	g.logger.Debug("proximity blocked", "event_id", g.pending.ID, "reading", value)
	g.resolve(Discarded)
}

func (g *Gate) handleSubscribeError(token uint64, err error) {
	if !g.live(token) {
		return
	}
	g.logger.Warn("proximity subscribe failed", "event_id", g.pending.ID, "error", err)
	g.resolve(Discarded)
}

func (g *Gate) handleTimeout(token uint64) {
	if !g.live(token) {
		return
	}
	g.resolve(TimedOut)
}

// resolve ends the pending event: it releases the wake lock, tears down the
// subscription and the timer, and returns the gate to Idle before running
// any callbacks.
func (g *Gate) resolve(outcome Outcome) {
	p := g.pending
	onConfirm := g.onConfirm

	if g.lockHeld {
		g.lockHeld = false
		if err := g.wake.Release(); err != nil {
			g.logger.Warn("wake lock release failed", "error", err)
		}
	}
	if g.cancelSub != nil {
		g.cancelSub()
		g.cancelSub = nil
	}
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}

	g.state = Idle
	g.pending = Pending{}
	g.onConfirm = nil

	g.logger.Debug("gesture gate resolved",
		"event_id", p.ID,
		"scan_code", int(p.Code),
		"outcome", outcome.String(),
		"elapsed", time.Since(p.CreatedAt),
	)

	if g.opts.OnResolved != nil {
		g.opts.OnResolved(p, outcome)
	}
	if outcome == Confirmed && onConfirm != nil {
		onConfirm(p)
	}
}
