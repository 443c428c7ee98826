// Package gatetest provides fakes for driving a gate.Gate in tests.
package gatetest

import (
	"context"
	"sync"
	"time"

	"gestured/internal/gate"
)

// Sensor is a scriptable proximity sensor.
type Sensor struct {
	Max float32
	Err error

	// Block, if set, holds every SubscribeOnce call until it is closed or
	// the subscriber gives up.
	Block chan struct{}

	mu   sync.Mutex
	subs []*Subscription
}

// Subscription records one SubscribeOnce call.
type Subscription struct {
	Rate gate.SamplingRate
	ctx  context.Context
	ch   chan float32
}

// Active reports whether the subscriber has not unsubscribed yet.
func (s *Subscription) Active() bool {
	return s.ctx.Err() == nil
}

// NewSensor returns a sensor whose maximum range is max.
func NewSensor(max float32) *Sensor {
	return &Sensor{Max: max}
}

// MaxRange implements gate.Sensor.
func (s *Sensor) MaxRange() float32 {
	return s.Max
}

// SubscribeOnce implements gate.Sensor.
func (s *Sensor) SubscribeOnce(ctx context.Context, rate gate.SamplingRate) (<-chan float32, error) {
	if s.Block != nil {
		select {
		case <-s.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	sub := &Subscription{Rate: rate, ctx: ctx, ch: make(chan float32, 1)}
	s.subs = append(s.subs, sub)
	return sub.ch, nil
}

// Emit delivers v to the most recent active subscription, waiting up to
// half a second for one to be made. It returns false when none appears or
// its single slot is already used.
func (s *Sensor) Emit(v float32) bool {
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if sub := s.latestActive(); sub != nil {
			select {
			case sub.ch <- v:
				return true
			default:
				return false
			}
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (s *Sensor) latestActive() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.subs) - 1; i >= 0; i-- {
		if s.subs[i].Active() {
			return s.subs[i]
		}
	}
	return nil
}

// WaitSubscriptions waits up to a second for at least n subscriptions and
// returns them.
func (s *Sensor) WaitSubscriptions(n int) []*Subscription {
	deadline := time.Now().Add(time.Second)
	for {
		subs := s.Subscriptions()
		if len(subs) >= n || time.Now().After(deadline) {
			return subs
		}
		time.Sleep(time.Millisecond)
	}
}

// Subscriptions returns every subscription made so far.
func (s *Sensor) Subscriptions() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Subscription(nil), s.subs...)
}

// ActiveCount returns the number of live subscriptions.
func (s *Sensor) ActiveCount() int {
	n := 0
	for _, sub := range s.Subscriptions() {
		if sub.Active() {
			n++
		}
	}
	return n
}

// WakeLock counts acquisitions and releases.
type WakeLock struct {
	mu       sync.Mutex
	acquired int
	released int
}

// Acquire implements gate.WakeLock.
func (w *WakeLock) Acquire() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.acquired++
	return nil
}

// Release implements gate.WakeLock.
func (w *WakeLock) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.released++
	return nil
}

// Counts returns the number of Acquire and Release calls.
func (w *WakeLock) Counts() (acquired, released int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.acquired, w.released
}

// Held reports whether more locks were acquired than released.
func (w *WakeLock) Held() bool {
	a, r := w.Counts()
	return a > r
}

// Clock is a manual gate.Clock. Timers only fire when told to.
type Clock struct {
	mu     sync.Mutex
	timers []*Timer
}

// Timer is a timer created by Clock.
type Timer struct {
	Delay time.Duration

	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

// AfterFunc implements gate.Clock.
func (c *Clock) AfterFunc(d time.Duration, f func()) gate.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Timer{Delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop implements gate.Timer.
func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// Stopped reports whether Stop was called.
func (t *Timer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback regardless of state, simulating a timer that
// raced with Stop.
func (t *Timer) Fire() {
	t.mu.Lock()
	t.fired = true
	f := t.f
	t.mu.Unlock()
	f()
}

// Advance fires every timer that is neither stopped nor fired and returns
// how many fired.
func (c *Clock) Advance() int {
	n := 0
	for _, t := range c.Timers() {
		t.mu.Lock()
		due := !t.stopped && !t.fired
		t.mu.Unlock()
		if due {
			t.Fire()
			n++
		}
	}
	return n
}

// Timers returns every timer created so far.
func (c *Clock) Timers() []*Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Timer(nil), c.timers...)
}
