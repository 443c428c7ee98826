// Package looper provides a serialized execution context.
//
// Every task posted to a Looper runs on one goroutine, one at a time, in
// post order. Code that only touches its state from looper tasks needs no
// locks.
package looper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned when posting to a looper that has stopped.
var ErrStopped = errors.New("looper stopped")

// Looper runs posted tasks serially.
type Looper struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	stopCh  chan struct{}
}

// New creates a Looper. Tasks do not run until Run is called.
func New(logger *slog.Logger) *Looper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Looper{
		logger: logger,
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Post queues f. It never blocks, so timer and sensor callbacks can use it
// from any goroutine.
func (l *Looper) Post(f func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Call runs f on the looper and waits for it to finish. It must not be
// called from a looper task.
func (l *Looper) Call(f func()) error {
	done := make(chan struct{})
	if err := l.Post(func() {
		defer close(done)
		f()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-l.stopCh:
		// Run may have drained the task on its way out.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Sync waits until every task posted before it has run.
func (l *Looper) Sync() error {
	return l.Call(func() {})
}

// Run executes tasks until ctx is done. Tasks still queued at that point
// are discarded.
func (l *Looper) Run(ctx context.Context) {
	defer l.stop()

	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.run(task)
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

func (l *Looper) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Looper) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("looper task panicked", "panic", r)
		}
	}()
	task()
}

func (l *Looper) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.queue = nil
	close(l.stopCh)
}
