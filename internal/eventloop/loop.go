// Package eventloop is the single-threaded host loop that connectors and
// handle watches run on.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

var ErrStopped = errors.New("event loop stopped")

// Poster schedules work on a loop. Handles use it to deliver watch callbacks.
type Poster interface {
	Post(fn func()) bool
}

// Loop runs posted tasks one at a time, in the order they were posted.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	stopped bool
	wake    chan struct{}
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. It never blocks and is safe from any goroutine,
// including tasks running on the loop.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish.
// Calling Do from a task on the same loop deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is done. Tasks still queued at that point
// are dropped and later Posts fail.
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		batch := l.take()
		for _, task := range batch {
			if ctx.Err() != nil {
				return
			}
			l.run(task)
		}
		if len(batch) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.tasks
	l.tasks = nil
	return batch
}

func (l *Loop) run(task func()) {
	if r := panics.Try(task); r != nil {
		log.Error().Err(r.AsError()).Str("module", "eventloop").Msg("task panicked")
	}
}

func (l *Loop) stop() {
	l.mu.Lock()
	l.stopped = true
	l.tasks = nil
	l.mu.Unlock()
}
