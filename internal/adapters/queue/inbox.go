// Package queue holds the inbound side shared by every handle implementation:
// a FIFO of messages with level-triggered watches delivered on a host loop.
package queue

import (
	"context"
	"sync"

	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/eventloop"
)

// Inbox is safe for concurrent use. Producers run on transport goroutines,
// consumers and watch callbacks on the loop.
type Inbox struct {
	poster eventloop.Poster

	mu       sync.Mutex
	msgs     []*core.Message
	shutdown core.Result
	closed   bool
	watchers map[*watcher]struct{}
	changed  chan struct{}
}

func NewInbox(poster eventloop.Poster) *Inbox {
	return &Inbox{
		poster:   poster,
		shutdown: core.ResultOK,
		watchers: make(map[*watcher]struct{}),
		changed:  make(chan struct{}),
	}
}

// Push queues msg. It reports false once the inbox is shut down or closed,
// in which case the caller keeps ownership of msg.
func (in *Inbox) Push(msg *core.Message) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed || in.shutdown != core.ResultOK {
		return false
	}
	in.msgs = append(in.msgs, msg)
	in.notifyLocked()
	return true
}

// Shutdown marks the producing side gone. Queued messages stay readable;
// after them Pop returns r.
func (in *Inbox) Shutdown(r core.Result) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed || in.shutdown != core.ResultOK {
		return
	}
	in.shutdown = r
	in.notifyLocked()
}

// Close drops every watcher and closes the handles of unread messages.
func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	msgs := in.msgs
	in.msgs = nil
	for w := range in.watchers {
		w.cancelled = true
	}
	clear(in.watchers)
	in.notifyLocked()
	in.mu.Unlock()

	for _, m := range msgs {
		m.CloseHandles()
	}
}

func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.msgs)
}

// PeerGone reports whether Shutdown has been called.
func (in *Inbox) PeerGone() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.shutdown != core.ResultOK
}

func (in *Inbox) Pop() core.ReadResult {
	in.mu.Lock()
	defer in.mu.Unlock()
	switch {
	case in.closed:
		return core.ReadResult{Result: core.ResultInvalidArgument}
	case len(in.msgs) > 0:
		m := in.msgs[0]
		in.msgs[0] = nil
		in.msgs = in.msgs[1:]
		return core.ReadResult{Result: core.ResultOK, Payload: m.Payload, Handles: m.TakeHandles()}
	case in.shutdown != core.ResultOK:
		return core.ReadResult{Result: in.shutdown}
	default:
		return core.ReadResult{Result: core.ResultShouldWait}
	}
}

// Wait blocks until signals are satisfied or can no longer be.
func (in *Inbox) Wait(ctx context.Context, signals core.Signals) core.Result {
	for {
		in.mu.Lock()
		if in.closed {
			in.mu.Unlock()
			return core.ResultInvalidArgument
		}
		if r, ok := in.evalLocked(signals); ok {
			in.mu.Unlock()
			return r
		}
		changed := in.changed
		in.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return core.ResultDeadlineExceeded
			}
			return core.ResultCancelled
		}
	}
}

// Watch registers cb for signals. The callback is posted to the loop while
// the condition holds, one posting at a time. If the condition becomes
// unsatisfiable cb gets ResultFailedPrecondition once and the watch ends.
func (in *Inbox) Watch(signals core.Signals, cb core.WatchCallback) core.Watcher {
	w := &watcher{inbox: in, signals: signals, cb: cb}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		w.cancelled = true
		return w
	}
	in.watchers[w] = struct{}{}
	in.scheduleLocked(w)
	return w
}

// evalLocked returns the watch result for signals and whether it is final
// for now (satisfied or unsatisfiable).
func (in *Inbox) evalLocked(signals core.Signals) (core.Result, bool) {
	gone := in.shutdown != core.ResultOK
	switch {
	case signals&core.SignalReadable != 0 && len(in.msgs) > 0,
		signals&core.SignalPeerClosed != 0 && gone,
		signals&core.SignalWritable != 0 && !gone:
		return core.ResultOK, true
	case gone:
		return core.ResultFailedPrecondition, true
	default:
		return core.ResultOK, false
	}
}

func (in *Inbox) notifyLocked() {
	close(in.changed)
	in.changed = make(chan struct{})
	for w := range in.watchers {
		in.scheduleLocked(w)
	}
}

func (in *Inbox) scheduleLocked(w *watcher) {
	if w.cancelled || w.posted {
		return
	}
	if _, ok := in.evalLocked(w.signals); !ok {
		return
	}
	w.posted = true
	if !in.poster.Post(w.fire) {
		w.posted = false
	}
}

type watcher struct {
	inbox   *Inbox
	signals core.Signals
	cb      core.WatchCallback

	// guarded by inbox.mu
	cancelled bool
	posted    bool
}

func (w *watcher) Cancel() {
	in := w.inbox
	in.mu.Lock()
	defer in.mu.Unlock()
	w.cancelled = true
	delete(in.watchers, w)
}

func (w *watcher) fire() {
	in := w.inbox
	in.mu.Lock()
	w.posted = false
	if w.cancelled {
		in.mu.Unlock()
		return
	}
	r, ok := in.evalLocked(w.signals)
	if !ok {
		in.mu.Unlock()
		return
	}
	if r != core.ResultOK {
		w.cancelled = true
		delete(in.watchers, w)
	}
	in.mu.Unlock()

	w.cb(r)

	in.mu.Lock()
	in.scheduleLocked(w)
	in.mu.Unlock()
}
