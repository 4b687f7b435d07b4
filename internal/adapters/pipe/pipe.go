// Package pipe is an in-memory message pipe. Both ends deliver their watch
// callbacks on the same loop.
package pipe

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/msgpipe/internal/adapters/queue"
	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/eventloop"
)

type End struct {
	inbox  *queue.Inbox
	peer   *End
	closed atomic.Bool
}

// NewPair returns the two connected ends of a new pipe.
func NewPair(poster eventloop.Poster) (*End, *End) {
	a := &End{inbox: queue.NewInbox(poster)}
	b := &End{inbox: queue.NewInbox(poster)}
	a.peer, b.peer = b, a
	return a, b
}

func (e *End) IsValid() bool { return !e.closed.Load() }

func (e *End) Write(payload []byte, handles []core.Handle, _ core.WriteFlags) core.Result {
	if e.closed.Load() {
		return core.ResultInvalidArgument
	}
	for _, h := range handles {
		if h == nil || !h.IsValid() {
			return core.ResultInvalidArgument
		}
		if other, ok := h.(*End); ok && (other == e || other == e.peer) {
			return core.ResultInvalidArgument
		}
	}
	if e.peer.closed.Load() {
		return core.ResultFailedPrecondition
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	var moved []core.Handle
	if len(handles) > 0 {
		moved = append(moved, handles...)
	}
	if !e.peer.inbox.Push(&core.Message{Payload: buf, Handles: moved}) {
		return core.ResultFailedPrecondition
	}
	return core.ResultOK
}

func (e *End) Read(core.ReadFlags) core.ReadResult {
	if e.closed.Load() {
		return core.ReadResult{Result: core.ResultInvalidArgument}
	}
	return e.inbox.Pop()
}

func (e *End) Watch(signals core.Signals, cb core.WatchCallback) core.Watcher {
	return e.inbox.Watch(signals, cb)
}

func (e *End) Wait(ctx context.Context, signals core.Signals) core.Result {
	if e.closed.Load() {
		return core.ResultInvalidArgument
	}
	return e.inbox.Wait(ctx, signals)
}

// Close releases this end. Unread messages and their handles are discarded
// and the peer observes FAILED_PRECONDITION once it has drained its queue.
func (e *End) Close() core.Result {
	if e.closed.Swap(true) {
		return core.ResultInvalidArgument
	}
	e.inbox.Close()
	e.peer.inbox.Shutdown(core.ResultFailedPrecondition)
	return core.ResultOK
}
