// Package ws exposes a gorilla websocket connection as a core.Handle.
package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/msgpipe/internal/adapters/queue"
	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/eventloop"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
	// MessageType is websocket.TextMessage or websocket.BinaryMessage.
	MessageType int
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   32,
		MessageType:  websocket.TextMessage,
	}
}

// Handle owns conn. Websocket frames cannot carry handles, so writes with
// attached handles are rejected.
type Handle struct {
	conn  *websocket.Conn
	opts  Options
	inbox *queue.Inbox
	log   zerolog.Logger

	send chan []byte
	gone atomic.Bool
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New starts the read and write pumps for conn. name shows up in logs.
func New(conn *websocket.Conn, poster eventloop.Poster, name string, opts Options) *Handle {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if opts.MessageType == 0 {
		opts.MessageType = websocket.TextMessage
	}
	h := &Handle{
		conn:  conn,
		opts:  opts,
		inbox: queue.NewInbox(poster),
		log:   log.With().Str("module", "adapters.ws").Str("sid", name).Logger(),
		send:  make(chan []byte, opts.SendBuffer),
		done:  make(chan struct{}),
	}
	go h.writePump()
	go h.readPump()
	return h
}

func (h *Handle) IsValid() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

func (h *Handle) Write(payload []byte, handles []core.Handle, _ core.WriteFlags) core.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch {
	case h.closed, len(handles) > 0:
		return core.ResultInvalidArgument
	case h.gone.Load():
		return core.ResultFailedPrecondition
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case h.send <- buf:
		return core.ResultOK
	default:
		return core.ResultResourceExhausted
	}
}

func (h *Handle) Read(core.ReadFlags) core.ReadResult {
	if !h.IsValid() {
		return core.ReadResult{Result: core.ResultInvalidArgument}
	}
	return h.inbox.Pop()
}

func (h *Handle) Watch(signals core.Signals, cb core.WatchCallback) core.Watcher {
	return h.inbox.Watch(signals, cb)
}

func (h *Handle) Wait(ctx context.Context, signals core.Signals) core.Result {
	if !h.IsValid() {
		return core.ResultInvalidArgument
	}
	return h.inbox.Wait(ctx, signals)
}

// Close flushes queued writes, sends a close frame and releases the socket.
func (h *Handle) Close() core.Result {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return core.ResultInvalidArgument
	}
	h.closed = true
	close(h.send)
	h.mu.Unlock()

	h.inbox.Close()
	return core.ResultOK
}

// Done is closed once the read pump has stopped.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) peerGone() {
	if h.gone.Swap(true) {
		return
	}
	h.inbox.Shutdown(core.ResultFailedPrecondition)
}
