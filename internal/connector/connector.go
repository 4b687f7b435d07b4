// Package connector turns a duplex message handle into an event-driven
// message pump with pause/resume flow control and one-shot error reporting.
//
// A Connector is not safe for concurrent use. Every method, and every watch
// callback the handle delivers, must run on the same host loop. Stats and the
// state queries are the exception and may be read from any goroutine.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dkeye/msgpipe/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Receiver consumes inbound messages. It owns msg after the call.
type Receiver interface {
	Accept(msg *core.Message) bool
}

type ReceiverFunc func(msg *core.Message) bool

func (f ReceiverFunc) Accept(msg *core.Message) bool { return f(msg) }

// ErrorHandler is told once about the fatal read error.
type ErrorHandler interface {
	OnError()
}

type ErrorHandlerFunc func()

func (f ErrorHandlerFunc) OnError() { f() }

type Stats struct {
	Sent     int64 `json:"sent"`
	Dropped  int64 `json:"dropped"`
	Rejected int64 `json:"rejected"`
	Received int64 `json:"received"`
}

type Connector struct {
	id      string
	handle  core.Handle
	watcher core.Watcher
	state   stateCell

	receiver     Receiver
	errorHandler ErrorHandler

	drainLimit  int
	rejectFatal bool
	log         zerolog.Logger

	sent, dropped, rejected, received atomic.Int64
}

// New binds a connector to h and starts watching it for readability.
// A nil h gives an inert connector that never reads and rejects every write.
func New(h core.Handle, opts ...Option) (*Connector, error) {
	if h != nil && !h.IsValid() {
		return nil, fmt.Errorf("connector: handle is not valid: %w", ErrInvalidArgument)
	}
	c := &Connector{
		id:     uuid.NewString(),
		handle: h,
		log:    log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("module", "connector").Str("connector", c.id).Logger()
	c.syncWatch()
	return c, nil
}

func (c *Connector) ID() string { return c.id }

// Close cancels the watch and closes the handle. It is idempotent.
func (c *Connector) Close() {
	if c.state.load().has(stateClosed) {
		return
	}
	c.state.set(stateClosed)
	c.syncWatch()
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	c.log.Debug().Msg("closed")
}

// PassHandle detaches the handle without closing it. The connector is
// closed afterwards. It returns nil if the connector holds no handle.
func (c *Connector) PassHandle() core.Handle {
	if c.state.load().has(stateClosed) {
		return nil
	}
	c.state.set(stateClosed)
	c.syncWatch()
	h := c.handle
	c.handle = nil
	return h
}

func (c *Connector) PauseIncomingMethodCallProcessing() {
	if c.state.load().has(statePaused) {
		return
	}
	c.state.set(statePaused)
	c.syncWatch()
}

// ResumeIncomingMethodCallProcessing re-arms the watch. Queued messages are
// drained on the next notification, not synchronously.
func (c *Connector) ResumeIncomingMethodCallProcessing() {
	if !c.state.load().has(statePaused) {
		return
	}
	c.state.clear(statePaused)
	c.syncWatch()
}

// Accept writes msg to the handle.
//
// Once the peer is known to be gone, writes are swallowed and reported as
// successful; the read side reports the failure. A false return means this
// message was rejected, or the connector has errored or been closed. On
// success msg no longer owns its handles.
func (c *Connector) Accept(msg *core.Message) bool {
	s := c.state.load()
	switch {
	case s.has(stateErrored):
		c.rejected.Add(1)
		return false
	case s.has(stateDropWrites):
		c.dropped.Add(1)
		return true
	case c.handle == nil || msg == nil:
		c.rejected.Add(1)
		return false
	}

	switch r := c.handle.Write(msg.Payload, msg.Handles, core.WriteFlagNone); r {
	case core.ResultOK:
		msg.TakeHandles()
		c.sent.Add(1)
	case core.ResultFailedPrecondition:
		c.state.set(stateDropWrites)
		c.dropped.Add(1)
		c.log.Info().Msg("peer gone, dropping further writes")
	default:
		c.rejected.Add(1)
		c.log.Debug().Stringer("result", r).Int("size", len(msg.Payload)).Msg("write rejected")
		return false
	}
	return true
}

// SetIncomingReceiver replaces the receiver. With nil, messages are still
// read but dropped.
func (c *Connector) SetIncomingReceiver(r Receiver) { c.receiver = r }

func (c *Connector) SetErrorHandler(h ErrorHandler) { c.errorHandler = h }

// WaitForNextMessageForTesting blocks until the handle is readable and runs
// one read cycle.
func (c *Connector) WaitForNextMessageForTesting(ctx context.Context) {
	if c.handle == nil {
		return
	}
	c.readMore(c.handle.Wait(ctx, core.SignalReadable))
}

func (c *Connector) Closed() bool      { return c.state.load().has(stateClosed) }
func (c *Connector) Errored() bool     { return c.state.load().has(stateErrored) }
func (c *Connector) Paused() bool      { return c.state.load().has(statePaused) }
func (c *Connector) DropsWrites() bool { return c.state.load().has(stateDropWrites) }

func (c *Connector) Stats() Stats {
	return Stats{
		Sent:     c.sent.Load(),
		Dropped:  c.dropped.Load(),
		Rejected: c.rejected.Load(),
		Received: c.received.Load(),
	}
}

// syncWatch arms or cancels the readable watch so that it exists exactly
// when the state says the connector is reading.
func (c *Connector) syncWatch() {
	want := c.handle != nil && c.state.load().watching()
	switch {
	case want && c.watcher == nil:
		c.watcher = c.handle.Watch(core.SignalReadable, c.readMore)
	case !want && c.watcher != nil:
		c.watcher.Cancel()
		c.watcher = nil
	}
}

func (c *Connector) readMore(core.Result) {
	for n := 0; c.drainLimit <= 0 || n < c.drainLimit; n++ {
		// A receiver may have paused, closed or failed us.
		if c.handle == nil || !c.state.load().watching() {
			return
		}

		rr := c.handle.Read(core.ReadFlagNone)
		switch rr.Result {
		case core.ResultOK:
		case core.ResultShouldWait:
			return
		default:
			c.fail(rr.Result)
			return
		}

		msg := &core.Message{Payload: rr.Payload, Handles: rr.Handles}
		c.received.Add(1)
		if c.receiver == nil {
			msg.CloseHandles()
			continue
		}
		ok := c.receiver.Accept(msg)
		if c.handle == nil {
			return
		}
		if !ok && c.rejectFatal {
			c.log.Warn().Int("size", len(rr.Payload)).Msg("receiver rejected message")
			c.fail(core.ResultInvalidArgument)
			return
		}
	}
}

func (c *Connector) fail(r core.Result) {
	if c.handle == nil || c.state.load().has(stateErrored) {
		return
	}
	c.state.set(stateErrored)
	c.syncWatch()
	c.log.Info().Stringer("result", r).Msg("read failed")
	if c.errorHandler != nil {
		c.errorHandler.OnError()
	}
}
