package rtc

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/msgpipe/internal/adapters/queue"
	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/eventloop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultMaxBuffered = 1 << 20

// DataChannel is a core.Handle over one WebRTC data channel.
type DataChannel struct {
	dc          *webrtc.DataChannel
	inbox       *queue.Inbox
	maxBuffered uint64
	closed      atomic.Bool
	log         zerolog.Logger
}

// NewDataChannel takes ownership of dc. Writes are refused once more than
// maxBuffered bytes are queued in the SCTP send buffer.
func NewDataChannel(dc *webrtc.DataChannel, poster eventloop.Poster, maxBuffered uint64) *DataChannel {
	if maxBuffered == 0 {
		maxBuffered = DefaultMaxBuffered
	}
	h := &DataChannel{
		dc:          dc,
		inbox:       queue.NewInbox(poster),
		maxBuffered: maxBuffered,
		log:         log.With().Str("module", "rtc").Str("label", dc.Label()).Logger(),
	}
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		if !h.inbox.Push(core.NewMessage(m.Data)) {
			h.log.Debug().Int("size", len(m.Data)).Msg("message after close dropped")
		}
	})
	dc.OnClose(func() {
		h.log.Info().Msg("data channel closed")
		h.inbox.Shutdown(core.ResultFailedPrecondition)
	})
	dc.OnError(func(err error) {
		h.log.Warn().Err(err).Msg("data channel error")
	})
	return h
}

func (h *DataChannel) IsValid() bool { return !h.closed.Load() }

func (h *DataChannel) Write(payload []byte, handles []core.Handle, _ core.WriteFlags) core.Result {
	if h.closed.Load() || len(handles) > 0 {
		return core.ResultInvalidArgument
	}
	switch h.dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
	case webrtc.DataChannelStateConnecting:
		return core.ResultUnavailable
	default:
		return core.ResultFailedPrecondition
	}
	if h.dc.BufferedAmount() > h.maxBuffered {
		return core.ResultResourceExhausted
	}
	if err := h.dc.Send(payload); err != nil {
		h.log.Debug().Err(err).Msg("send failed")
		if h.dc.ReadyState() != webrtc.DataChannelStateOpen {
			return core.ResultFailedPrecondition
		}
		return core.ResultUnknown
	}
	return core.ResultOK
}

func (h *DataChannel) Read(core.ReadFlags) core.ReadResult {
	if h.closed.Load() {
		return core.ReadResult{Result: core.ResultInvalidArgument}
	}
	return h.inbox.Pop()
}

func (h *DataChannel) Watch(signals core.Signals, cb core.WatchCallback) core.Watcher {
	return h.inbox.Watch(signals, cb)
}

func (h *DataChannel) Wait(ctx context.Context, signals core.Signals) core.Result {
	if h.closed.Load() {
		return core.ResultInvalidArgument
	}
	return h.inbox.Wait(ctx, signals)
}

func (h *DataChannel) Close() core.Result {
	if h.closed.Swap(true) {
		return core.ResultInvalidArgument
	}
	h.inbox.Close()
	if err := h.dc.Close(); err != nil {
		h.log.Warn().Err(err).Msg("close error")
	}
	return core.ResultOK
}
