package ws

import (
	"time"

	"github.com/dkeye/msgpipe/internal/core"
	"github.com/gorilla/websocket"
)

func (h *Handle) readPump() {
	defer func() {
		h.peerGone()
		_ = h.conn.Close()
		close(h.done)
		h.log.Debug().Msg("readPump closing")
	}()

	if h.opts.ReadLimit > 0 {
		h.conn.SetReadLimit(h.opts.ReadLimit)
	}
	if h.opts.PingPeriod > 0 {
		pongWait := h.opts.PingPeriod * 10 / 9
		_ = h.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.conn.SetPongHandler(func(string) error {
			return h.conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, data, err := h.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn().Err(err).Msg("readPump read error")
			}
			return
		}
		if !h.inbox.Push(core.NewMessage(data)) {
			return
		}
	}
}

func (h *Handle) writePump() {
	var tick <-chan time.Time
	if h.opts.PingPeriod > 0 {
		ticker := time.NewTicker(h.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		h.peerGone()
		_ = h.conn.Close()
	}()

	for {
		select {
		case <-h.done:
			return
		case data, ok := <-h.send:
			if err := h.conn.SetWriteDeadline(h.deadline()); err != nil {
				h.log.Error().Err(err).Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = h.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := h.conn.WriteMessage(h.opts.MessageType, data); err != nil {
				h.log.Error().Err(err).Msg("writePump write error")
				return
			}
		case <-tick:
			if err := h.conn.WriteControl(websocket.PingMessage, nil, h.deadline()); err != nil {
				h.log.Warn().Err(err).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (h *Handle) deadline() time.Time {
	if h.opts.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(h.opts.WriteTimeout)
}
