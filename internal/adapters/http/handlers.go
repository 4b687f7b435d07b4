package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/msgpipe/internal/adapters/rtc"
	"github.com/dkeye/msgpipe/internal/adapters/ws"
	"github.com/dkeye/msgpipe/internal/app"
	"github.com/dkeye/msgpipe/internal/core"
	"github.com/dkeye/msgpipe/internal/eventloop"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const loopTimeout = 5 * time.Second

// Controller hands new transports to the service on its loop.
type Controller struct {
	Loop        *eventloop.Loop
	Service     *app.Service
	WS          ws.Options
	WebRTC      webrtc.Configuration
	MaxBuffered uint64
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *Controller) onLoop(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, loopTimeout)
	defer cancel()
	return ctl.Loop.Do(ctx, fn)
}

func (ctl *Controller) attach(ctx context.Context, sid app.SessionID, client string, tr app.Transport, h core.Handle, onClose func()) error {
	var err error
	if lerr := ctl.onLoop(ctx, func() {
		_, err = ctl.Service.Attach(sid, client, tr, h, onClose)
	}); lerr != nil {
		return lerr
	}
	return err
}

func (ctl *Controller) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": ctl.Service.Registry.Len()})
}

func (ctl *Controller) HandleWebSocket(ctx context.Context, c *gin.Context) {
	client := c.GetString("client_token")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}

	sid := app.SessionID(uuid.NewString())
	h := ws.New(conn, ctl.Loop, string(sid), ctl.WS)
	if err := ctl.attach(ctx, sid, client, app.TransportWebSocket, h, nil); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("attach ws")
		h.Close()
	}
}

type offerRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

// HandleOffer answers a WebRTC offer. Every data channel the browser opens
// on the resulting peer becomes its own session.
func (ctl *Controller) HandleOffer(ctx context.Context, c *gin.Context) {
	var req offerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid sdp"})
		return
	}
	client := c.GetString("client_token")
	peerID := uuid.NewString()

	peer, err := rtc.NewPeer(ctl.WebRTC, peerID)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("webrtc new pc")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "peer connection failed"})
		return
	}
	channels := &peerChannels{peer: peer}
	peer.OnDataChannel(func(dc *webrtc.DataChannel) {
		sid := app.SessionID(peerID + "/" + dc.Label())
		h := rtc.NewDataChannel(dc, ctl.Loop, ctl.MaxBuffered)
		channels.add(sid)
		if err := ctl.attach(ctx, sid, client, app.TransportDataChannel, h, func() { channels.remove(sid) }); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Str("sid", string(sid)).Msg("attach data channel")
			h.Close()
			channels.remove(sid)
		}
	})
	peer.OnClosed(func() {
		for _, sid := range channels.list() {
			sid := sid
			ctl.Loop.Post(func() { ctl.Service.Detach(sid) })
		}
	})
	if err := peer.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("webrtc start")
		peer.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "peer start failed"})
		return
	}

	answer, err := peer.Answer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: req.SDP})
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("webrtc apply offer")
		peer.Close()
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad offer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": "answer", "sdp": answer.SDP, "peer": peerID})
}

// peerChannels closes the peer once the last of its data channel sessions
// is detached.
type peerChannels struct {
	mu   sync.Mutex
	peer *rtc.Peer
	sids map[app.SessionID]struct{}
	seen bool
}

func (p *peerChannels) add(sid app.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sids == nil {
		p.sids = make(map[app.SessionID]struct{})
	}
	p.sids[sid] = struct{}{}
	p.seen = true
}

func (p *peerChannels) remove(sid app.SessionID) {
	p.mu.Lock()
	delete(p.sids, sid)
	last := p.seen && len(p.sids) == 0
	p.mu.Unlock()
	if last {
		go p.peer.Close()
	}
}

func (p *peerChannels) list() []app.SessionID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]app.SessionID, 0, len(p.sids))
	for sid := range p.sids {
		out = append(out, sid)
	}
	return out
}

func (ctl *Controller) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": ctl.Service.Registry.Snapshot()})
}

func (ctl *Controller) PauseSession(c *gin.Context) {
	ctl.sessionOp(c, ctl.Service.Pause)
}

func (ctl *Controller) ResumeSession(c *gin.Context) {
	ctl.sessionOp(c, ctl.Service.Resume)
}

func (ctl *Controller) CloseSession(c *gin.Context) {
	ctl.sessionOp(c, ctl.Service.Detach)
}

func (ctl *Controller) sessionOp(c *gin.Context, op func(app.SessionID) bool) {
	sid := app.SessionID(c.Param("sid"))
	var found bool
	err := ctl.onLoop(c.Request.Context(), func() { found = op(sid) })
	switch {
	case errors.Is(err, eventloop.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	case err != nil:
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	case !found:
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
	default:
		if s, ok := ctl.Service.Registry.Get(sid); ok {
			c.JSON(http.StatusOK, s.Info())
			return
		}
		c.Status(http.StatusNoContent)
	}
}
