package app

import (
	"encoding/json"
	"time"

	"github.com/dkeye/msgpipe/internal/connector"
	"github.com/dkeye/msgpipe/internal/core"
	"github.com/rs/zerolog/log"
)

// Service binds connectors into the registry and answers the JSON envelope
// protocol. All of its methods must run on the host loop.
type Service struct {
	Registry *Registry
	Policy   Policy
	Limiter  *RateLimiter
	// Options are applied to every connector the service creates.
	Options []connector.Option
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Attach wraps h in a connector and starts serving it. onClose runs once
// when the session is detached, after the connector has been closed.
func (s *Service) Attach(sid SessionID, client string, tr Transport, h core.Handle, onClose func()) (*Session, error) {
	opts := append([]connector.Option{connector.WithID(string(sid))}, s.Options...)
	conn, err := connector.New(h, opts...)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		ID:        sid,
		Client:    client,
		Transport: tr,
		Conn:      conn,
		Opened:    time.Now(),
		onClose:   onClose,
	}
	conn.SetIncomingReceiver(connector.ReceiverFunc(func(m *core.Message) bool {
		return s.dispatch(sess, m)
	}))
	conn.SetErrorHandler(connector.ErrorHandlerFunc(func() {
		log.Info().Str("module", "app.service").Str("sid", string(sid)).Msg("connector error, detaching")
		s.Detach(sid)
	}))
	s.Registry.Bind(sess)
	return sess, nil
}

// Detach closes the session's connector and forgets it.
func (s *Service) Detach(sid SessionID) bool {
	sess, ok := s.Registry.Unbind(sid)
	if !ok {
		return false
	}
	s.Limiter.Forget(sid)
	sess.Conn.Close()
	if sess.onClose != nil {
		sess.onClose()
	}
	return true
}

func (s *Service) Pause(sid SessionID) bool {
	sess, ok := s.Registry.Get(sid)
	if ok {
		sess.Conn.PauseIncomingMethodCallProcessing()
	}
	return ok
}

func (s *Service) Resume(sid SessionID) bool {
	sess, ok := s.Registry.Get(sid)
	if ok {
		sess.Conn.ResumeIncomingMethodCallProcessing()
	}
	return ok
}

// Shutdown detaches every session.
func (s *Service) Shutdown() {
	for _, info := range s.Registry.Snapshot() {
		s.Detach(info.ID)
	}
}

func (s *Service) dispatch(sess *Session, m *core.Message) bool {
	// Nothing in the protocol carries handles.
	m.CloseHandles()

	var env envelope
	if err := json.Unmarshal(m.Payload, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.service").Str("sid", string(sess.ID)).Msg("bad json")
		return false
	}

	switch env.Type {
	case "ping":
		s.sendJSON(sess, envelope{Type: "pong"})
	case "echo":
		s.sendJSON(sess, envelope{Type: "echo", Data: env.Data})
	case "whoami":
		s.sendJSON(sess, map[string]any{
			"type":      "whoami",
			"sid":       sess.ID,
			"transport": sess.Transport,
		})
	case "broadcast":
		s.broadcast(sess, env.Data)
	case "close":
		s.Detach(sess.ID)
	default:
		log.Warn().Str("module", "app.service").Str("type", env.Type).Msg("unknown message type")
		return false
	}
	return true
}

func (s *Service) broadcast(from *Session, data json.RawMessage) {
	if !s.Limiter.Allow(from.ID) {
		s.sendJSON(from, map[string]any{"type": "error", "error": "rate limited"})
		return
	}

	out, err := json.Marshal(map[string]any{
		"type": "broadcast",
		"from": from.ID,
		"data": data,
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.service").Msg("broadcast marshal")
		return
	}

	sent, dropped := 0, 0
	for _, other := range s.Registry.Others(from.ID) {
		if other.Conn.Accept(core.NewMessage(out)) {
			sent++
			continue
		}
		dropped++
		if s.Policy == nil {
			continue
		}
		switch s.Policy.OnBackPressure(other) {
		case KickMember:
			log.Info().Str("module", "app.service").Str("sid", string(other.ID)).Msg("kicking slow member")
			s.Detach(other.ID)
		case DropMessage, NoAction:
		}
	}
	log.Debug().Str("module", "app.service").Str("from", string(from.ID)).Int("sent_to", sent).Int("dropped", dropped).Msg("broadcast result")
	s.sendJSON(from, map[string]any{"type": "broadcast_ack", "sent": sent, "dropped": dropped})
}

func (s *Service) sendJSON(sess *Session, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.service").Msg("sendJSON marshal")
		return false
	}
	return sess.Conn.Accept(core.NewMessage(b))
}
