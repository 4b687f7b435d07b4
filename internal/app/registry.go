package app

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/msgpipe/internal/connector"
	"github.com/rs/zerolog/log"
)

type SessionID string

type Transport string

const (
	TransportWebSocket   Transport = "ws"
	TransportDataChannel Transport = "rtc"
	TransportPipe        Transport = "pipe"
)

// Session is one connector bound into the service.
type Session struct {
	ID        SessionID
	Client    string
	Transport Transport
	Conn      *connector.Connector
	Opened    time.Time

	// onClose releases transport resources the handle does not own.
	onClose func()
}

type SessionInfo struct {
	ID          SessionID       `json:"id"`
	Client      string          `json:"client,omitempty"`
	Transport   Transport       `json:"transport"`
	Opened      time.Time       `json:"opened"`
	Paused      bool            `json:"paused"`
	Errored     bool            `json:"errored"`
	DropsWrites bool            `json:"drops_writes"`
	Stats       connector.Stats `json:"stats"`
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.ID,
		Client:      s.Client,
		Transport:   s.Transport,
		Opened:      s.Opened,
		Paused:      s.Conn.Paused(),
		Errored:     s.Conn.Errored(),
		DropsWrites: s.Conn.DropsWrites(),
		Stats:       s.Conn.Stats(),
	}
}

// Registry is read by HTTP handlers while the loop mutates it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[SessionID]*Session)}
}

func (r *Registry) Bind(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	log.Info().Str("module", "app.registry").Str("sid", string(s.ID)).Str("transport", string(s.Transport)).Msg("bound session")
}

func (r *Registry) Unbind(sid SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	}
	return s, ok
}

func (r *Registry) Get(sid SessionID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Others returns every session except sid, oldest first.
func (r *Registry) Others(sid SessionID) []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id != sid {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()
	sortByOpened(out)
	return out
}

func (r *Registry) Snapshot() []SessionInfo {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	sortByOpened(all)

	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, s.Info())
	}
	return out
}

func sortByOpened(ss []*Session) {
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].Opened.Equal(ss[j].Opened) {
			return ss[i].ID < ss[j].ID
		}
		return ss[i].Opened.Before(ss[j].Opened)
	})
}
