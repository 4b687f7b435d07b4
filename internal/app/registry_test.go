package app

import (
	"testing"
	"time"

	"github.com/dkeye/msgpipe/internal/connector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inertSession(t *testing.T, sid SessionID, opened time.Time) *Session {
	t.Helper()
	c, err := connector.New(nil)
	require.NoError(t, err)
	return &Session{ID: sid, Transport: TransportPipe, Conn: c, Opened: opened}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	base := time.Unix(1000, 0)
	r.Bind(inertSession(t, "b", base.Add(time.Second)))
	r.Bind(inertSession(t, "a", base))
	r.Bind(inertSession(t, "c", base.Add(2*time.Second)))

	assert.Equal(t, 3, r.Len())

	others := r.Others("b")
	require.Len(t, others, 2)
	assert.Equal(t, SessionID("a"), others[0].ID)
	assert.Equal(t, SessionID("c"), others[1].ID)

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []SessionID{"a", "b", "c"}, []SessionID{snap[0].ID, snap[1].ID, snap[2].ID})
	assert.Equal(t, TransportPipe, snap[0].Transport)

	s, ok := r.Unbind("a")
	assert.True(t, ok)
	assert.Equal(t, SessionID("a"), s.ID)
	_, ok = r.Unbind("a")
	assert.False(t, ok)
	_, ok = r.Get("a")
	assert.False(t, ok)
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("s"))
	assert.True(t, rl.Allow("s"))
	assert.False(t, rl.Allow("s"))
	assert.True(t, rl.Allow("other"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("s"))

	rl.Forget("s")
	assert.True(t, rl.Allow("s"))
	assert.True(t, rl.Allow("s"))

	var disabled *RateLimiter
	assert.True(t, disabled.Allow("s"))
	disabled.Forget("s")
}
