package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/msgpipe/internal/adapters/rtc"
	"github.com/dkeye/msgpipe/internal/adapters/ws"
	"github.com/dkeye/msgpipe/internal/app"
	"github.com/dkeye/msgpipe/internal/config"
	"github.com/dkeye/msgpipe/internal/eventloop"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := eventloop.New()
	go loop.Run(ctx)

	ctl := &Controller{
		Loop: loop,
		Service: &app.Service{
			Registry: app.NewRegistry(),
			Policy:   app.SimplePolicy{},
		},
		WS:     ws.DefaultOptions(),
		WebRTC: rtc.DefaultWebRTCConfig(),
	}
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, ctl))
	t.Cleanup(srv.Close)
	return srv, ctl
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthSetsClientToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == "ct" {
			token = c.Value
		}
	}
	assert.NotEmpty(t, token)
}

func TestWebSocketPipeRoundTrip(t *testing.T) {
	srv, ctl := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/pipe"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "pong", reply["type"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "whoami"}))
	require.NoError(t, conn.ReadJSON(&reply))
	sid, _ := reply["sid"].(string)
	require.NotEmpty(t, sid)
	assert.Equal(t, "ws", reply["transport"])

	list := getJSON(t, srv.URL+"/api/sessions")
	sessions, ok := list["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 1)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/sessions/"+sid+"/pause", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/sessions/"+sid, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Eventually(t, func() bool { return ctl.Service.Registry.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSessionOpUnknown(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/sessions/nope/resume", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOfferRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/rtc/offer", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionOpAfterLoopStopped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	ctl := &Controller{Loop: loop, Service: &app.Service{Registry: app.NewRegistry()}}
	r := SetupRouter(context.Background(), &config.Config{Mode: "test"}, ctl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/sessions/x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
