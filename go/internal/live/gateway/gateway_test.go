package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/musicbingo/go/clients/playback"
	"github.com/mcdev12/musicbingo/go/internal/live/broadcast"
	"github.com/mcdev12/musicbingo/go/internal/live/guest"
	"github.com/mcdev12/musicbingo/go/internal/live/host"
	"github.com/mcdev12/musicbingo/go/internal/live/kv"
	"github.com/mcdev12/musicbingo/go/internal/live/lock"
	"github.com/mcdev12/musicbingo/go/internal/live/runtime"
	"github.com/mcdev12/musicbingo/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	mu       sync.Mutex
	commands []playback.Command
}

func (a *stubAdapter) Status(context.Context, string) (playback.Status, error) {
	return playback.Status{
		Connected:          true,
		CanControlPlayback: true,
		ActiveDevice:       &playback.Device{ID: "d1", IsActive: true},
		Playback: &playback.Playback{
			IsPlaying:  true,
			ProgressMs: 1000,
			PlaylistID: "pl-1",
			Item:       &playback.Item{ID: "t1", Name: "Song", Artists: []string{"Band"}, DurationMs: 200000},
		},
	}, nil
}

func (a *stubAdapter) Command(_ context.Context, cmd playback.Command) (playback.CommandResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = append(a.commands, cmd)
	return playback.CommandResponse{OK: true, Action: cmd.Action}, nil
}

func sessionConfig() *models.SessionConfig {
	cfg := &models.SessionConfig{
		ID:    "session-1",
		Games: []models.GameConfig{{Number: 1, PlaylistID: "pl-1"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func newGuestServer(t *testing.T) (*httptest.Server, *runtime.Store, *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	bus := broadcast.NewMemory()
	store := runtime.NewStore("session-1", "guest-tab", kv.NewMemory(), bus, clock)

	svc := NewService(DefaultConfig())
	svc.Register(Runtime{Store: store, Follower: guest.NewFollower(store, bus, clock, 0)})
	go svc.Start(ctx)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	RegisterHealthCheck(mux)
	srv := httptest.NewServer(NewServer("", mux).Handler)
	t.Cleanup(srv.Close)
	return srv, store, svc
}

func TestGetStateOnGuest(t *testing.T) {
	srv, _, _ := newGuestServer(t)

	resp, err := http.Get(srv.URL + "/api/sessions/session-1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, runtime.ModeIdle, body.Runtime.Mode)
	assert.False(t, body.Presence.HostConnected)
	assert.Nil(t, body.Lock)
}

func TestGuestHidesHostRoutes(t *testing.T) {
	srv, _, _ := newGuestServer(t)

	for _, path := range []string{"/api/sessions/session-1/lock"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	for _, path := range []string{"/api/sessions/session-1/actions", "/api/sessions/session-1/lock/take", "/api/sessions/session-1/reconnect"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(`{"action":"pause"}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}

	resp, err := http.Get(srv.URL + "/api/sessions/unknown/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	srv, _, _ := newGuestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebsocketPushesSnapshots(t *testing.T) {
	srv, store, svc := newGuestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session?session_id=session-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeRuntimeUpdate, ev.Type)
	var st runtime.State
	require.NoError(t, json.Unmarshal(ev.Data, &st))
	assert.Equal(t, runtime.ModeIdle, st.Mode)

	require.Eventually(t, func() bool {
		return svc.connectionManager.ConnectionCount("session-1") == 1
	}, time.Second, 5*time.Millisecond)

	next := runtime.Idle("session-1")
	next.Mode = runtime.ModeRunning
	next.ActiveGameNumber = 1
	next.UpdatedAtMs = 42
	require.True(t, store.Apply(next))

	ev = readEvent(t, conn)
	assert.Equal(t, EventTypeRuntimeUpdate, ev.Type)
	require.NoError(t, json.Unmarshal(ev.Data, &st))
	assert.Equal(t, runtime.ModeRunning, st.Mode)
}

func TestWebsocketRequiresKnownSession(t *testing.T) {
	srv, _, _ := newGuestServer(t)

	resp, err := http.Get(srv.URL + "/ws/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws/session?session_id=nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHostRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_700_000_000_000))
	adapter := &stubAdapter{}
	sess := host.NewSession(host.Config{TabID: "tab-a"}, sessionConfig(), kv.NewMemory(), broadcast.NewMemory(), adapter, clock)
	require.NoError(t, sess.Start(ctx))
	defer sess.Close(context.Background())

	svc := NewService(DefaultConfig())
	svc.Register(Runtime{Store: sess.Store(), Follower: sess.Follower(), Host: sess})
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/sessions/session-1/lock")
	require.NoError(t, err)
	var view host.LockView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, lock.StatusOwner, view.Status)

	resp, err = http.Post(srv.URL+"/api/sessions/session-1/actions", "application/json",
		strings.NewReader(`{"action":"start_game","game_number":1}`))
	require.NoError(t, err)
	var out ActionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, runtime.ModeRunning, out.Runtime.Mode)
	assert.Empty(t, out.Error)

	resp, err = http.Post(srv.URL+"/api/sessions/session-1/actions", "application/json",
		strings.NewReader(`{"action":"resume"}`))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NotEmpty(t, out.Error)

	resp, err = http.Post(srv.URL+"/api/sessions/session-1/actions", "application/json",
		strings.NewReader(`{"action":"start_game","game_number":9}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/sessions/session-1/lock/take", "application/json", nil)
	require.NoError(t, err)
	var res lock.AcquireResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()
	assert.True(t, res.Acquired)
}
