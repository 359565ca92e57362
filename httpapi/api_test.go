package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/lifecycle"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/queue"
	"github.com/karaokehub/karaokehub/types"
	"github.com/karaokehub/karaokehub/ws"
)

type testEnv struct {
	server   *httptest.Server
	store    persistence.Persister
	sessions *auth.Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		SessionSecret:        "test-secret",
		SessionTTLHours:      1,
		GracePeriodSeconds:   60,
		IdleSweepSpec:        "@every 1h",
		IdleThresholdMinutes: 60,
		Persistence:          config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"},
		DefaultPrefs:         types.Prefs{AllowQueueAdd: true},
	}
	store, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	adminHash, err := auth.HashPassword("admin-pw")
	require.NoError(t, err)
	require.NoError(t, store.StoreUser(types.User{Id: "1", Username: "admin", Name: "Admin", Role: types.RoleAdmin, PasswordHash: adminHash}))
	legacy := sha256.Sum256([]byte("alice-pw"))
	require.NoError(t, store.StoreUser(types.User{Id: "42", Username: "alice", Name: "Alice", Role: types.RoleStandard, PasswordHash: hex.EncodeToString(legacy[:])}))

	sessions, err := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL())
	require.NoError(t, err)
	logger := hclog.NewNullLogger()
	registry := ws.NewRegistry(store, queue.NewManager(store), logger)
	lc := lifecycle.NewManager(store, registry, lifecycle.Config{
		GracePeriod:   cfg.GracePeriod(),
		IdleThreshold: cfg.IdleThreshold(),
		SweepSpec:     cfg.IdleSweepSpec,
		DefaultPrefs:  cfg.DefaultPrefs,
	}, logger)
	registry.SetLifecycle(lc)
	lc.OnRoomDeleted(registry.Drop)
	t.Cleanup(lc.Stop)

	router := mux.NewRouter()
	New(store, sessions, lc, registry, cfg, logger).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: store, sessions: sessions}
}

func (e *testEnv) post(t *testing.T, path, token string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) sessionResponse {
	t.Helper()
	defer resp.Body.Close()
	var out sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	token, err := e.sessions.Issue(auth.SessionClaims{UserId: "1", Username: "admin", Name: "Admin", IsAdmin: true})
	require.NoError(t, err)
	return token
}

func TestLoginCreatesEphemeralRoomOnce(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/login", "", loginRequest{Username: "alice", Password: "alice-pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decodeSession(t, resp)
	require.NotNil(t, first.Room)
	assert.True(t, first.Room.Ephemeral)
	assert.Equal(t, "42", first.Room.OwnerId)
	assert.NotEmpty(t, first.InviteToken)
	assert.NotEmpty(t, first.Token)

	resp = env.post(t, "/api/login", "", loginRequest{Username: "alice", Password: "alice-pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeSession(t, resp)
	assert.Equal(t, first.Room.Id, second.Room.Id)

	// the legacy hash is upgraded in the background
	require.Eventually(t, func() bool {
		user := types.User{Id: "42"}
		if err := env.store.GetUser(&user); err != nil {
			return false
		}
		return len(user.PasswordHash) > 2 && user.PasswordHash[:2] == "$2"
	}, time.Second, 10*time.Millisecond)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/login", "", loginRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/api/login", "", loginRequest{Username: "nobody", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestGuestJoinWithInviteToken(t *testing.T) {
	env := newTestEnv(t)

	login := decodeSession(t, env.post(t, "/api/login", "", loginRequest{Username: "alice", Password: "alice-pw"}))
	roomId := login.Room.Id

	resp := env.post(t, "/api/rooms/"+roomId+"/join", "", joinRequest{InviteToken: login.InviteToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	joined := decodeSession(t, resp)
	assert.Equal(t, types.RoleGuest, joined.User.Role)
	assert.Equal(t, roomId, joined.User.RoomId)
	assert.NotEmpty(t, joined.User.Name)

	resp = env.post(t, "/api/rooms/"+roomId+"/join", "", joinRequest{InviteToken: "wrong"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/api/rooms/missing/join", "", joinRequest{InviteToken: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRoomProvisioningRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/api/rooms", "", roomRequest{Name: "Main Stage"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	login := decodeSession(t, env.post(t, "/api/login", "", loginRequest{Username: "alice", Password: "alice-pw"}))
	resp = env.post(t, "/api/rooms", login.Token, roomRequest{Name: "Main Stage"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	admin := env.adminToken(t)
	resp = env.post(t, "/api/rooms", admin, roomRequest{Name: "Main Stage"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var room types.Room
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	resp.Body.Close()
	assert.False(t, room.Ephemeral)
	assert.True(t, room.Prefs.AllowQueueAdd)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/rooms/"+room.Id, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+admin)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
	delResp.Body.Close()

	stored := types.Room{Id: room.Id}
	assert.ErrorIs(t, env.store.GetRoom(&stored), persistence.ErrNotFound)
}

func TestQueueSnapshotRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	login := decodeSession(t, env.post(t, "/api/login", "", loginRequest{Username: "alice", Password: "alice-pw"}))

	resp, err := http.Get(env.server.URL + "/api/rooms/" + login.Room.Id + "/queue")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/rooms/"+login.Room.Id+"/queue", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view types.QueueView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	resp.Body.Close()
	assert.Equal(t, login.Room.Id, view.RoomId)
	assert.Empty(t, view.Items)
}

func TestSongUpsertBumpsLibraryVersion(t *testing.T) {
	env := newTestEnv(t)
	admin := env.adminToken(t)

	resp := env.post(t, "/api/songs", admin, types.Song{Id: "5", Artist: "Queen", Title: "Somebody to Love"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	version, err := env.store.LibraryVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	resp = env.post(t, "/api/songs", admin, types.Song{Id: "5", Artist: "Queen", Title: "Somebody to Love (live)"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	version, err = env.store.LibraryVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}
