package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/queue"
	"github.com/karaokehub/karaokehub/types"
)

func newSocketServer(t *testing.T) (*httptest.Server, *auth.Sessions) {
	t.Helper()
	cfg := &config.Config{Persistence: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}}
	store, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.StoreRoom(types.Room{Id: "7", Name: "Main Stage", Status: types.RoomStatusOpen, OwnerId: "42", Prefs: types.Prefs{AllowQueueAdd: true}}))
	require.NoError(t, store.StoreUser(types.User{Id: "42", Username: "alice", Name: "Alice", Role: types.RoleStandard}))
	require.NoError(t, store.StoreSong(types.Song{Id: "5", Artist: "Queen", Title: "Somebody to Love"}))

	sessions, err := auth.NewSessions("test-secret", time.Hour)
	require.NoError(t, err)
	logger := hclog.NewNullLogger()
	registry := NewRegistry(store, queue.NewManager(store), logger)
	server := httptest.NewServer(NewConnectionHandler(registry, sessions, store, logger))
	t.Cleanup(server.Close)
	return server, sessions
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "?" + query
}

func readWire(t *testing.T, conn *websocket.Conn) types.WireMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg types.WireMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestInvalidTokenKillsOnlyThatConnection(t *testing.T) {
	server, sessions := newSocketServer(t)

	token, err := sessions.Issue(auth.SessionClaims{UserId: "42", Username: "alice", Name: "Alice", RoomId: "7"})
	require.NoError(t, err)
	good, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+token), nil)
	require.NoError(t, err)
	defer good.Close()

	// the healthy connection receives the full replay: prefs (owner),
	// library and star snapshots, queue
	replay := map[string]struct{}{}
	for i := 0; i < 4; i++ {
		replay[readWire(t, good).Type] = struct{}{}
	}
	for _, typ := range []string{types.PushRoomPrefs, types.PushLibrary, types.PushStars, types.PushQueue} {
		assert.Contains(t, replay, typ)
	}

	bad, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token=garbage"), nil)
	require.NoError(t, err)
	defer bad.Close()

	msg := readWire(t, bad)
	assert.Equal(t, types.PushAuthError, msg.Type)
	require.NoError(t, bad.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = bad.ReadMessage()
	assert.Error(t, err)

	// the healthy connection still round-trips an action
	data, err := types.NewWireMessage(types.ActionQueueAdd, types.QueueAddPayload{SongId: "5"})
	require.NoError(t, err)
	require.NoError(t, good.WriteMessage(websocket.TextMessage, data))
	seen := map[string]struct{}{}
	for i := 0; i < 4; i++ {
		seen[readWire(t, good).Type] = struct{}{}
		if _, ok := seen[types.ActionQueueAdd+types.SuffixSuccess]; ok {
			break
		}
	}
	assert.Contains(t, seen, types.ActionQueueAdd+types.SuffixSuccess)
}

func TestGuestSessionBoundToItsRoom(t *testing.T) {
	server, sessions := newSocketServer(t)

	token, err := sessions.Issue(auth.SessionClaims{UserId: "60", Username: "guest-60", Name: "Gus", IsGuest: true, RoomId: "7"})
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+token+"&room=8"), nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readWire(t, conn)
	assert.Equal(t, types.PushAuthError, msg.Type)
}

func TestAdminMayConnectWithoutRoom(t *testing.T) {
	server, sessions := newSocketServer(t)

	token, err := sessions.Issue(auth.SessionClaims{UserId: "1", Username: "admin", Name: "Admin", IsAdmin: true})
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+token), nil)
	require.NoError(t, err)
	defer conn.Close()

	// replay is catalog-only: library and stars, no room state
	replay := map[string]struct{}{}
	for i := 0; i < 2; i++ {
		replay[readWire(t, conn).Type] = struct{}{}
	}
	assert.Contains(t, replay, types.PushLibrary)
	assert.Contains(t, replay, types.PushStars)

	// room-bound commands are refused but the connection survives
	data, err := types.NewWireMessage(types.ActionQueueAdd, types.QueueAddPayload{SongId: "5"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	msg := readWire(t, conn)
	assert.Equal(t, types.ActionQueueAdd+types.SuffixError, msg.Type)
	var ack types.ErrorAck
	require.NoError(t, json.Unmarshal(msg.Payload, &ack))
	assert.Equal(t, "no room joined", ack.Error)

	// starring works from the lobby
	data, err = types.NewWireMessage(types.ActionStarSong, types.StarPayload{SongId: "5"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	seen := map[string]struct{}{}
	for i := 0; i < 2; i++ {
		seen[readWire(t, conn).Type] = struct{}{}
	}
	assert.Contains(t, seen, types.ActionStarSong+types.SuffixSuccess)
	assert.Contains(t, seen, types.PushStars)
}

func TestReplaySkipsCachedLibrary(t *testing.T) {
	server, sessions := newSocketServer(t)

	token, err := sessions.Issue(auth.SessionClaims{UserId: "42", Username: "alice", Name: "Alice", RoomId: "7"})
	require.NoError(t, err)

	// the library counter is at 1 after the single seeded song
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "token="+token+"&library_version=1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	// replay ends with the queue push; no library snapshot on the way
	for {
		msg := readWire(t, conn)
		assert.NotEqual(t, types.PushLibrary, msg.Type)
		if msg.Type == types.PushQueue {
			break
		}
	}
}
