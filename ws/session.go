package ws

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

// ConnectionHandler upgrades /socket requests and binds the connection to
// its room hub. Authentication failures terminate only the offending
// connection: the AUTH_ERROR event is written and the socket is closed,
// nothing else in the room is touched.
type ConnectionHandler struct {
	registry *Registry
	sessions *auth.Sessions
	store    persistence.Persister
	logger   hclog.Logger
	upgrader websocket.Upgrader
}

func NewConnectionHandler(registry *Registry, sessions *auth.Sessions, store persistence.Persister, logger hclog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		registry: registry,
		sessions: sessions,
		store:    store,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (ch *ConnectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ch.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ch.logger.Warn("could not upgrade connection", "error", err)
		return
	}

	claims, room, err := ch.authenticate(r)
	if err != nil {
		ch.logger.Info("rejecting connection", "error", err)
		ch.closeWithAuthError(conn, err)
		return
	}

	hub := ch.registry.Lobby()
	if room != nil {
		hub = ch.registry.GetOrCreate(room)
	}
	client := NewClient(hub, conn, claims,
		parseVersion(r.URL.Query().Get("library_version")),
		parseVersion(r.URL.Query().Get("star_version")))
	go client.WriteLoop()
	hub.Register <- client
	go client.ReadLoop()
}

func (ch *ConnectionHandler) authenticate(r *http.Request) (*auth.SessionClaims, *types.Room, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
			token = cookie.Value
		}
	}
	claims, err := ch.sessions.Verify(token)
	if err != nil {
		return nil, nil, err
	}

	roomId := r.URL.Query().Get("room")
	if roomId == "" {
		roomId = claims.RoomId
	}
	if roomId == "" {
		// an admin may connect without a room; it joins no broadcast
		// group and receives catalog pushes only
		if claims.IsAdmin {
			return claims, nil, nil
		}
		return nil, nil, errors.New("no room specified")
	}
	// guest sessions are bound to the room they joined
	if claims.IsGuest && roomId != claims.RoomId {
		return nil, nil, errors.New("session not valid for this room")
	}

	room := types.Room{Id: roomId}
	if err := ch.store.GetRoom(&room); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil, errors.New("unknown room")
		}
		return nil, nil, err
	}
	return claims, &room, nil
}

func (ch *ConnectionHandler) closeWithAuthError(conn *websocket.Conn, cause error) {
	data, err := types.NewWireMessage(types.PushAuthError, types.ErrorAck{Error: cause.Error()})
	if err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.Close()
}

// parseVersion reads a client-cached snapshot version; absence means no
// cache, which must never compare equal to a real version.
func parseVersion(s string) int64 {
	if s == "" {
		return -1
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return -1
	}
	return v
}
