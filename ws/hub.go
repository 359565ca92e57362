package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/lifecycle"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/queue"
	"github.com/karaokehub/karaokehub/types"
)

const (
	maxMessageSize       = 65536
	pongWait             = 2 * time.Minute
	pingPeriod           = time.Minute
	writeWait            = 10 * time.Second
	broadcastChannelSize = 1000
	actionChannelSize    = 1000
)

// RoomGroupPrefix names a room's broadcast group.
const RoomGroupPrefix = "ROOM_ID_"

// OutMessage is one outbound broadcast. TargetFilter is an optional expr
// expression over filter.Env deciding per target connection whether the
// message is delivered. Origin, when set, excludes that one connection;
// other connections of the same user still receive the message.
type OutMessage struct {
	Data         []byte
	TargetFilter string
	Sender       *auth.SessionClaims
	Origin       *Client
}

type inboundAction struct {
	client *Client
	msg    types.WireMessage
}

// Hub is the per-room actor. There is one hub per room; its Run loop is
// the only goroutine mutating room state, so action handlers need no
// locking among themselves and broadcast emission order is preserved.
type Hub struct {
	Room *types.Room

	// Registered clients.
	clients map[*Client]struct{}

	// Register a new client to the hub.
	Register chan *Client

	// Unregister a client from the hub.
	Unregister chan *Client

	// Actions are inbound client requests, processed serially.
	Actions chan inboundAction

	// Broadcast delivers a message to the room's group from outside the
	// run loop. Handlers inside the loop call deliver directly.
	Broadcast chan *OutMessage

	store  persistence.Persister
	queue  *queue.Manager
	lc     *lifecycle.Manager
	router *Router
	names  *lru.Cache[string, string]
	logger hclog.Logger

	// last player status seen in this room, replayed on connect; the
	// hash skips re-broadcasting identical reports
	lastPlayerStatus     *types.PlayerStatus
	lastPlayerStatusHash uint64

	done chan struct{}

	// mutex for manipulating the clients map
	sync.RWMutex
}

func NewHub(room *types.Room, store persistence.Persister, queueMgr *queue.Manager, lc *lifecycle.Manager, router *Router, names *lru.Cache[string, string], logger hclog.Logger) *Hub {
	return &Hub{
		Room:       room,
		clients:    make(map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Actions:    make(chan inboundAction, actionChannelSize),
		Broadcast:  make(chan *OutMessage, broadcastChannelSize),
		store:      store,
		queue:      queueMgr,
		lc:         lc,
		router:     router,
		names:      names,
		logger:     logger.With("room", room.Id, "group", RoomGroupPrefix+room.Id),
		done:       make(chan struct{}),
	}
}

// NoClients returns the number of clients registered.
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Send enqueues a broadcast from outside the run loop.
func (h *Hub) Send(msg *OutMessage) {
	select {
	case h.Broadcast <- msg:
	case <-h.done:
	}
}

// Stop terminates the run loop and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)
	h.Lock()
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
	h.Unlock()
}

// Run is the main hub event loop handling register, unregister, action and
// broadcast events.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.dropClient(client)

		case action := <-h.Actions:
			h.router.Dispatch(h, action.client, action.msg)

		case msg := <-h.Broadcast:
			h.deliver(msg)

		case <-h.done:
			return
		}
	}
}

func (h *Hub) register(client *Client) {
	h.logger.Debug("register new client", "user", client.claims.UserId)
	h.Lock()
	h.clients[client] = struct{}{}
	h.Unlock()
	if h.Room.Id == "" {
		h.replay(client)
		return
	}
	h.refreshRoom()
	if h.lc != nil {
		h.lc.RoomJoined(h.Room.Id)
	}
	h.touchActivity()
	h.replay(client)
}

// refreshRoom picks up store-side room changes, e.g. an admin API update
// made while the hub was already running.
func (h *Hub) refreshRoom() {
	room := types.Room{Id: h.Room.Id}
	if err := h.store.GetRoom(&room); err != nil {
		h.logger.Warn("could not refresh room", "error", err)
		return
	}
	*h.Room = room
}

func (h *Hub) dropClient(client *Client) {
	h.Lock()
	if _, ok := h.clients[client]; !ok {
		h.Unlock()
		return
	}
	delete(h.clients, client)
	remaining := len(h.clients)
	h.Unlock()
	client.close()
	h.logger.Debug("unregistered client", "user", client.claims.UserId, "remaining", remaining)

	if client.isPlayer && !h.hasPlayer() {
		data, err := types.NewWireMessage(types.PushPlayerLeft, types.PlayerLeftPush{RoomId: h.Room.Id, At: time.Now()})
		if err == nil {
			h.deliver(&OutMessage{Data: data})
		}
		h.lastPlayerStatus = nil
		h.lastPlayerStatusHash = 0
	}
	if remaining == 0 && h.lc != nil && h.Room.Id != "" {
		h.lc.RoomEmptied(h.Room)
	}
}

func (h *Hub) hasPlayer() bool {
	h.RLock()
	defer h.RUnlock()
	for client := range h.clients {
		if client.isPlayer {
			return true
		}
	}
	return false
}

// deliver fans a message out to the group synchronously, so two deliveries
// from the run loop reach every client in the same order.
func (h *Hub) deliver(msg *OutMessage) {
	prog := compileFilter(msg.TargetFilter, h.logger)
	h.RLock()
	defer h.RUnlock()
	for client := range h.clients {
		if client == msg.Origin {
			continue
		}
		if !client.runFilter(msg, prog) {
			continue
		}
		client.enqueue(msg.Data)
	}
}

// replay brings a freshly registered client up to date: room preferences
// for managers, library and star snapshots when the client's cached
// versions are stale, the ordered queue and the room's last player status.
func (h *Hub) replay(client *Client) {
	if h.Room.Id != "" && (client.claims.IsAdmin || client.claims.UserId == h.Room.OwnerId) {
		if data, err := types.NewWireMessage(types.PushRoomPrefs, types.RoomPrefsPayload{Prefs: h.Room.Prefs}); err == nil {
			client.enqueue(data)
		}
	}

	libVersion, err := h.store.LibraryVersion()
	if err != nil {
		h.logger.Error("could not read library version", "error", err)
	} else if libVersion != client.libraryVersion {
		songs, err := h.store.GetSongs()
		if err != nil {
			h.logger.Error("could not load song library", "error", err)
		} else if data, err := types.NewWireMessage(types.PushLibrary, types.LibraryPush{Songs: songs, Version: libVersion}); err == nil {
			client.enqueue(data)
		}
	}

	starVersion, err := h.store.StarVersion(client.claims.UserId)
	if err != nil {
		h.logger.Error("could not read star version", "user", client.claims.UserId, "error", err)
	} else if starVersion != client.starVersion {
		stars, err := h.store.GetStars(client.claims.UserId)
		if err != nil {
			h.logger.Error("could not load stars", "user", client.claims.UserId, "error", err)
		} else if data, err := types.NewWireMessage(types.PushStars, types.StarsPush{SongIds: stars, Version: starVersion}); err == nil {
			client.enqueue(data)
		}
	}

	// lobby connections get the catalog snapshots only
	if h.Room.Id == "" {
		return
	}

	if data, err := h.queuePushMessage(); err == nil {
		client.enqueue(data)
	} else {
		h.logger.Error("could not build queue snapshot", "error", err)
	}

	if h.lastPlayerStatus != nil {
		if data, err := types.NewWireMessage(types.ActionPlayerStatus, h.lastPlayerStatus); err == nil {
			client.enqueue(data)
		}
	}
}

// broadcastQueue pushes the current queue view to the whole group. Called
// from handlers inside the run loop after every queue mutation.
func (h *Hub) broadcastQueue() {
	data, err := h.queuePushMessage()
	if err != nil {
		h.logger.Error("could not build queue push", "error", err)
		return
	}
	h.deliver(&OutMessage{Data: data})
}

func (h *Hub) queuePushMessage() ([]byte, error) {
	items, err := h.store.GetQueue(h.Room.Id)
	if err != nil {
		return nil, err
	}
	view := types.QueueView{RoomId: h.Room.Id, Items: make([]*types.QueueItemView, 0, len(items))}
	for _, item := range items {
		view.Items = append(view.Items, &types.QueueItemView{QueueItem: item, SingerName: h.singerName(item.UserId)})
	}
	return types.NewWireMessage(types.PushQueue, view)
}

func (h *Hub) singerName(userId string) string {
	if name, ok := h.names.Get(userId); ok {
		return name
	}
	user := types.User{Id: userId}
	if err := h.store.GetUser(&user); err != nil {
		h.logger.Warn("could not resolve singer name", "user", userId, "error", err)
		return ""
	}
	h.names.Add(userId, user.Name)
	return user.Name
}

// touchActivity refreshes the room's idle timestamp.
func (h *Hub) touchActivity() {
	if h.Room.Id == "" {
		return
	}
	now := time.Now()
	h.Room.LastActivity = now
	if err := h.store.TouchRoom(h.Room.Id, now); err != nil {
		h.logger.Warn("could not update room activity", "error", err)
	}
}

// playerStatusChanged records a fresh report and tells whether it differs
// from the previous one; identical consecutive reports are not rebroadcast.
func (h *Hub) playerStatusChanged(status *types.PlayerStatus) bool {
	hash, err := hashstructure.Hash(status, hashstructure.FormatV2, nil)
	if err != nil {
		h.lastPlayerStatus = status
		return true
	}
	changed := hash != h.lastPlayerStatusHash
	h.lastPlayerStatus = status
	h.lastPlayerStatusHash = hash
	return changed
}

func mustWireMessage(typ string, payload interface{}) []byte {
	data, err := types.NewWireMessage(typ, payload)
	if err != nil {
		data, _ = json.Marshal(types.WireMessage{Type: typ})
	}
	return data
}
