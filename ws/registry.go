package ws

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/karaokehub/karaokehub/lifecycle"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/queue"
	"github.com/karaokehub/karaokehub/types"
)

const singerNameCacheSize = 512

// Registry is the process-scoped map of room id to running hub. It also
// answers the presence question for the lifecycle manager.
type Registry struct {
	store  persistence.Persister
	queue  *queue.Manager
	router *Router
	names  *lru.Cache[string, string]
	logger hclog.Logger

	lc *lifecycle.Manager

	mu   sync.RWMutex
	hubs map[string]*Hub
}

func NewRegistry(store persistence.Persister, queueMgr *queue.Manager, logger hclog.Logger) *Registry {
	names, _ := lru.New[string, string](singerNameCacheSize)
	return &Registry{
		store:  store,
		queue:  queueMgr,
		router: DefaultRouter(logger),
		names:  names,
		logger: logger,
		hubs:   make(map[string]*Hub),
	}
}

// SetLifecycle wires the lifecycle manager in after construction; the
// manager needs the registry as its presence source, so the two are
// created in sequence.
func (r *Registry) SetLifecycle(lc *lifecycle.Manager) {
	r.lc = lc
}

// GetOrCreate returns the room's hub, starting a fresh run loop when the
// room has no hub yet.
func (r *Registry) GetOrCreate(room *types.Room) *Hub {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hub, ok := r.hubs[room.Id]; ok {
		return hub
	}
	hub := NewHub(room, r.store, r.queue, r.lc, r.router, r.names, r.logger)
	r.hubs[room.Id] = hub
	go hub.Run()
	return hub
}

// Lobby returns the hub for connections without a room: admins browsing
// the catalog. Lobby clients join no room group but still receive the
// library pushes sent to every hub.
func (r *Registry) Lobby() *Hub {
	return r.GetOrCreate(&types.Room{})
}

func (r *Registry) Get(roomId string) *Hub {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hubs[roomId]
}

// Drop stops and removes a room's hub, disconnecting its clients. Invoked
// via the lifecycle deletion hook.
func (r *Registry) Drop(roomId string) {
	r.mu.Lock()
	hub, ok := r.hubs[roomId]
	delete(r.hubs, roomId)
	r.mu.Unlock()
	if ok {
		hub.Stop()
	}
}

// LiveConnections implements lifecycle.Presence.
func (r *Registry) LiveConnections(roomId string) int {
	hub := r.Get(roomId)
	if hub == nil {
		return 0
	}
	return hub.NoClients()
}

// InvalidateName drops a cached singer display name after a rename.
func (r *Registry) InvalidateName(userId string) {
	r.names.Remove(userId)
}

// BroadcastAll sends a message to every room's group, e.g. a library push
// after a catalog change.
func (r *Registry) BroadcastAll(data []byte) {
	r.mu.RLock()
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, hub := range r.hubs {
		hubs = append(hubs, hub)
	}
	r.mu.RUnlock()
	for _, hub := range hubs {
		hub.Send(&OutMessage{Data: data})
	}
}
