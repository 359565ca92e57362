// Package lifecycle owns room creation and deletion timing: lazily created
// ephemeral rooms, the grace-period delete after the last connection drops,
// and the cron idle sweep that catches rooms crashed clients never left
// cleanly.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

// Presence reports the number of live connections in a room's broadcast
// group; implemented by the hub registry.
type Presence interface {
	LiveConnections(roomId string) int
}

type Config struct {
	GracePeriod   time.Duration
	IdleThreshold time.Duration
	// SweepSpec is a cron spec, e.g. "@every 30m".
	SweepSpec string
	// DefaultPrefs seeds the preference bag of new ephemeral rooms.
	DefaultPrefs types.Prefs
}

// pendingCleanup is one scheduled grace-period deletion. The generation is
// compared at fire time: a reschedule or cancellation bumps it, so a timer
// callback that lost the race against Stop is a no-op.
type pendingCleanup struct {
	generation uint64
	timer      *time.Timer
	fireAt     time.Time
}

type Manager struct {
	store    persistence.Persister
	presence Presence
	cfg      Config
	logger   hclog.Logger

	mu         sync.Mutex
	pending    map[string]*pendingCleanup
	generation uint64

	cronRunner *cron.Cron

	// purgeGuests is the best-effort external cleanup of guest accounts
	// bound to a deleted room; failures never block the deletion.
	purgeGuests func(roomId string) error
	onDeleted   func(roomId string)
}

func NewManager(store persistence.Persister, presence Presence, cfg Config, logger hclog.Logger) *Manager {
	m := &Manager{
		store:    store,
		presence: presence,
		cfg:      cfg,
		logger:   logger,
		pending:  make(map[string]*pendingCleanup),
	}
	m.purgeGuests = m.defaultGuestPurge
	return m
}

// SetGuestPurger replaces the default (store-backed) guest cleanup with an
// external collaborator.
func (m *Manager) SetGuestPurger(fn func(roomId string) error) {
	m.purgeGuests = fn
}

// OnRoomDeleted registers a hook invoked after a room has been deleted,
// used by the hub registry to drop the room's broadcast group.
func (m *Manager) OnRoomDeleted(fn func(roomId string)) {
	m.onDeleted = fn
}

// Start launches the idle sweep schedule.
func (m *Manager) Start() error {
	runner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := runner.AddFunc(m.cfg.SweepSpec, m.Sweep); err != nil {
		return fmt.Errorf("invalid idle sweep spec %q: %w", m.cfg.SweepSpec, err)
	}
	runner.Start()
	m.cronRunner = runner
	return nil
}

func (m *Manager) Stop() {
	if m.cronRunner != nil {
		m.cronRunner.Stop()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for roomId, entry := range m.pending {
		entry.timer.Stop()
		delete(m.pending, roomId)
	}
}

// CreateEphemeral returns the standard user's own room, creating it on
// first need. Idempotent per owner: a second call while one exists returns
// the existing room.
func (m *Manager) CreateEphemeral(owner *types.User) (*types.Room, error) {
	rooms, err := m.store.GetRooms()
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if room.Ephemeral && room.OwnerId == owner.Id {
			return room, nil
		}
	}
	room := &types.Room{
		Id:           uuid.NewString(),
		Name:         owner.Name + "'s Room",
		Status:       types.RoomStatusOpen,
		OwnerId:      owner.Id,
		Ephemeral:    true,
		InviteToken:  uuid.NewString(),
		Prefs:        m.cfg.DefaultPrefs,
		LastActivity: time.Now(),
	}
	if err := m.store.StoreRoom(*room); err != nil {
		return nil, err
	}
	m.logger.Info("created ephemeral room", "room", room.Id, "owner", owner.Id)
	return room, nil
}

// RoomEmptied is called by the session layer when a room's broadcast group
// reaches zero connections. It schedules the grace-period deletion for
// ephemeral rooms.
func (m *Manager) RoomEmptied(room *types.Room) {
	if room == nil || !room.Ephemeral {
		return
	}
	if m.presence.LiveConnections(room.Id) > 0 {
		return
	}
	m.ScheduleCleanup(room.Id)
}

// RoomJoined cancels any pending grace-period deletion for the room.
func (m *Manager) RoomJoined(roomId string) {
	m.CancelCleanup(roomId)
}

// ScheduleCleanup arms the grace-period deletion for a room. A second
// schedule for the same room replaces the first: the old timer is stopped
// and its generation invalidated, so at most one deletion is outstanding
// per room id.
func (m *Manager) ScheduleCleanup(roomId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.pending[roomId]; ok {
		entry.timer.Stop()
	}
	m.generation++
	gen := m.generation
	entry := &pendingCleanup{
		generation: gen,
		fireAt:     time.Now().Add(m.cfg.GracePeriod),
	}
	entry.timer = time.AfterFunc(m.cfg.GracePeriod, func() {
		m.fire(roomId, gen)
	})
	m.pending[roomId] = entry
	m.logger.Debug("scheduled room cleanup", "room", roomId, "fire_at", entry.fireAt)
}

func (m *Manager) CancelCleanup(roomId string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.pending[roomId]; ok {
		entry.timer.Stop()
		delete(m.pending, roomId)
		m.logger.Debug("canceled room cleanup", "room", roomId)
	}
}

// HasPending reports whether a grace-period deletion is outstanding.
func (m *Manager) HasPending(roomId string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[roomId]
	return ok
}

func (m *Manager) fire(roomId string, gen uint64) {
	m.mu.Lock()
	entry, ok := m.pending[roomId]
	if !ok || entry.generation != gen {
		// canceled or replaced while the callback was queued
		m.mu.Unlock()
		return
	}
	delete(m.pending, roomId)
	m.mu.Unlock()

	// scheduling and firing are not atomic: re-check the live count
	if m.presence.LiveConnections(roomId) > 0 {
		return
	}
	if err := m.DeleteRoom(roomId); err != nil {
		m.logger.Error("grace-period room deletion failed", "room", roomId, "error", err)
	}
}

// Sweep deletes ephemeral rooms whose last activity exceeds the idle
// threshold and which currently have zero connections. It is the backstop
// for rooms nobody ever left cleanly.
func (m *Manager) Sweep() {
	rooms, err := m.store.GetRooms()
	if err != nil {
		m.logger.Error("idle sweep could not list rooms", "error", err)
		return
	}
	cutoff := time.Now().Add(-m.cfg.IdleThreshold)
	for _, room := range rooms {
		if !room.Ephemeral || room.LastActivity.After(cutoff) {
			continue
		}
		if m.presence.LiveConnections(room.Id) > 0 {
			continue
		}
		if err := m.DeleteRoom(room.Id); err != nil {
			m.logger.Error("idle sweep deletion failed", "room", room.Id, "error", err)
		}
	}
}

// DeleteRoom removes the room, its queue and (best effort) its guest
// accounts. Deleting an already-deleted room is a no-op, so the idle sweep
// and a grace-period timer may safely target the same room.
func (m *Manager) DeleteRoom(roomId string) error {
	m.CancelCleanup(roomId)
	room := types.Room{Id: roomId}
	if err := m.store.GetRoom(&room); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := m.store.DeleteQueueForRoom(roomId); err != nil {
		return err
	}
	if err := m.store.DeleteRoom(roomId); err != nil {
		return err
	}
	if err := m.purgeGuests(roomId); err != nil {
		m.logger.Warn("guest cleanup failed after room deletion", "room", roomId, "error", err)
	}
	if m.onDeleted != nil {
		m.onDeleted(roomId)
	}
	m.logger.Info("deleted room", "room", roomId, "ephemeral", room.Ephemeral)
	return nil
}

func (m *Manager) defaultGuestPurge(roomId string) error {
	guests, err := m.store.GetRoomGuests(roomId)
	if err != nil {
		return err
	}
	for _, guest := range guests {
		if err := m.store.DeleteUser(guest.Id); err != nil {
			m.logger.Warn("could not delete guest account", "user", guest.Id, "error", err)
		}
	}
	return nil
}
