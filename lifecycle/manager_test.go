package lifecycle

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

type fakePresence struct {
	mu   sync.Mutex
	live map[string]int
}

func (f *fakePresence) set(roomId string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live == nil {
		f.live = make(map[string]int)
	}
	f.live[roomId] = n
}

func (f *fakePresence) LiveConnections(roomId string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[roomId]
}

func newTestManager(t *testing.T, grace time.Duration) (*Manager, persistence.Persister, *fakePresence) {
	t.Helper()
	cfg := &config.Config{Persistence: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}}
	store, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	presence := &fakePresence{}
	m := NewManager(store, presence, Config{
		GracePeriod:   grace,
		IdleThreshold: time.Hour,
		SweepSpec:     "@every 1h",
		DefaultPrefs:  types.Prefs{AllowQueueAdd: true},
	}, hclog.NewNullLogger())
	t.Cleanup(m.Stop)
	return m, store, presence
}

func TestCreateEphemeralIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	owner := &types.User{Id: "42", Username: "alice", Name: "Alice"}

	room, err := m.CreateEphemeral(owner)
	require.NoError(t, err)
	assert.True(t, room.Ephemeral)
	assert.Equal(t, "42", room.OwnerId)
	assert.Equal(t, "Alice's Room", room.Name)
	assert.True(t, room.Prefs.AllowQueueAdd)
	assert.NotEmpty(t, room.InviteToken)

	again, err := m.CreateEphemeral(owner)
	require.NoError(t, err)
	assert.Equal(t, room.Id, again.Id)
}

func TestGracePeriodDeletesRoomAndDependents(t *testing.T) {
	m, store, _ := newTestManager(t, 20*time.Millisecond)
	room, err := m.CreateEphemeral(&types.User{Id: "42", Name: "Alice"})
	require.NoError(t, err)
	require.NoError(t, store.StoreSong(types.Song{Id: "5"}))
	require.NoError(t, store.InsertQueueItem(types.QueueItem{Id: "q1", RoomId: room.Id, SongId: "5", UserId: "42", OrderKey: "a0"}))
	require.NoError(t, store.StoreUser(types.User{Id: "g1", Username: "guest-1", Role: types.RoleGuest, RoomId: room.Id}))

	m.RoomEmptied(room)
	assert.True(t, m.HasPending(room.Id))

	require.Eventually(t, func() bool {
		got := types.Room{Id: room.Id}
		return errors.Is(store.GetRoom(&got), persistence.ErrNotFound)
	}, time.Second, 5*time.Millisecond)

	items, err := store.GetQueue(room.Id)
	require.NoError(t, err)
	assert.Empty(t, items)
	guests, err := store.GetRoomGuests(room.Id)
	require.NoError(t, err)
	assert.Empty(t, guests)
	assert.False(t, m.HasPending(room.Id))
}

func TestRescheduleReplacesPending(t *testing.T) {
	m, _, _ := newTestManager(t, 20*time.Millisecond)
	room, err := m.CreateEphemeral(&types.User{Id: "42", Name: "Alice"})
	require.NoError(t, err)

	var deletions atomic.Int32
	m.OnRoomDeleted(func(string) { deletions.Add(1) })

	m.ScheduleCleanup(room.Id)
	m.ScheduleCleanup(room.Id)

	require.Eventually(t, func() bool {
		return deletions.Load() > 0
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), deletions.Load())
}

func TestReconnectCancelsCleanup(t *testing.T) {
	m, store, _ := newTestManager(t, 20*time.Millisecond)
	room, err := m.CreateEphemeral(&types.User{Id: "42", Name: "Alice"})
	require.NoError(t, err)

	m.RoomEmptied(room)
	m.RoomJoined(room.Id)
	assert.False(t, m.HasPending(room.Id))

	time.Sleep(60 * time.Millisecond)
	got := types.Room{Id: room.Id}
	assert.NoError(t, store.GetRoom(&got))
}

func TestFireRechecksLiveConnections(t *testing.T) {
	m, store, presence := newTestManager(t, 20*time.Millisecond)
	room, err := m.CreateEphemeral(&types.User{Id: "42", Name: "Alice"})
	require.NoError(t, err)

	m.ScheduleCleanup(room.Id)
	// someone connects after scheduling but the cancel never arrives
	presence.set(room.Id, 1)

	require.Eventually(t, func() bool {
		return !m.HasPending(room.Id)
	}, time.Second, 5*time.Millisecond)
	got := types.Room{Id: room.Id}
	assert.NoError(t, store.GetRoom(&got))
}

func TestRoomEmptiedIgnoresPersistentRooms(t *testing.T) {
	m, store, _ := newTestManager(t, 20*time.Millisecond)
	room := types.Room{Id: "shared", Name: "Main Stage", Status: types.RoomStatusOpen}
	require.NoError(t, store.StoreRoom(room))

	m.RoomEmptied(&room)
	assert.False(t, m.HasPending(room.Id))
}

func TestDeleteRoomIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	assert.NoError(t, m.DeleteRoom("never-existed"))
}

func TestSweep(t *testing.T) {
	m, store, presence := newTestManager(t, time.Minute)
	stale := time.Now().Add(-2 * time.Hour)

	require.NoError(t, store.StoreRoom(types.Room{Id: "idle", Ephemeral: true, LastActivity: stale}))
	require.NoError(t, store.StoreRoom(types.Room{Id: "busy", Ephemeral: true, LastActivity: stale}))
	require.NoError(t, store.StoreRoom(types.Room{Id: "fresh", Ephemeral: true, LastActivity: time.Now()}))
	require.NoError(t, store.StoreRoom(types.Room{Id: "shared", LastActivity: stale}))
	presence.set("busy", 2)

	m.Sweep()

	gone := types.Room{Id: "idle"}
	assert.ErrorIs(t, store.GetRoom(&gone), persistence.ErrNotFound)
	for _, id := range []string{"busy", "fresh", "shared"} {
		got := types.Room{Id: id}
		assert.NoError(t, store.GetRoom(&got), id)
	}
}
