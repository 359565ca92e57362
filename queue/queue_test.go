package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

func newTestManager(t *testing.T) (*Manager, persistence.Persister) {
	t.Helper()
	cfg := &config.Config{Persistence: config.PersistenceConfig{Type: "buntdb", DSN: ":memory:"}}
	store, err := persistence.NewBuntPersister(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.StoreSong(types.Song{Id: "5", Artist: "Queen", Title: "Somebody to Love"}))
	require.NoError(t, store.StoreSong(types.Song{Id: "9", Artist: "ABBA", Title: "SOS"}))
	return NewManager(store), store
}

func queueIds(t *testing.T, store persistence.Persister, roomId string) []string {
	t.Helper()
	items, err := store.GetQueue(roomId)
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Id)
	}
	return ids
}

func TestAddAssignsIncreasingKeys(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.Add("7", "5", "42", nil)
	require.NoError(t, err)
	assert.Equal(t, "a0", first.OrderKey)

	second, err := m.Add("7", "9", "42", nil)
	require.NoError(t, err)
	assert.Greater(t, second.OrderKey, first.OrderKey)
}

func TestAddUnknownSong(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Add("7", "nope", "42", nil)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestMoveToFront(t *testing.T) {
	m, store := newTestManager(t)

	first, err := m.Add("7", "5", "42", nil)
	require.NoError(t, err)
	second, err := m.Add("7", "9", "42", nil)
	require.NoError(t, err)

	moved, err := m.Move("7", second.Id, "")
	require.NoError(t, err)
	assert.Less(t, moved.OrderKey, first.OrderKey)
	assert.Equal(t, []string{second.Id, first.Id}, queueIds(t, store, "7"))

	// the untouched item keeps its original key
	got := types.QueueItem{Id: first.Id}
	require.NoError(t, store.GetQueueItem(&got))
	assert.Equal(t, first.OrderKey, got.OrderKey)
}

func TestMoveAfter(t *testing.T) {
	m, store := newTestManager(t)

	a, _ := m.Add("7", "5", "42", nil)
	b, _ := m.Add("7", "9", "42", nil)
	c, _ := m.Add("7", "5", "43", nil)

	// move a after b: b, a, c
	_, err := m.Move("7", a.Id, b.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{b.Id, a.Id, c.Id}, queueIds(t, store, "7"))

	// moving an item after its direct predecessor is a no-op error
	_, err = m.Move("7", c.Id, a.Id)
	assert.ErrorIs(t, err, ErrSamePosition)
}

func TestMoveNoOps(t *testing.T) {
	m, _ := newTestManager(t)

	only, err := m.Add("7", "5", "42", nil)
	require.NoError(t, err)

	// a queue of one: moving the single item anywhere is a no-op
	_, err = m.Move("7", only.Id, "")
	assert.ErrorIs(t, err, ErrSamePosition)

	// moving relative to itself
	_, err = m.Move("7", only.Id, only.Id)
	assert.ErrorIs(t, err, ErrSamePosition)
}

func TestMoveUnknownIds(t *testing.T) {
	m, _ := newTestManager(t)
	item, err := m.Add("7", "5", "42", nil)
	require.NoError(t, err)

	_, err = m.Move("7", "missing", "")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	// inserting after a non-existent id is a not-found error, not ignored
	_, err = m.Move("7", item.Id, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestRemoveLeavesSiblingsAlone(t *testing.T) {
	m, store := newTestManager(t)

	a, _ := m.Add("7", "5", "42", nil)
	b, _ := m.Add("7", "9", "42", nil)
	c, _ := m.Add("7", "5", "43", nil)

	require.NoError(t, m.Remove(b.Id))
	assert.Equal(t, []string{a.Id, c.Id}, queueIds(t, store, "7"))

	got := types.QueueItem{Id: c.Id}
	require.NoError(t, store.GetQueueItem(&got))
	assert.Equal(t, c.OrderKey, got.OrderKey)

	assert.ErrorIs(t, m.Remove(b.Id), persistence.ErrNotFound)
}

func TestIsOwner(t *testing.T) {
	m, _ := newTestManager(t)

	mine, _ := m.Add("7", "5", "42", nil)
	theirs, _ := m.Add("7", "9", "55", nil)

	ok, err := m.IsOwner("42", false, mine.Id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.IsOwner("42", false, theirs.Id)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.IsOwner("42", false, mine.Id, theirs.Id)
	require.NoError(t, err)
	assert.False(t, ok)

	// admin bypass
	ok, err = m.IsOwner("1", true, theirs.Id)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = m.IsOwner("42", false, "missing")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
