// Package queue maintains the per-room singing queue on top of fractional
// order keys: adds and removes never renumber siblings, so concurrent
// mutations from different users never need a global lock.
package queue

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/karaokehub/karaokehub/orderkey"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

// ErrSamePosition rejects a move that would leave the item where it is.
var ErrSamePosition = errors.New("item is already at the requested position")

type Manager struct {
	store persistence.Persister
}

func NewManager(store persistence.Persister) *Manager {
	return &Manager{store: store}
}

// Add appends a song to the end of the room's queue: the new key is
// strictly greater than the current maximum, no existing row is touched.
func (m *Manager) Add(roomId, songId, userId string, coSingers []string) (*types.QueueItem, error) {
	song := types.Song{Id: songId}
	if err := m.store.GetSong(&song); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, fmt.Errorf("unknown song %q: %w", songId, persistence.ErrNotFound)
		}
		return nil, err
	}
	maxKey, err := m.store.MaxOrderKey(roomId)
	if err != nil {
		return nil, err
	}
	key := orderkey.First()
	if maxKey != "" {
		key, err = orderkey.After(maxKey)
		if err != nil {
			return nil, err
		}
	}
	item := types.QueueItem{
		Id:        uuid.NewString(),
		RoomId:    roomId,
		SongId:    songId,
		UserId:    userId,
		OrderKey:  key,
		CoSingers: datatypes.JSONSlice[string](coSingers),
	}
	if err := m.store.InsertQueueItem(item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Move places queueId directly after afterId; an empty afterId moves it to
// the front. Only the moved row's key changes.
func (m *Manager) Move(roomId, queueId, afterId string) (*types.QueueItem, error) {
	if afterId == queueId {
		return nil, ErrSamePosition
	}
	items, err := m.store.GetQueue(roomId)
	if err != nil {
		return nil, err
	}
	var moving *types.QueueItem
	for _, item := range items {
		if item.Id == queueId {
			moving = item
			break
		}
	}
	if moving == nil {
		return nil, fmt.Errorf("unknown queue item %q: %w", queueId, persistence.ErrNotFound)
	}

	prevKey, nextKey := "", ""
	if afterId == "" {
		// move to the very front; the next neighbor is the first item
		// that is not the one being moved
		for _, item := range items {
			if item.Id != queueId {
				nextKey = item.OrderKey
				break
			}
		}
	} else {
		afterIdx := -1
		for i, item := range items {
			if item.Id == afterId {
				afterIdx = i
				break
			}
		}
		if afterIdx < 0 {
			return nil, fmt.Errorf("unknown queue item %q: %w", afterId, persistence.ErrNotFound)
		}
		prevKey = items[afterIdx].OrderKey
		for _, item := range items[afterIdx+1:] {
			if item.Id != queueId {
				nextKey = item.OrderKey
				break
			}
		}
	}

	// already between the target neighbors, including the queue-of-one case
	if moving.OrderKey > prevKey && (nextKey == "" || moving.OrderKey < nextKey) {
		return nil, ErrSamePosition
	}

	newKey, err := orderkey.Between(prevKey, nextKey)
	if err != nil {
		return nil, err
	}
	if err := m.store.UpdateQueueItemKey(queueId, newKey); err != nil {
		return nil, err
	}
	moved := *moving
	moved.OrderKey = newKey
	return &moved, nil
}

// Remove deletes the row; sibling keys are untouched.
func (m *Manager) Remove(queueId string) error {
	return m.store.DeleteQueueItem(queueId)
}

// IsOwner is the batch ownership check gating move/remove requests. Admins
// bypass it.
func (m *Manager) IsOwner(userId string, isAdmin bool, queueIds ...string) (bool, error) {
	if isAdmin {
		return true, nil
	}
	owners, err := m.store.QueueOwners(queueIds)
	if err != nil {
		return false, err
	}
	for _, id := range queueIds {
		owner, ok := owners[id]
		if !ok {
			return false, fmt.Errorf("unknown queue item %q: %w", id, persistence.ErrNotFound)
		}
		if owner != userId {
			return false, nil
		}
	}
	return true, nil
}
