package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/types"
)

// ErrNotFound is returned for lookups of missing rows, regardless of the
// backend in use.
var ErrNotFound = errors.New("not found")

type Persister interface {
	StoreRoom(types.Room) error
	GetRoom(*types.Room) error
	GetRooms() ([]*types.Room, error)
	// DeleteRoom is idempotent: deleting a missing room is not an error.
	DeleteRoom(roomId string) error
	TouchRoom(roomId string, ts time.Time) error

	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUserByUsername(username string) (*types.User, error)
	GetUsers() ([]*types.User, error)
	DeleteUser(userId string) error
	GetRoomGuests(roomId string) ([]*types.User, error)

	InsertQueueItem(types.QueueItem) error
	// GetQueue returns the room's queue ordered by order key.
	GetQueue(roomId string) ([]*types.QueueItem, error)
	GetQueueItem(*types.QueueItem) error
	UpdateQueueItemKey(queueId, orderKey string) error
	DeleteQueueItem(queueId string) error
	DeleteQueueForRoom(roomId string) error
	// MaxOrderKey returns the empty string for an empty queue.
	MaxOrderKey(roomId string) (string, error)
	// QueueOwners maps queue item id to singer user id for a batch
	// ownership check.
	QueueOwners(queueIds []string) (map[string]string, error)

	StoreSong(types.Song) error
	GetSong(*types.Song) error
	GetSongs() ([]*types.Song, error)
	LibraryVersion() (int64, error)

	AddStar(userId, songId string) error
	RemoveStar(userId, songId string) error
	GetStars(userId string) ([]string, error)
	StarVersion(userId string) (int64, error)

	Close() error
}

// NewPersister picks the backend from the configuration. gorm covers the
// SQL engines, buntdb covers the embedded file (or :memory:) store.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.Persistence.Type {
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	case "buntdb", "":
		return NewBuntPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.Persistence.Type)
}

const (
	counterLibrary    = "library"
	counterStarPrefix = "stars:"
)
