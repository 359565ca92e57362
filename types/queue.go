package types

import (
	"time"

	"gorm.io/datatypes"
)

// QueueItem is one entry in a room's singing queue. OrderKey is an opaque
// fractional-index string; comparing two keys as plain strings yields play
// order, and inserts never renumber siblings.
type QueueItem struct {
	Id        string                      `json:"id" gorm:"primaryKey"`
	RoomId    string                      `json:"room_id" gorm:"index:idx_room_key,unique"`
	SongId    string                      `json:"song_id"`
	UserId    string                      `json:"user_id" gorm:"index"` // singer
	OrderKey  string                      `json:"order_key" gorm:"index:idx_room_key,unique"`
	CoSingers datatypes.JSONSlice[string] `json:"co_singers,omitempty"`
	CreatedAt time.Time                   `json:"-"`
}

// QueueView is the per-room queue as broadcast to clients, ordered by key,
// with singer display names resolved.
type QueueView struct {
	RoomId string           `json:"room_id"`
	Items  []*QueueItemView `json:"items"`
}

type QueueItemView struct {
	*QueueItem
	SingerName string `json:"singer_name"`
}
