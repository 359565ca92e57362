package types

import "time"

const (
	RoomStatusOpen   = "open"
	RoomStatusClosed = "closed"
)

// A Room is identified with one hub; persistent rooms are provisioned by an
// admin, ephemeral rooms are created on a standard user's first login and
// are eligible for automatic cleanup once empty.
type Room struct {
	Id     string `json:"id" gorm:"primaryKey"`
	Name   string `json:"name"`
	Status string `json:"status"`
	// OwnerId is empty for admin-provisioned shared rooms.
	OwnerId      string    `json:"owner_id,omitempty" gorm:"index"`
	Ephemeral    bool      `json:"ephemeral"`
	InviteToken  string    `json:"-" gorm:"uniqueIndex"`
	Prefs        Prefs     `json:"prefs" gorm:"type:json"`
	PasswordHash string    `json:"-"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

func (r *Room) IsOpen() bool { return r.Status == RoomStatusOpen }
