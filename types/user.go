package types

import "time"

const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
	RoleGuest    = "guest"
)

type User struct {
	Id           string `json:"id" gorm:"primaryKey"`
	Username     string `json:"username" gorm:"uniqueIndex"`
	Name         string `json:"name"` // display name
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
	// RoomId binds guest accounts to the room they joined. Empty for
	// admin and standard users.
	RoomId    string    `json:"room_id,omitempty" gorm:"index"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

func (u *User) IsGuest() bool { return u.Role == RoleGuest }
