package types

import "time"

// Song is the minimal catalog row the core needs: queue adds are validated
// against it and the library snapshot is built from it. Media scanning and
// file handling live outside this process.
type Song struct {
	Id        string    `json:"id" gorm:"primaryKey"`
	Artist    string    `json:"artist"`
	Title     string    `json:"title"`
	Duration  float64   `json:"duration"` // seconds
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Star marks a song as starred by a user.
type Star struct {
	UserId    string    `json:"user_id" gorm:"primaryKey"`
	SongId    string    `json:"song_id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"-"`
}

// Counter backs the monotonically increasing library/star version counters;
// clients send their cached version on connect to skip redundant snapshots.
type Counter struct {
	Name  string `gorm:"primaryKey"`
	Value int64
}
