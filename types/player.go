package types

// PlayerStatus is the periodic payload a room's player client reports. The
// most recent one seen in a room is replayed to newly connected clients.
type PlayerStatus struct {
	QueueId      string  `json:"queue_id" mapstructure:"queue_id"`
	Position     float64 `json:"position" mapstructure:"position"` // seconds into the song
	IsPlaying    bool    `json:"is_playing" mapstructure:"is_playing"`
	IsAtQueueEnd bool    `json:"is_at_queue_end" mapstructure:"is_at_queue_end"`
	Volume       float64 `json:"volume" mapstructure:"volume"`
	Visualizer   string  `json:"visualizer,omitempty" mapstructure:"visualizer"`
}
