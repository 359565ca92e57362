package types

import (
	"encoding/json"
	"time"
)

// Action type strings carried in the wire envelope. Acknowledgments append
// SuffixSuccess / SuffixError to the request type.
const (
	ActionQueueAdd    = "QUEUE_ADD"
	ActionQueueMove   = "QUEUE_MOVE"
	ActionQueueRemove = "QUEUE_REMOVE"

	ActionRoomPrefsPush = "ROOM_PREFS_PUSH"
	ActionRoomStatusSet = "ROOM_STATUS_SET"

	ActionStarSong   = "STAR_SONG"
	ActionUnstarSong = "UNSTAR_SONG"

	ActionPlayerStatus    = "PLAYER_STATUS"
	ActionPlayerCmdPlay   = "PLAYER_CMD_PLAY"
	ActionPlayerCmdPause  = "PLAYER_CMD_PAUSE"
	ActionPlayerCmdNext   = "PLAYER_CMD_NEXT"
	ActionPlayerCmdVolume = "PLAYER_CMD_VOLUME"

	ActionVisualizerCmd  = "VISUALIZER_CMD"
	ActionVisualizerCode = "VISUALIZER_CODE"

	ActionCameraSignal = "CAMERA_SIGNAL"

	// Server-emitted pushes.
	PushQueue      = "QUEUE_PUSH"
	PushRoomPrefs  = "ROOM_PREFS"
	PushLibrary    = "LIBRARY_PUSH"
	PushStars      = "STARS_PUSH"
	PushPlayerLeft = "PLAYER_LEAVE"
	PushAuthError  = "AUTH_ERROR"

	SuffixSuccess = "_SUCCESS"
	SuffixError   = "_ERROR"
)

// WireMessage is the single logical envelope sent bidirectionally over the
// websocket connection.
type WireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewWireMessage(typ string, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(WireMessage{Type: typ, Payload: raw})
}

// ErrorAck is the payload of a *_ERROR acknowledgment.
type ErrorAck struct {
	Error string `json:"error"`
}

// The different action payloads transferred from the client to here.

type QueueAddPayload struct {
	SongId    string   `json:"song_id" mapstructure:"song_id"`
	CoSingers []string `json:"co_singers" mapstructure:"co_singers"`
}

type QueueMovePayload struct {
	QueueId string `json:"queue_id" mapstructure:"queue_id"`
	// AfterId is the item to insert after; empty moves to the front.
	AfterId string `json:"after_id" mapstructure:"after_id"`
}

type QueueRemovePayload struct {
	QueueId string `json:"queue_id" mapstructure:"queue_id"`
}

type RoomPrefsPayload struct {
	Prefs Prefs `json:"prefs" mapstructure:"prefs"`
}

type RoomStatusPayload struct {
	Status string `json:"status" mapstructure:"status"`
}

type StarPayload struct {
	SongId string `json:"song_id" mapstructure:"song_id"`
}

type PlayerCmdPayload struct {
	Volume float64 `json:"volume,omitempty" mapstructure:"volume"`
}

type VisualizerCmdPayload struct {
	Command string  `json:"command" mapstructure:"command"`
	Value   float64 `json:"value,omitempty" mapstructure:"value"`
}

type VisualizerCodePayload struct {
	Code     string `json:"code" mapstructure:"code"`
	FolderId string `json:"folder_id" mapstructure:"folder_id"`
}

type CameraSignalPayload struct {
	Kind string          `json:"kind" mapstructure:"kind"` // offer, answer, ice
	Data json.RawMessage `json:"data" mapstructure:"-"`
}

// Server-emitted push payloads.

type LibraryPush struct {
	Songs   []*Song `json:"songs"`
	Version int64   `json:"version"`
}

type StarsPush struct {
	SongIds []string `json:"song_ids"`
	Version int64    `json:"version"`
}

type VersionsPush struct {
	LibraryVersion int64 `json:"library_version"`
	StarVersion    int64 `json:"star_version"`
}

type PlayerLeftPush struct {
	RoomId string    `json:"room_id"`
	At     time.Time `json:"at"`
}
