package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Prefs is the per-room preference bag: access-control booleans plus the
// visualizer preset policy. It implements driver.Valuer and sql.Scanner so
// it can be stored as a JSON column.
type Prefs struct {
	// AllowQueueAdd lets non-manager members add their own songs.
	AllowQueueAdd bool `json:"allow_queue_add" mapstructure:"allow_queue_add"`
	// AllowPlayerControl lets non-manager members drive player transport.
	AllowPlayerControl bool `json:"allow_player_control" mapstructure:"allow_player_control"`
	// AllowVisualizerCode lets collaborators drive the visualizer.
	AllowVisualizerCode bool `json:"allow_visualizer_code" mapstructure:"allow_visualizer_code"`
	// AllowGuestCamera lets guests relay camera signaling.
	AllowGuestCamera bool `json:"allow_guest_camera" mapstructure:"allow_guest_camera"`
	// PresetFolderId restricts collaborator visualizer code to one preset
	// folder; empty means unrestricted.
	PresetFolderId string `json:"preset_folder_id,omitempty" mapstructure:"preset_folder_id"`
}

// Value return json value, implement driver.Valuer interface
func (p Prefs) Value() (driver.Value, error) {
	ba, err := json.Marshal(p)
	return string(ba), err
}

// Scan scan value into Prefs, implements sql.Scanner interface
func (p *Prefs) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	case nil:
		*p = Prefs{}
		return nil
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", val))
	}
	t := Prefs{}
	err := json.Unmarshal(ba, &t)
	*p = t
	return err
}

// GormDataType gorm common data type
func (Prefs) GormDataType() string {
	return "prefs"
}

// GormDBDataType gorm db data type
func (Prefs) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
