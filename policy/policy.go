// Package policy resolves an acting identity and a room's preference bag
// into boolean capabilities. Derivation order, first match wins: admins can
// do everything, then the room owner, then whatever the specific preference
// flag grants.
package policy

import (
	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/globals"
	"github.com/karaokehub/karaokehub/types"
)

// Actor is the acting identity a capability question is asked about.
type Actor struct {
	UserId  string
	IsAdmin bool
	IsGuest bool
}

func ActorFromClaims(claims *auth.SessionClaims) Actor {
	return Actor{UserId: claims.UserId, IsAdmin: claims.IsAdmin, IsGuest: claims.IsGuest}
}

// Resolver answers capability questions for one room.
type Resolver struct {
	room *types.Room
}

func ForRoom(room *types.Room) Resolver {
	return Resolver{room: room}
}

// CanManage is full manage capability: room prefs, status, any queue item.
func (r Resolver) CanManage(a Actor) bool {
	if a.IsAdmin {
		return true
	}
	return r.room.OwnerId != "" && a.UserId == r.room.OwnerId
}

func (r Resolver) CanAddToQueue(a Actor) bool {
	if r.CanManage(a) {
		return true
	}
	return r.room.IsOpen() && r.room.Prefs.AllowQueueAdd
}

func (r Resolver) CanControlPlayer(a Actor) bool {
	if r.CanManage(a) {
		return true
	}
	return r.room.Prefs.AllowPlayerControl
}

func (r Resolver) CanDriveVisualizer(a Actor) bool {
	if r.CanManage(a) {
		return true
	}
	return r.room.Prefs.AllowVisualizerCode
}

// CanSendVisualizerCode additionally applies the preset folder restriction:
// when the room pins collaborators to one folder, a non-manager's code must
// declare membership in that folder. A mismatch is a policy filter, not a
// client error; callers drop the message silently.
func (r Resolver) CanSendVisualizerCode(a Actor, folderId string) bool {
	if r.CanManage(a) {
		return true
	}
	if !r.room.Prefs.AllowVisualizerCode {
		return false
	}
	return r.room.Prefs.PresetFolderId == "" || folderId == r.room.Prefs.PresetFolderId
}

func (r Resolver) CanRelayCamera(a Actor) bool {
	if r.CanManage(a) {
		return true
	}
	if a.IsGuest {
		return r.room.Prefs.AllowGuestCamera
	}
	return true
}

// ValidateRoomPassword compares a presented room-entry password against the
// stored hash. A match against a deprecated-format hash upgrades the stored
// hash in the background via persist; the caller is never delayed or failed
// by the upgrade.
func ValidateRoomPassword(room *types.Room, presented string, persist func(types.Room) error) bool {
	ok, upgraded := auth.CheckPassword(room.PasswordHash, presented)
	if ok && upgraded != "" && persist != nil {
		rehashed := *room
		rehashed.PasswordHash = upgraded
		go func() {
			if err := persist(rehashed); err != nil {
				globals.AppLogger.Warn("could not persist upgraded room password hash", "room", room.Id, "error", err)
			}
		}()
	}
	return ok
}
