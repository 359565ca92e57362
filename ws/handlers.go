package ws

import (
	"github.com/hashicorp/go-hclog"

	"github.com/karaokehub/karaokehub/types"
)

// DefaultRouter registers the full action set. Command actions are
// acknowledged, relay actions are fire-and-forget.
func DefaultRouter(logger hclog.Logger) *Router {
	r := NewRouter(logger)

	r.Handle(types.ActionQueueAdd, true, handleQueueAdd)
	r.Handle(types.ActionQueueMove, true, handleQueueMove)
	r.Handle(types.ActionQueueRemove, true, handleQueueRemove)

	r.Handle(types.ActionRoomPrefsPush, true, handleRoomPrefs)
	r.Handle(types.ActionRoomStatusSet, true, handleRoomStatus)

	r.HandleGlobal(types.ActionStarSong, true, handleStarSong)
	r.HandleGlobal(types.ActionUnstarSong, true, handleUnstarSong)

	r.Handle(types.ActionPlayerStatus, false, handlePlayerStatus)
	r.Handle(types.ActionPlayerCmdPlay, false, handlePlayerCmd)
	r.Handle(types.ActionPlayerCmdPause, false, handlePlayerCmd)
	r.Handle(types.ActionPlayerCmdNext, false, handlePlayerCmd)
	r.Handle(types.ActionPlayerCmdVolume, false, handlePlayerCmd)

	r.Handle(types.ActionVisualizerCmd, false, handleVisualizerCmd)
	r.Handle(types.ActionVisualizerCode, false, handleVisualizerCode)

	r.Handle(types.ActionCameraSignal, false, handleCameraSignal)

	return r
}
