package ws

import (
	"github.com/karaokehub/karaokehub/policy"
	"github.com/karaokehub/karaokehub/types"
)

// handlePlayerStatus ingests the periodic report from the room's player.
// The first connection reporting a status claims the player role for the
// room. Identical consecutive reports are recorded but not rebroadcast.
func handlePlayerStatus(h *Hub, c *Client, msg types.WireMessage) error {
	var status types.PlayerStatus
	if err := decodePayload(msg.Payload, &status); err != nil {
		h.logger.Warn("invalid player status", "user", c.claims.UserId, "error", err)
		return nil
	}
	c.isPlayer = true
	h.touchActivity()
	if !h.playerStatusChanged(&status) {
		return nil
	}
	data, err := types.NewWireMessage(types.ActionPlayerStatus, &status)
	if err != nil {
		return nil
	}
	h.deliver(&OutMessage{Data: data, Sender: c.claims, Origin: c})
	return nil
}

// handlePlayerCmd relays transport commands (play, pause, next, volume) to
// the rest of the room; policy denials drop silently.
func handlePlayerCmd(h *Hub, c *Client, msg types.WireMessage) error {
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanControlPlayer(actor) {
		h.logger.Debug("dropping player command", "type", msg.Type, "user", c.claims.UserId)
		return nil
	}
	h.touchActivity()
	data, err := types.NewWireMessage(msg.Type, msg.Payload)
	if err != nil {
		return nil
	}
	h.deliver(&OutMessage{Data: data, Sender: c.claims, Origin: c})
	return nil
}
