package ws

import (
	"github.com/karaokehub/karaokehub/policy"
	"github.com/karaokehub/karaokehub/types"
)

func handleVisualizerCmd(h *Hub, c *Client, msg types.WireMessage) error {
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanDriveVisualizer(actor) {
		h.logger.Debug("dropping visualizer command", "user", c.claims.UserId)
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

// handleVisualizerCode relays custom visualizer code. When the room pins
// collaborators to a preset folder, code from outside that folder is
// dropped without any response; the sender must not learn the restriction
// exists.
func handleVisualizerCode(h *Hub, c *Client, msg types.WireMessage) error {
	var p types.VisualizerCodePayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		h.logger.Warn("invalid visualizer code payload", "user", c.claims.UserId, "error", err)
		return nil
	}
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanSendVisualizerCode(actor, p.FolderId) {
		h.logger.Debug("dropping visualizer code", "user", c.claims.UserId, "folder", p.FolderId)
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
