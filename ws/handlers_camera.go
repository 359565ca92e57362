package ws

import (
	"github.com/karaokehub/karaokehub/policy"
	"github.com/karaokehub/karaokehub/types"
)

// handleCameraSignal relays WebRTC signaling blobs between room members.
// The payload is opaque to the server; it is never echoed back to the
// sender. Guests need the camera preference enabled, denials are silent.
func handleCameraSignal(h *Hub, c *Client, msg types.WireMessage) error {
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanRelayCamera(actor) {
		h.logger.Debug("dropping camera signal", "user", c.claims.UserId)
		return nil
	}
	data, err := types.NewWireMessage(msg.Type, msg.Payload)
	if err != nil {
		return nil
	}
	h.deliver(&OutMessage{Data: data, Sender: c.claims, Origin: c})
	return nil
}
