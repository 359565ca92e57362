package ws

import (
	"fmt"

	"github.com/karaokehub/karaokehub/filter"
	"github.com/karaokehub/karaokehub/types"
)

func handleStarSong(h *Hub, c *Client, msg types.WireMessage) error {
	return handleStarChange(h, c, msg, h.store.AddStar)
}

func handleUnstarSong(h *Hub, c *Client, msg types.WireMessage) error {
	return handleStarChange(h, c, msg, h.store.RemoveStar)
}

// handleStarChange mutates the sender's star list and pushes the fresh
// list with its version to all of the sender's connections, so a second
// device of the same user stays in sync.
func handleStarChange(h *Hub, c *Client, msg types.WireMessage, mutate func(userId, songId string) error) error {
	var p types.StarPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if p.SongId == "" {
		return fmt.Errorf("missing song id")
	}
	if err := mutate(c.claims.UserId, p.SongId); err != nil {
		return err
	}
	stars, err := h.store.GetStars(c.claims.UserId)
	if err != nil {
		return err
	}
	version, err := h.store.StarVersion(c.claims.UserId)
	if err != nil {
		return err
	}
	data, err := types.NewWireMessage(types.PushStars, types.StarsPush{SongIds: stars, Version: version})
	if err != nil {
		return err
	}
	h.deliver(&OutMessage{Data: data, TargetFilter: filter.SenderOnly, Sender: c.claims})
	return nil
}
