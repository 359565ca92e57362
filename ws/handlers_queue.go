package ws

import (
	"errors"
	"fmt"

	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/policy"
	"github.com/karaokehub/karaokehub/queue"
	"github.com/karaokehub/karaokehub/types"
)

func handleQueueAdd(h *Hub, c *Client, msg types.WireMessage) error {
	var p struct {
		SongId    string   `mapstructure:"song_id"`
		CoSingers []string `mapstructure:"co_singers"`
	}
	if err := decodePayload(msg.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanAddToQueue(actor) {
		return errors.New("Adding to the queue is not allowed in this room")
	}
	if _, err := h.queue.Add(h.Room.Id, p.SongId, c.claims.UserId, p.CoSingers); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return errors.New("Unknown song")
		}
		return err
	}
	h.touchActivity()
	h.broadcastQueue()
	return nil
}

func handleQueueMove(h *Hub, c *Client, msg types.WireMessage) error {
	var p struct {
		QueueId string `mapstructure:"queue_id"`
		AfterId string `mapstructure:"after_id"`
	}
	if err := decodePayload(msg.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanManage(actor) {
		ok, err := h.queue.IsOwner(c.claims.UserId, false, p.QueueId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return errors.New("Unknown queue item")
			}
			return err
		}
		if !ok {
			return errors.New("Cannot move another user's song")
		}
	}
	if _, err := h.queue.Move(h.Room.Id, p.QueueId, p.AfterId); err != nil {
		switch {
		case errors.Is(err, queue.ErrSamePosition):
			return errors.New("Item is already at the requested position")
		case errors.Is(err, persistence.ErrNotFound):
			return errors.New("Unknown queue item")
		}
		return err
	}
	h.touchActivity()
	h.broadcastQueue()
	return nil
}

func handleQueueRemove(h *Hub, c *Client, msg types.WireMessage) error {
	var p struct {
		QueueId string `mapstructure:"queue_id"`
	}
	if err := decodePayload(msg.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanManage(actor) {
		ok, err := h.queue.IsOwner(c.claims.UserId, false, p.QueueId)
		if err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return errors.New("Unknown queue item")
			}
			return err
		}
		if !ok {
			return errors.New("Cannot remove another user's song")
		}
	}
	if err := h.queue.Remove(p.QueueId); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return errors.New("Unknown queue item")
		}
		return err
	}
	h.touchActivity()
	h.broadcastQueue()
	return nil
}
