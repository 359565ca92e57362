package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/karaokehub/karaokehub/filter"
	"github.com/karaokehub/karaokehub/policy"
	"github.com/karaokehub/karaokehub/types"
)

func handleRoomPrefs(h *Hub, c *Client, msg types.WireMessage) error {
	var p types.RoomPrefsPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanManage(actor) {
		return errors.New("Not allowed to change room preferences")
	}
	h.Room.Prefs = p.Prefs
	if err := h.store.StoreRoom(*h.Room); err != nil {
		return err
	}
	h.touchActivity()
	// only managers see the preference bag
	data, err := types.NewWireMessage(types.PushRoomPrefs, types.RoomPrefsPayload{Prefs: h.Room.Prefs})
	if err != nil {
		return err
	}
	h.deliver(&OutMessage{Data: data, TargetFilter: filter.ManagersOnly, Sender: c.claims})
	return nil
}

func handleRoomStatus(h *Hub, c *Client, msg types.WireMessage) error {
	var p types.RoomStatusPayload
	if err := decodePayload(msg.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if p.Status != types.RoomStatusOpen && p.Status != types.RoomStatusClosed {
		return fmt.Errorf("invalid room status %q", p.Status)
	}
	actor := policy.ActorFromClaims(c.claims)
	if !policy.ForRoom(h.Room).CanManage(actor) {
		return errors.New("Not allowed to change the room status")
	}
	h.Room.Status = p.Status
	if err := h.store.StoreRoom(*h.Room); err != nil {
		return err
	}
	h.touchActivity()
	data, err := types.NewWireMessage(types.ActionRoomStatusSet, p)
	if err != nil {
		return err
	}
	h.deliver(&OutMessage{Data: data, Sender: c.claims})
	return nil
}
