package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/types"
)

func (a *API) handleListRooms(w http.ResponseWriter, r *http.Request) {
	claims, err := a.claimsFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	rooms, err := a.store.GetRooms()
	if err != nil {
		a.logger.Error("could not list rooms", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !claims.IsAdmin {
		// non-admins only see open shared rooms and their own
		visible := rooms[:0]
		for _, room := range rooms {
			if room.OwnerId == claims.UserId || (!room.Ephemeral && room.IsOpen()) {
				visible = append(visible, room)
			}
		}
		rooms = visible
	}
	writeJSON(w, http.StatusOK, rooms)
}

type roomRequest struct {
	Name     string       `json:"name"`
	Status   string       `json:"status"`
	Prefs    *types.Prefs `json:"prefs"`
	Password string       `json:"password"`
}

// handleCreateRoom provisions a persistent shared room.
func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "room name is required")
		return
	}
	room := types.Room{
		Id:           uuid.NewString(),
		Name:         req.Name,
		Status:       types.RoomStatusOpen,
		InviteToken:  uuid.NewString(),
		Prefs:        a.cfg.DefaultPrefs,
		LastActivity: time.Now(),
	}
	if req.Status != "" {
		if req.Status != types.RoomStatusOpen && req.Status != types.RoomStatusClosed {
			writeError(w, http.StatusBadRequest, "invalid room status")
			return
		}
		room.Status = req.Status
	}
	if req.Prefs != nil {
		room.Prefs = *req.Prefs
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		room.PasswordHash = hash
	}
	if err := a.store.StoreRoom(room); err != nil {
		a.logger.Error("could not store room", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, &room)
}

// handleUpdateRoom applies admin changes to a stored room. A live hub
// picks the changes up on the next register; immediate preference and
// status changes for connected clients go through the socket actions.
func (a *API) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room := types.Room{Id: pathParam(r, "id")}
	if err := a.store.GetRoom(&room); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown room")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if req.Name != "" {
		room.Name = req.Name
	}
	if req.Status != "" {
		if req.Status != types.RoomStatusOpen && req.Status != types.RoomStatusClosed {
			writeError(w, http.StatusBadRequest, "invalid room status")
			return
		}
		room.Status = req.Status
	}
	if req.Prefs != nil {
		room.Prefs = *req.Prefs
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		room.PasswordHash = hash
	}
	if err := a.store.StoreRoom(room); err != nil {
		a.logger.Error("could not update room", "room", room.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, &room)
}

func (a *API) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := a.lc.DeleteRoom(pathParam(r, "id")); err != nil {
		a.logger.Error("could not delete room", "room", pathParam(r, "id"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetQueue is the read-only queue snapshot; all mutation goes over
// the socket.
func (a *API) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	if _, err := a.claimsFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	roomId := pathParam(r, "id")
	room := types.Room{Id: roomId}
	if err := a.store.GetRoom(&room); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown room")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items, err := a.store.GetQueue(roomId)
	if err != nil {
		a.logger.Error("could not load queue", "room", roomId, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	view := types.QueueView{RoomId: roomId, Items: make([]*types.QueueItemView, 0, len(items))}
	for _, item := range items {
		singer := types.User{Id: item.UserId}
		if err := a.store.GetUser(&singer); err != nil {
			singer.Name = ""
		}
		view.Items = append(view.Items, &types.QueueItemView{QueueItem: item, SingerName: singer.Name})
	}
	writeJSON(w, http.StatusOK, view)
}
