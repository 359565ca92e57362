package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/folkengine/goname"
	"github.com/google/uuid"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/policy"
	"github.com/karaokehub/karaokehub/types"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
	Room  *types.Room `json:"room,omitempty"`
	// InviteToken is only disclosed to the room's owner, who shares it
	// with guests out of band.
	InviteToken string `json:"invite_token,omitempty"`
}

// handleLogin authenticates an admin or standard user and issues the
// session token. A standard user's first login lazily creates their
// ephemeral room.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.store.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.logger.Error("login lookup failed", "username", req.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	ok, upgraded := auth.CheckPassword(user.PasswordHash, req.Password)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if upgraded != "" {
		rehashed := *user
		rehashed.PasswordHash = upgraded
		go func() {
			if err := a.store.StoreUser(rehashed); err != nil {
				a.logger.Warn("could not persist upgraded password hash", "user", user.Id, "error", err)
			}
		}()
	}

	claims := auth.SessionClaims{
		UserId:   user.Id,
		Username: user.Username,
		Name:     user.Name,
		IsAdmin:  user.IsAdmin(),
	}
	var room *types.Room
	if user.Role == types.RoleStandard {
		room, err = a.lc.CreateEphemeral(user)
		if err != nil {
			a.logger.Error("could not create ephemeral room", "user", user.Id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		claims.RoomId = room.Id
	}
	token, err := a.sessions.Issue(claims)
	if err != nil {
		a.logger.Error("could not issue session", "user", user.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.setSessionCookie(w, token)
	resp := sessionResponse{Token: token, User: user, Room: room}
	if room != nil {
		resp.InviteToken = room.InviteToken
	}
	writeJSON(w, http.StatusOK, resp)
}

type joinRequest struct {
	Name        string `json:"name"`
	InviteToken string `json:"invite_token"`
	Password    string `json:"password"`
}

// handleGuestJoin admits a guest into a room via invite token or room
// password and issues a room-bound guest session.
func (a *API) handleGuestJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
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
		a.logger.Error("join lookup failed", "room", room.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !room.IsOpen() {
		writeError(w, http.StatusForbidden, "room is closed")
		return
	}
	if !a.admitGuest(&room, &req) {
		writeError(w, http.StatusForbidden, "invalid invite token or password")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}
	guest := types.User{
		Id:       uuid.NewString(),
		Username: "guest-" + uuid.NewString(),
		Name:     name,
		Role:     types.RoleGuest,
		RoomId:   room.Id,
	}
	if err := a.store.StoreUser(guest); err != nil {
		a.logger.Error("could not store guest user", "room", room.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := a.sessions.Issue(auth.SessionClaims{
		UserId:   guest.Id,
		Username: guest.Username,
		Name:     guest.Name,
		IsGuest:  true,
		RoomId:   room.Id,
	})
	if err != nil {
		a.logger.Error("could not issue guest session", "room", room.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	a.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: &guest, Room: &room})
}

func (a *API) admitGuest(room *types.Room, req *joinRequest) bool {
	if req.InviteToken != "" && req.InviteToken == room.InviteToken {
		return true
	}
	if room.PasswordHash != "" && req.Password != "" {
		return policy.ValidateRoomPassword(room, req.Password, func(updated types.Room) error {
			return a.store.StoreRoom(updated)
		})
	}
	return false
}
