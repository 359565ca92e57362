// Package httpapi carries the HTTP surface around the websocket core:
// login and guest join issue the session tokens consumed by /socket, the
// room and song routes are the admin provisioning interface.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/config"
	"github.com/karaokehub/karaokehub/lifecycle"
	"github.com/karaokehub/karaokehub/persistence"
	"github.com/karaokehub/karaokehub/ws"
)

type API struct {
	store    persistence.Persister
	sessions *auth.Sessions
	lc       *lifecycle.Manager
	registry *ws.Registry
	cfg      *config.Config
	logger   hclog.Logger
}

func New(store persistence.Persister, sessions *auth.Sessions, lc *lifecycle.Manager, registry *ws.Registry, cfg *config.Config, logger hclog.Logger) *API {
	return &API{store: store, sessions: sessions, lc: lc, registry: registry, cfg: cfg, logger: logger}
}

func (a *API) Routes(r *mux.Router) {
	r.HandleFunc("/api/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{id}/join", a.handleGuestJoin).Methods(http.MethodPost)

	r.HandleFunc("/api/rooms", a.handleListRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", a.requireAdmin(a.handleCreateRoom)).Methods(http.MethodPost)
	r.HandleFunc("/api/rooms/{id}", a.requireAdmin(a.handleUpdateRoom)).Methods(http.MethodPut)
	r.HandleFunc("/api/rooms/{id}", a.requireAdmin(a.handleDeleteRoom)).Methods(http.MethodDelete)
	r.HandleFunc("/api/rooms/{id}/queue", a.handleGetQueue).Methods(http.MethodGet)

	r.HandleFunc("/api/songs", a.handleListSongs).Methods(http.MethodGet)
	r.HandleFunc("/api/songs", a.requireAdmin(a.handleUpsertSong)).Methods(http.MethodPost)
}

// claimsFromRequest accepts the session cookie or an Authorization bearer
// token.
func (a *API) claimsFromRequest(r *http.Request) (*auth.SessionClaims, error) {
	token := ""
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimPrefix(header, "Bearer ")
	} else if cookie, err := r.Cookie(auth.SessionCookie); err == nil {
		token = cookie.Value
	}
	return a.sessions.Verify(token)
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.claimsFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !claims.IsAdmin {
			writeError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next(w, r)
	}
}

func (a *API) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.cfg.SessionTTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func pathParam(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
