package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/karaokehub/karaokehub/types"
)

func (a *API) handleListSongs(w http.ResponseWriter, r *http.Request) {
	if _, err := a.claimsFromRequest(r); err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	songs, err := a.store.GetSongs()
	if err != nil {
		a.logger.Error("could not list songs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	version, err := a.store.LibraryVersion()
	if err != nil {
		a.logger.Error("could not read library version", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, types.LibraryPush{Songs: songs, Version: version})
}

// handleUpsertSong adds or updates a catalog entry and pushes the fresh
// library snapshot to every connected room.
func (a *API) handleUpsertSong(w http.ResponseWriter, r *http.Request) {
	var song types.Song
	if err := json.NewDecoder(r.Body).Decode(&song); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if song.Id == "" {
		song.Id = uuid.NewString()
	}
	if song.Title == "" {
		writeError(w, http.StatusBadRequest, "song title is required")
		return
	}
	if err := a.store.StoreSong(song); err != nil {
		a.logger.Error("could not store song", "song", song.Id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	songs, err := a.store.GetSongs()
	if err == nil {
		version, verr := a.store.LibraryVersion()
		if verr == nil {
			if data, merr := types.NewWireMessage(types.PushLibrary, types.LibraryPush{Songs: songs, Version: version}); merr == nil {
				a.registry.BroadcastAll(data)
			}
		}
	}
	writeJSON(w, http.StatusCreated, &song)
}
