package api

import (
	"net/http"

	"github.com/supaseed/supaseed/internal/auth"
	"github.com/supaseed/supaseed/internal/seedgen"
	"github.com/supaseed/supaseed/internal/settings"
)

type putSettingsResponse struct {
	Settings  settings.SavedSettings `json:"settings"`
	Persisted bool                   `json:"persisted"`
}

func handleGetSettings(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ownerID, ok := settingsOwner(deps, w, r)
	if !ok {
		return
	}
	saved, err := deps.Settings.Load(r.Context(), ownerID)
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func handlePutSettings(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ownerID, ok := settingsOwner(deps, w, r)
	if !ok {
		return
	}
	var in settings.SavedSettings
	if err := decodeJSON(r, &in); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid settings body", false, map[string]any{"details": err.Error()})
		return
	}
	models := seedgen.DefaultModels()
	if deps.Seeds != nil {
		models = deps.Seeds.Models()
	}
	saved, persisted, err := settings.Apply(r.Context(), deps.Settings, models, ownerID, in)
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	writeJSON(w, http.StatusOK, putSettingsResponse{Settings: saved, Persisted: persisted})
}

func handleDeleteSettings(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ownerID, ok := settingsOwner(deps, w, r)
	if !ok {
		return
	}
	if err := deps.Settings.Delete(r.Context(), ownerID); err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func settingsOwner(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	if deps.Settings == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SETTINGS_NOT_CONFIGURED", "settings storage is not configured", false, nil)
		return "", false
	}
	if err := auth.RequireAnyRole(r.Context(), auth.RoleSettingsEditor); err != nil {
		writeDomainError(deps, r, w, err)
		return "", false
	}
	ownerID, err := clientFromRequest(r)
	if err != nil {
		writeDomainError(deps, r, w, err)
		return "", false
	}
	return ownerID, true
}
