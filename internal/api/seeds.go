package api

import (
	"net/http"
	"strconv"

	"github.com/supaseed/supaseed/internal/archive"
	"github.com/supaseed/supaseed/internal/auth"
)

func handleListSeeds(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ownerID, ok := archiveOwner(deps, w, r)
	if !ok {
		return
	}
	seeds, err := deps.Archive.List(r.Context(), ownerID)
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	if seeds == nil {
		seeds = []archive.Seed{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"seeds": seeds})
}

// handleGetSeed returns the archived SQL as a downloadable file.
func handleGetSeed(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ownerID, ok := archiveOwner(deps, w, r)
	if !ok {
		return
	}
	seed, body, err := deps.Archive.Get(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/sql; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+seed.ID+".sql\"")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func handleDeleteSeed(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	ownerID, ok := archiveOwner(deps, w, r)
	if !ok {
		return
	}
	if err := deps.Archive.Delete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		writeDomainError(deps, r, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func archiveOwner(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "seed archive is not configured", false, nil)
		return "", false
	}
	if err := auth.RequireAnyRole(r.Context(), auth.RoleArchiveReader); err != nil {
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
