package server

import (
	"encoding/json"
	"net/http"

	"github.com/decenza/de1core/internal/backup"
)

func (s *Server) handleBackupManifest(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.backups.Manifest()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": manifest})
}

type restoreRequest struct {
	Filename string   `json:"filename"`
	Domains  []string `json:"domains"`
	Merge    bool     `json:"merge"`
}

func (s *Server) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var body restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	archivePath, err := s.backups.ArchivePath(body.Filename)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}

	domains := make([]backup.Domain, 0, len(body.Domains))
	for _, d := range body.Domains {
		domains = append(domains, backup.Domain(d))
	}
	if len(domains) == 0 {
		domains = []backup.Domain{backup.DomainShots, backup.DomainSettings, backup.DomainProfiles, backup.DomainMedia}
	}

	s.backups.Restore(backup.RestoreRequest{ArchivePath: archivePath, Domains: domains, Merge: body.Merge})

	ev, err := s.dispatch.waitForRestore()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	if ev.Kind == backup.EventRestoreFailed {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"errors": ev.Errors})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored", "path": ev.Path})
}
