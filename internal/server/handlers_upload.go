package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// handleUpload streams an OTA APK upload to a temp file under StagingDir,
// then into place, honoring the concurrent-upload ceiling (§4.6 "Upload
// semantics", §8 scenario S6).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename := r.Header.Get("X-Filename")
	if filename == "" {
		http.Error(w, "missing X-Filename header", http.StatusBadRequest)
		return
	}

	select {
	case s.uploads <- struct{}{}:
	default:
		http.Error(w, "too many concurrent uploads", http.StatusServiceUnavailable)
		return
	}
	defer func() { <-s.uploads }()

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)

	if err := os.MkdirAll(s.cfg.StagingDir, 0o755); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	tmpFile, err := os.CreateTemp(s.cfg.StagingDir, "upload-*.tmp")
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	tmpPath := tmpFile.Name()

	written, err := io.Copy(tmpFile, r.Body)
	closeErr := tmpFile.Close()
	if err != nil {
		os.Remove(tmpPath)
		http.Error(w, "upload too large or interrupted", http.StatusRequestEntityTooLarge)
		return
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		writeJSONError(w, http.StatusInternalServerError, closeErr)
		return
	}

	finalPath := filepath.Join(s.cfg.StagingDir, filepath.Base(filename))
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger().Info("installation_started path=%s bytes=%d", finalPath, written)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "Upload complete: %s", finalPath)
}
