package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// These HTML handlers return a minimal control-surface shell; declarative
// UI rendering lives outside the core (§1 Non-goals) and is expected to
// be layered on top by a thin client. What the core guarantees is the
// route, the session gate, and a body a client can progressively enhance.

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK, "<!doctype html><title>Decenza</title><body>Decenza companion server</body>")
}

func (s *Server) handleShotsPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK, "<!doctype html><title>Shots</title><body id=\"shots-root\"></body>")
}

func (s *Server) handleShotPage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeHTML(w, http.StatusOK, fmt.Sprintf("<!doctype html><title>Shot %s</title><body id=\"shot-root\" data-shot-id=%q></body>", id, id))
}

func (s *Server) handleComparePage(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query().Get("ids")
	writeHTML(w, http.StatusOK, fmt.Sprintf("<!doctype html><title>Compare</title><body id=\"compare-root\" data-ids=%q></body>", ids))
}

func (s *Server) handleDebugPage(w http.ResponseWriter, r *http.Request) {
	writeHTML(w, http.StatusOK, "<!doctype html><title>Debug</title><body id=\"debug-root\"></body>")
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
