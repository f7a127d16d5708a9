package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleThemeGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.theme.snapshot())
}

func (s *Server) handleThemeMutate(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	switch action {
	case "reset":
		s.theme.reset()
	default:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		for k, v := range body {
			s.theme.set(k, v)
		}
	}

	s.hub.publish("theme", "theme-changed")
	writeJSON(w, http.StatusOK, s.theme.snapshot())
}
