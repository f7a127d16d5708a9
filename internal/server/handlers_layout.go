package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) handleLayoutGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.layout.snapshot()})
}

type layoutMutateRequest struct {
	Item  LayoutItem `json:"item"`
	ID    string     `json:"id"`
	Zone  string     `json:"zone"`
	Order []string   `json:"order"`
	DX    int        `json:"dx"`
	DY    int        `json:"dy"`
}

// handleLayoutMutate dispatches the {add,remove,move,reorder,reset,item,
// zone-offset} actions named in the route (§4.6 "Routes").
func (s *Server) handleLayoutMutate(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var body layoutMutateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	}

	switch action {
	case "add":
		s.layout.add(body.Item)
	case "remove":
		s.layout.remove(body.ID)
	case "move":
		s.layout.move(body.ID, body.Zone)
	case "reorder":
		s.layout.reorder(body.Order)
	case "reset":
		s.layout.reset()
	case "item":
		if !s.layout.setItem(body.ID, body.Item) {
			http.Error(w, "unknown layout item", http.StatusNotFound)
			return
		}
	case "zone-offset":
		s.layout.zoneOffset(body.Zone, body.DX, body.DY)
	default:
		http.Error(w, "unknown layout action", http.StatusNotFound)
		return
	}

	s.hub.publish("layout", "layout-changed")
	writeJSON(w, http.StatusOK, map[string]any{"items": s.layout.snapshot()})
}

// handleLayoutAI forwards a natural-language layout request to an AI
// provider. AI provider integrations are an external collaborator (§1
// Non-goals); this endpoint reports that no provider is wired rather
// than fabricating one.
func (s *Server) handleLayoutAI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error": "no AI provider configured",
	})
}
