package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/decenza/de1core/internal/shotstore"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// shotsResponse is the paged JSON contract for GET /api/shots.
type shotsResponse struct {
	Shots []shotstore.Shot `json:"shots"`
	Total int              `json:"total"`
}

func (s *Server) handleAPIShots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := shotstore.Filter{
		BeanBrand:    q.Get("bean_brand"),
		BeanType:     q.Get("bean_type"),
		ProfileName:  q.Get("profile_name"),
		GrinderModel: q.Get("grinder_model"),
		BeverageType: q.Get("beverage_type"),
		SearchText:   q.Get("q"),
		SortColumn:   q.Get("sort"),
		SortDesc:     q.Get("desc") == "1" || q.Get("desc") == "true",
	}
	if v := q.Get("min_enjoyment"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.MinEnjoyment = n
		}
	}

	offset := queryInt(q, "offset", 0)
	limit := queryInt(q, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	serial := s.shots.RequestShotsFiltered(filter, offset, limit)
	result, err := s.dispatch.waitForShots(serial)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, shotsResponse{Shots: result.Shots, Total: result.Total})
}

func queryInt(q map[string][]string, key string, def int) int {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}
