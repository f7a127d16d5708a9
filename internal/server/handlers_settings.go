package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/decenza/de1core/internal/logging"
)

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.All())
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	for key, value := range body {
		if err := s.settings.Set(key, value); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		logging.Audit().SettingsChanged(key)
	}
	writeJSON(w, http.StatusOK, s.settings.All())
}

type testResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// handleSettingsTest probes the visualizer/AI provider credentials
// currently in the settings store. Both providers are external
// collaborators (§1 Non-goals); what this endpoint guarantees is the
// 15s-timeout, at-most-one-reply contract (§5 "Test endpoints").
func (s *Server) handleSettingsTest(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	var fired atomic.Bool
	result := make(chan testResult, 1)

	go func() {
		message, ok := probeProvider(provider, s.settings)
		if fired.CompareAndSwap(false, true) {
			result <- testResult{OK: ok, Message: message}
		}
	}()

	select {
	case res := <-result:
		writeJSON(w, http.StatusOK, res)
	case <-time.After(15 * time.Second):
		if fired.CompareAndSwap(false, true) {
			writeJSON(w, http.StatusOK, testResult{OK: false, Message: "timed out"})
		}
	}
}

func probeProvider(provider string, store interface {
	String(key, def string) string
}) (string, bool) {
	switch provider {
	case "visualizer":
		if store.String("visualizerUsername", "") == "" {
			return "visualizer username is not configured", false
		}
		return "visualizer credentials present", true
	case "ai":
		if store.String("aiProvider", "") == "" {
			return "no AI provider configured", false
		}
		return "AI provider configured", true
	default:
		return "unknown provider " + provider, false
	}
}

func (s *Server) handleMQTTAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]

	var message string
	var ok bool
	switch action {
	case "connect":
		message, ok = s.mqtt.connect()
	case "disconnect":
		message, ok = s.mqtt.disconnect()
	case "status":
		message, ok = s.mqtt.status()
	case "publish-discovery":
		message, ok = s.mqtt.publishDiscovery()
	default:
		http.Error(w, "unknown mqtt action", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, testResult{OK: ok, Message: message})
}
