package server

import (
	"fmt"
	"net/http"
	"sync"
)

// sseHub fans out events to per-topic subscribers over Server-Sent Events
// (§4.6 "Routes": /events/layout, /events/theme).
type sseHub struct {
	mu   sync.Mutex
	subs map[string]map[chan string]struct{}
}

func newSSEHub() *sseHub {
	return &sseHub{subs: make(map[string]map[chan string]struct{})}
}

func (h *sseHub) subscribe(topic string) chan string {
	ch := make(chan string, 8)
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan string]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *sseHub) unsubscribe(topic string, ch chan string) {
	h.mu.Lock()
	delete(h.subs[topic], ch)
	h.mu.Unlock()
}

// publish sends payload to every current subscriber of topic. Slow
// subscribers are dropped rather than blocking the publisher.
func (h *sseHub) publish(topic, payload string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[topic] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// handleSSE returns a handler streaming events published to topic until
// the client disconnects or the server is shut down.
func (s *Server) handleSSE(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ch := s.hub.subscribe(topic)
		defer s.hub.unsubscribe(topic, ch)

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				if s.isDestroyed() {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", payload)
				flusher.Flush()
			}
		}
	}
}
