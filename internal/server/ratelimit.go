package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// rateLimiter is a fixed-window per-IP attempt counter, used to gate the
// login endpoint against credential-stuffing (§4.6 "Authentication").
type rateLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	attempts    map[string]*windowCount
}

type windowCount struct {
	count      int
	windowEnds time.Time
}

func newRateLimiter(maxAttempts int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		attempts:    make(map[string]*windowCount),
	}
}

// allow reports whether ip may attempt another login, bumping its counter
// if so. A fresh window starts once the previous one has elapsed.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	wc, ok := rl.attempts[ip]
	if !ok || now.After(wc.windowEnds) {
		wc = &windowCount{count: 0, windowEnds: now.Add(rl.window)}
		rl.attempts[ip] = wc
	}
	if wc.count >= rl.maxAttempts {
		return false
	}
	wc.count++
	return true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
