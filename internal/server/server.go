// Package server is the Companion Server (§4.6): an HTTP(S) control
// surface over the shot history, backup, and settings engines, with
// sessions, SSE, chunked uploads, and a UDP discovery responder.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/decenza/de1core/internal/backup"
	"github.com/decenza/de1core/internal/logging"
	"github.com/decenza/de1core/internal/settings"
	"github.com/decenza/de1core/internal/shotstore"
)

// Limits are the hard request/connection ceilings (§4.6 "Limits").
const (
	MaxHeaderSize        = 64 * 1024
	MaxSmallBodySize     = 1 * 1024 * 1024
	MaxUploadSize        = 500 * 1024 * 1024
	MaxConcurrentUploads = 2
	ConnectionTimeout    = 5 * time.Minute
	KeepaliveTimeout     = 30 * time.Second
	SessionLifetime      = 90 * 24 * time.Hour
)

// Config configures a Server (§4.6, §6.7).
type Config struct {
	Addr            string // e.g. ":8888"
	DiscoveryAddr   string // e.g. ":8889"
	TLSEnabled      bool
	TLSCertFile     string
	TLSKeyFile      string
	SessionPath     string // where the session map is persisted
	TOTPSecret      string
	Version         string
	StagingDir      string // for chunked upload temp files
}

// Server is the Companion Server. It owns an HTTP listener, a UDP
// discovery responder, session/rate-limit state, and per-topic SSE
// subscriber sets, and dispatches requests against the shot history,
// backup, and settings engines.
type Server struct {
	cfg      Config
	shots    *shotstore.Engine
	backups  *backup.Engine
	settings *settings.Store

	httpServer *http.Server
	udpConn    *net.UDPConn

	sessions    *sessionStore
	rateLimiter *rateLimiter
	hub         *sseHub
	dispatch    *dispatcher
	uploads     chan struct{} // semaphore, capacity MaxConcurrentUploads

	layout *layoutState
	theme  *themeState
	mqtt   *mqttBridge

	destroyed atomic.Bool
	wg        sync.WaitGroup
}

// New constructs a Server wired to the given engines. Call ListenAndServe
// to start accepting connections.
func New(cfg Config, shots *shotstore.Engine, backups *backup.Engine, store *settings.Store) (*Server, error) {
	sessions, err := openSessionStore(cfg.SessionPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		shots:       shots,
		backups:     backups,
		settings:    store,
		sessions:    sessions,
		rateLimiter: newRateLimiter(5, time.Minute),
		hub:         newSSEHub(),
		dispatch:    newDispatcher(),
		uploads:     make(chan struct{}, MaxConcurrentUploads),
		layout:      newLayoutState(),
		theme:       newThemeState(),
		mqtt:        newMQTTBridge(store),
	}

	go s.dispatch.runShots(shots.Events(), shots.Done(), s.hub)
	go s.dispatch.runBackups(backups.Events(), backups.Done())

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:           cfg.Addr,
		Handler:        redirectInsecure(cfg.TLSEnabled, router),
		MaxHeaderBytes: MaxHeaderSize,
		ReadTimeout:    ConnectionTimeout,
		WriteTimeout:   ConnectionTimeout,
		IdleTimeout:    KeepaliveTimeout,
	}
	return s, nil
}

func (s *Server) logger() *logging.Logger {
	return logging.Get(logging.CategoryServer)
}

// ListenAndServe starts the HTTP(S) listener and the UDP discovery
// responder, both in background goroutines, and returns immediately.
func (s *Server) ListenAndServe() error {
	if s.cfg.TLSEnabled {
		cert, err := loadOrGenerateCert(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("prepare TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}

		ln, err := net.Listen("tcp", s.cfg.Addr)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		tlsLn := tls.NewListener(ln, s.httpServer.TLSConfig)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
				s.logger().Error("https serve: %v", err)
			}
		}()
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger().Error("http serve: %v", err)
			}
		}()
	}

	if s.cfg.DiscoveryAddr != "" {
		if err := s.startDiscoveryResponder(); err != nil {
			return fmt.Errorf("start discovery responder: %w", err)
		}
	}
	return nil
}

// Shutdown marks the server destroyed and stops accepting new work;
// in-flight handlers complete normally since net/http already tracks
// that. Open SSE streams check isDestroyed() and stop writing once it is
// set; other handlers do not check it.
func (s *Server) Shutdown(ctx context.Context) error {
	s.destroyed.Store(true)
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	s.sessions.close()
	return err
}

func (s *Server) isDestroyed() bool {
	return s.destroyed.Load()
}

func redirectInsecure(tlsEnabled bool, next http.Handler) http.Handler {
	if !tlsEnabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil {
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusMovedPermanently)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/shots", s.requireSession(s.handleShotsPage)).Methods(http.MethodGet)
	r.HandleFunc("/shot/{id}", s.requireSession(s.handleShotPage)).Methods(http.MethodGet)
	r.HandleFunc("/compare", s.requireSession(s.handleComparePage)).Methods(http.MethodGet)
	r.HandleFunc("/debug", s.requireSession(s.handleDebugPage)).Methods(http.MethodGet)

	r.HandleFunc("/api/shots", s.requireSession(s.handleAPIShots)).Methods(http.MethodGet)

	r.HandleFunc("/api/layout", s.requireSession(s.handleLayoutGet)).Methods(http.MethodGet)
	r.HandleFunc("/api/layout/ai", s.requireSession(s.handleLayoutAI)).Methods(http.MethodPost)
	r.HandleFunc("/api/layout/{action}", s.requireSession(s.handleLayoutMutate)).Methods(http.MethodPost)

	r.HandleFunc("/api/theme", s.requireSession(s.handleThemeGet)).Methods(http.MethodGet)
	r.HandleFunc("/api/theme/{action}", s.requireSession(s.handleThemeMutate)).Methods(http.MethodPost)

	r.HandleFunc("/api/settings", s.requireSession(s.handleSettingsGet)).Methods(http.MethodGet)
	r.HandleFunc("/api/settings", s.requireSession(s.handleSettingsPost)).Methods(http.MethodPost)
	r.HandleFunc("/api/settings/{provider}/test", s.requireSession(s.handleSettingsTest)).Methods(http.MethodPost)
	r.HandleFunc("/api/settings/mqtt/{action}", s.requireSession(s.handleMQTTAction)).Methods(http.MethodPost)

	r.HandleFunc("/api/backup/manifest", s.requireSession(s.handleBackupManifest)).Methods(http.MethodGet)
	r.HandleFunc("/api/backup/restore", s.requireSession(s.handleBackupRestore)).Methods(http.MethodPost)

	r.HandleFunc("/auth/login", s.handleAuthLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.handleAuthLogout).Methods(http.MethodPost, http.MethodGet)

	r.HandleFunc("/upload", s.requireSession(s.handleUpload)).Methods(http.MethodPost)

	r.HandleFunc("/events/layout", s.requireSession(s.handleSSE("layout"))).Methods(http.MethodGet)
	r.HandleFunc("/events/theme", s.requireSession(s.handleSSE("theme"))).Methods(http.MethodGet)

	r.HandleFunc("/manifest.json", s.handleManifest).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(staticHandler()).Methods(http.MethodGet)

	return r
}
