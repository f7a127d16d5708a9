package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decenza/de1core/internal/backup"
	"github.com/decenza/de1core/internal/settings"
	"github.com/decenza/de1core/internal/shotstore"
)

func newBodyReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()

	shots, err := shotstore.NewEngine(filepath.Join(dir, "shots.db"))
	require.NoError(t, err)
	t.Cleanup(shots.Close)

	store, err := settings.Open(filepath.Join(dir, "settings.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	backups := backup.NewEngine(backup.Paths{
		ShotDBPath: filepath.Join(dir, "shots.db"),
		BackupDir:  filepath.Join(dir, "backups"),
		StagingDir: filepath.Join(dir, "staging"),
	}, store)
	t.Cleanup(backups.Close)

	srv, err := New(Config{
		Addr:        ":0",
		SessionPath: filepath.Join(dir, "sessions.json"),
		StagingDir:  filepath.Join(dir, "uploads"),
		Version:     "9.9.9",
	}, shots, backups, store)
	require.NoError(t, err)
	return srv
}

func (s *Server) router() http.Handler {
	return redirectInsecure(s.cfg.TLSEnabled, s.buildRouter())
}

func TestHandleIndexServesWithoutSession(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleShotsPageRequiresSession(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/shots", nil)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleAPIShotsReturnsEmptyResult(t *testing.T) {
	srv := newTestServer(t)
	sess, err := srv.sessions.create("test-agent")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/shots", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body shotsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Total)
	assert.Empty(t, body.Shots)
}

func TestHandleLayoutAddThenGet(t *testing.T) {
	srv := newTestServer(t)
	sess, err := srv.sessions.create("test-agent")
	require.NoError(t, err)

	payload, _ := json.Marshal(layoutMutateRequest{Item: LayoutItem{ID: "w1", Type: "gauge", Zone: "top"}})
	req := httptest.NewRequest(http.MethodPost, "/api/layout/add", newBodyReader(payload))
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/api/layout", nil)
	getReq.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	getRec := httptest.NewRecorder()
	srv.router().ServeHTTP(getRec, getReq)

	var body map[string][]LayoutItem
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &body))
	require.Len(t, body["items"], 1)
	assert.Equal(t, "w1", body["items"][0].ID)
}

func TestHandleAuthLoginRejectsBadCode(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.TOTPSecret = "JBSWY3DPEHPK3PXP"

	payload, _ := json.Marshal(loginRequest{Code: "000000"})
	req := httptest.NewRequest(http.MethodPost, "/auth/login", newBodyReader(payload))
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleAuthLoginRateLimited(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.TOTPSecret = "JBSWY3DPEHPK3PXP"
	srv.rateLimiter = newRateLimiter(2, requestTimeout)

	payload, _ := json.Marshal(loginRequest{Code: "000000"})
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", newBodyReader(payload))
		req.RemoteAddr = "203.0.113.5:1234"
		rec := httptest.NewRecorder()
		srv.router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/login", newBodyReader(payload))
	req.RemoteAddr = "203.0.113.5:1234"
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleUploadRequiresFilenameHeader(t *testing.T) {
	srv := newTestServer(t)
	sess, err := srv.sessions.create("test-agent")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/upload", newBodyReader([]byte("data")))
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadStreamsToStagingDir(t *testing.T) {
	srv := newTestServer(t)
	sess, err := srv.sessions.create("test-agent")
	require.NoError(t, err)

	payload := make([]byte, 1024)
	req := httptest.NewRequest(http.MethodPost, "/upload", newBodyReader(payload))
	req.Header.Set("X-Filename", "Decenza_DE1_1.2.3.apk")
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: sess.Token})
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Upload complete:")
	assert.Contains(t, rec.Body.String(), "Decenza_DE1_1.2.3.apk")
}

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	rl := newRateLimiter(3, requestTimeout)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.allow("10.0.0.1"))
	}
	assert.False(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"))
}
