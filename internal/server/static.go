package server

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var staticFS embed.FS

// manifestJSON is the PWA manifest served at /manifest.json (§4.6.9
// Supplemental: static asset and manifest routes).
const manifestJSON = `{
  "name": "Decenza",
  "short_name": "Decenza",
  "display": "standalone",
  "start_url": "/",
  "theme_color": "#c9673a",
  "background_color": "#1a1a1a",
  "icons": []
}`

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/manifest+json")
	w.Write([]byte(manifestJSON))
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
