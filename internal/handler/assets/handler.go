// Package assets serves the browser client and its offline cache worker.
package assets

import (
	"bytes"
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/lunajournal/luna/backend/internal/config"
)

//go:embed service-worker.js.tmpl
var workerSource string

var workerTemplate = template.Must(template.New("service-worker").Parse(workerSource))

// DefaultPrecache lists the app shell cached on install when none is configured.
var DefaultPrecache = []string{
	"/",
	"/index.html",
	"/manifest.json",
	"/icons/icon-192x192.png",
	"/icons/icon-512x512.png",
}

// DefaultModuleURLs are the CDN stylesheet and ES modules the client loads
// from its import map. They are precached alongside DefaultPrecache.
var DefaultModuleURLs = []string{
	"https://cdn.tailwindcss.com",
	"https://fonts.googleapis.com/css2?family=Inter:wght@300;400;500;600;700&family=Lora:ital,wght@0,400;0,500;0,600;1,400&display=swap",
	"https://esm.sh/react@^19.1.0",
	"https://esm.sh/react@^19.1.0/",
	"https://esm.sh/react-dom@^19.1.0/",
}

// Handler serves static files with an SPA fallback and the rendered service worker.
type Handler struct {
	staticDir string
	worker    []byte
	logger    zerolog.Logger
}

// New renders the service worker once and prepares static serving.
func New(cfg config.AssetsConfig, logger zerolog.Logger) (*Handler, error) {
	cacheName := cfg.CacheName
	if cacheName == "" {
		cacheName = "luna-journal-cache-v1"
	}
	precache := cfg.Precache
	if len(precache) == 0 {
		precache = lo.Flatten([][]string{DefaultPrecache, DefaultModuleURLs})
	}
	precache = lo.Uniq(precache)

	var buf bytes.Buffer
	if err := workerTemplate.Execute(&buf, struct {
		CacheName string
		Precache  []string
	}{cacheName, precache}); err != nil {
		return nil, fmt.Errorf("render service worker: %w", err)
	}

	return &Handler{
		staticDir: cfg.StaticDir,
		worker:    buf.Bytes(),
		logger:    logger,
	}, nil
}

// RegisterRoutes mounts the worker and the catch-all static route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/service-worker.js", h.handleWorker)
	r.Get("/*", h.handleStatic)
}

func (h *Handler) handleWorker(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Service-Worker-Allowed", "/")
	_, _ = w.Write(h.worker)
}

// handleStatic serves a file from the static directory, or index.html for
// client-side routes.
func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	if h.staticDir == "" {
		http.NotFound(w, r)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	if strings.HasPrefix(clean, "/api/") {
		http.NotFound(w, r)
		return
	}

	full := filepath.Join(h.staticDir, filepath.FromSlash(clean))
	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		http.ServeFile(w, r, full)
		return
	}

	// Missing files with an extension are real 404s, not client routes.
	if path.Ext(clean) != "" {
		http.NotFound(w, r)
		return
	}

	index := filepath.Join(h.staticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		h.logger.Debug().Str("dir", h.staticDir).Msg("no index.html to serve")
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}
