package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/handler/assets"
	"github.com/lunajournal/luna/backend/internal/handler/pseudonym"
	"github.com/lunajournal/luna/backend/internal/handler/session"
	"github.com/lunajournal/luna/backend/internal/handler/voice"
	"github.com/lunajournal/luna/backend/internal/logging"
	middlewarePkg "github.com/lunajournal/luna/backend/internal/middleware"
	pseudonymModel "github.com/lunajournal/luna/backend/internal/model/pseudonym"
	sessionService "github.com/lunajournal/luna/backend/internal/service/session"
	"github.com/lunajournal/luna/backend/pkg/utils"
)

type healthResponse struct {
	Status     string `json:"status"`
	Transport  string `json:"transport"`
	Configured bool   `json:"configured"`
	Missing    string `json:"missing,omitempty"`
	Sessions   int    `json:"sessions"`
}

// NewRouter wires HTTP routes to core services. staticAssets may be nil for an
// API-only server.
func NewRouter(pseudonyms pseudonymModel.Store, sessions *sessionService.Factory, staticAssets *assets.Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	pseudonymHandler := pseudonym.New(pseudonyms)
	sessionHandler := session.New(sessions, pseudonyms, logging.Component(logger, "sessions"))
	voiceHandler := voice.New(sessions, pseudonyms, logging.Component(logger, "ws"))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			status := "ok"
			if !sessions.Configured() {
				status = "not_configured"
			}
			utils.RespondJSON(w, http.StatusOK, healthResponse{
				Status:     status,
				Transport:  sessions.Transport().Name(),
				Configured: sessions.Configured(),
				Missing:    sessions.Missing(),
				Sessions:   sessions.Registry().Len(),
			})
		})

		pseudonymHandler.RegisterRoutes(api)
		sessionHandler.RegisterRoutes(api)
		voiceHandler.RegisterRoutes(api)
	})

	if staticAssets != nil {
		staticAssets.RegisterRoutes(r)
	}

	return r
}
