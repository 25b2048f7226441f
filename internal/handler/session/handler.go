package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	sessionService "github.com/lunajournal/luna/backend/internal/service/session"
	"github.com/lunajournal/luna/backend/pkg/utils"
)

// Handler exposes journaling sessions over REST for text-only clients.
type Handler struct {
	factory    *sessionService.Factory
	pseudonyms pseudonym.Store
	logger     zerolog.Logger
}

// New 创建会话处理器
func New(factory *sessionService.Factory, pseudonyms pseudonym.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		factory:    factory,
		pseudonyms: pseudonyms,
		logger:     logger,
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleEnd)
			r.Post("/messages", h.handleMessage)
			r.Put("/mute", h.handleMute)
			r.Delete("/error", h.handleDismiss)
			r.Get("/events", h.handleEvents)
		})
	})
}

type createRequest struct {
	PseudonymID string `json:"pseudonymId" validate:"required_without=Name,max=64"`
	Name        string `json:"name" validate:"required_without=PseudonymID,max=64"`
}

type messageRequest struct {
	Text string `json:"text" validate:"max=4000"`
}

type muteRequest struct {
	Muted *bool `json:"muted" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !h.factory.Configured() {
		utils.RespondError(w, http.StatusServiceUnavailable, "chat is not configured: missing "+h.factory.Missing())
		return
	}

	var payload createRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := pseudonym.Resolve(h.pseudonyms, payload.PseudonymID, payload.Name)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	coord := h.factory.NewText()
	if err := coord.Begin(p); err != nil {
		h.logger.Warn().Err(err).Str("session", coord.ID()).Msg("session could not start")
		_ = h.factory.Registry().Remove(r.Context(), coord.ID())
		utils.RespondError(w, http.StatusBadGateway, sessionService.MsgInitFailed)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, coord.Snapshot())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.factory.Registry().Remove(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload messageRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := coord.SubmitUtterance(payload.Text); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, coord.Snapshot())
}

func (h *Handler) handleMute(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var payload muteRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	coord.SetMuted(*payload.Muted)
	utils.RespondJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *Handler) handleDismiss(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.lookup(w, r)
	if !ok {
		return
	}
	coord.DismissError()
	utils.RespondJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*sessionService.Coordinator, bool) {
	coord, err := h.factory.Registry().Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return coord, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sessionService.ErrEmptyUtterance):
		return http.StatusBadRequest
	case errors.Is(err, sessionService.ErrInputDisabled):
		return http.StatusConflict
	case errors.Is(err, sessionService.ErrSessionEnded):
		return http.StatusGone
	case errors.Is(err, sessionService.ErrSessionNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
