package pseudonym

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lunajournal/luna/backend/internal/model/pseudonym"
	"github.com/lunajournal/luna/backend/pkg/utils"
)

// Handler serves the pseudonym catalog.
type Handler struct {
	pseudonyms pseudonym.Store
}

// New 创建pseudonym处理器
func New(pseudonyms pseudonym.Store) *Handler {
	return &Handler{pseudonyms: pseudonyms}
}

// RegisterRoutes 注册pseudonym相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/pseudonyms", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.pseudonyms.List())
}
