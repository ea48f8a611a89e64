package handlers

import (
	"net/http"

	"github.com/planmate-app/backend/internal/api/request"
	"github.com/planmate-app/backend/internal/api/response"
	"github.com/planmate-app/backend/internal/config"
	"github.com/planmate-app/backend/internal/quota"
)

// UserHandler serves user lifecycle endpoints
type UserHandler struct {
	quota *quota.Service
	cfg   *config.Config
}

// NewUserHandler creates a new user handler
func NewUserHandler(quotaSvc *quota.Service, cfg *config.Config) *UserHandler {
	return &UserHandler{quota: quotaSvc, cfg: cfg}
}

type initRequest struct {
	TgID int64 `json:"tg_id"`
}

// Init handles POST /api/user/init - creates or resolves the user
func (h *UserHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if req.TgID <= 0 {
		response.BadRequest(w, "tg_id is required")
		return
	}

	user, err := h.quota.Resolve(r.Context(), req.TgID)
	if err != nil {
		serverError(w, r, h.cfg, err)
		return
	}

	response.JSON(w, http.StatusOK, snapshotUser(user, h.quota.Now()))
}
