package authz

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-bm/vantage/internal/platform/httpx"
	"github.com/vantage-bm/vantage/internal/shared"
)

// Handler exposes the check endpoint consumed by the web tier and sibling
// services.
type Handler struct {
	logger  *slog.Logger
	gateway Gateway
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, gateway Gateway) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gateway: gateway}
}

// MountRoutes registers authorization routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/check", h.check)
}

type checkRequest struct {
	Permission string `json:"permission"`
}

func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Permission == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "permission is required")
		return
	}
	decision, err := h.gateway.Check(r, identity, req.Permission)
	if err != nil {
		h.logger.Error("check endpoint failed closed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}
