package overrides

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-bm/vantage/internal/catalog"
	"github.com/vantage-bm/vantage/internal/platform/httpx"
	"github.com/vantage-bm/vantage/internal/shared"
)

// Guard wires permission checks in front of handlers.
type Guard interface {
	Require(permissionName string) func(http.Handler) http.Handler
}

// Handler exposes the per-user override API consumed by the settings UI.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	guard    Guard
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard, validate: validator.New()}
}

// MountRoutes registers override routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("overrides.view"))
		r.Get("/{userID}/overrides", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("overrides.edit"))
		r.Put("/{userID}/overrides/{permission}", h.set)
		r.Delete("/{userID}/overrides/{permission}", h.revoke)
	})
}

type setOverrideRequest struct {
	Allowed   bool       `json:"allowed"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" validate:"omitempty,gt"`
}

type overrideResponse struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	PermissionID int64      `json:"permission_id"`
	Allowed      bool       `json:"allowed"`
	GrantedBy    int64      `json:"granted_by"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, err := h.service.ListActiveOverrides(r.Context(), identity.BusinessID, userID)
	if err != nil {
		h.logger.Error("list overrides", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]overrideResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOverrideResponse(o))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) set(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	permission := chi.URLParam(r, "permission")
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expires_at must be in the future")
		return
	}
	override, err := h.service.SetOverride(r.Context(), identity.BusinessID, identity.UserID, userID, permission, req.Allowed, req.ExpiresAt)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOverrideResponse(override))
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := pathUserID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	permission := chi.URLParam(r, "permission")
	if err := h.service.RevokeOverride(r.Context(), identity.BusinessID, identity.UserID, userID, permission); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownPermission):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "unknown permission")
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrExpiryInPast):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry must be in the future")
	case errors.Is(err, ErrConflict):
		httpx.RespondError(w, httpx.ErrConstraint)
	default:
		h.logger.Error("override service", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toOverrideResponse(o Override) overrideResponse {
	return overrideResponse{
		ID:           o.ID,
		UserID:       o.UserID,
		PermissionID: o.PermissionID,
		Allowed:      o.IsAllowed,
		GrantedBy:    o.GrantedBy,
		GrantedAt:    o.GrantedAt,
		ExpiresAt:    o.ExpiresAt,
	}
}

func pathUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.ErrValidation
	}
	return id, nil
}
