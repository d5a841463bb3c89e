package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-bm/vantage/internal/platform/httpx"
	"github.com/vantage-bm/vantage/internal/shared"
)

// Guard wires permission checks in front of handlers.
type Guard interface {
	Require(permissionName string) func(http.Handler) http.Handler
}

// Handler exposes the role management API consumed by the settings UI.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   Guard
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers role routes. Reads require roles.view, writes
// roles.edit; the guard resolves both through the same engine it protects.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("roles.view"))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("roles.edit"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Put("/{id}/permissions/{permID}", h.grant)
		r.Delete("/{id}/permissions/{permID}", h.revoke)
	})
}

type roleResponse struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	IsSystemRole bool      `json:"is_system_role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	list, err := h.service.ListRoles(r.Context(), identity.BusinessID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), identity.BusinessID, roleID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), identity.BusinessID, identity.UserID, req.Name, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), identity.BusinessID, identity.UserID, roleID, req.Name, req.Description)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.GetRolePermissions(r.Context(), identity.BusinessID, roleID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	h.mutateGrant(w, r, true)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.mutateGrant(w, r, false)
}

func (h *Handler) mutateGrant(w http.ResponseWriter, r *http.Request, grant bool) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	roleID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	permID, err := pathID(r, "permID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if grant {
		err = h.service.GrantPermission(r.Context(), identity.BusinessID, identity.UserID, roleID, permID)
	} else {
		err = h.service.RevokePermission(r.Context(), identity.BusinessID, identity.UserID, roleID, permID)
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrSystemRole):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "system roles are read-only")
	default:
		h.logger.Error("role service", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		Description:  role.Description,
		IsSystemRole: role.IsSystemRole,
		CreatedAt:    role.CreatedAt,
		UpdatedAt:    role.UpdatedAt,
	}
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, httpx.ErrValidation
	}
	return id, nil
}
