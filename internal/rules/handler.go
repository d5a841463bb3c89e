package rules

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/vantage-bm/vantage/internal/platform/httpx"
	"github.com/vantage-bm/vantage/internal/shared"
)

// Guard wires permission checks in front of handlers.
type Guard interface {
	Require(permissionName string) func(http.Handler) http.Handler
}

// Handler exposes the business-rule API consumed by the settings UI.
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

// MountRoutes registers rule routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("rules.view"))
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("rules.edit"))
		r.Post("/", h.create)
		r.Delete("/{id}", h.delete)
	})
}

type createRuleRequest struct {
	SubjectKind   string          `json:"subject_kind" validate:"required,oneof=role user"`
	SubjectID     int64           `json:"subject_id" validate:"required,gt=0"`
	PermissionID  *int64          `json:"permission_id,omitempty" validate:"omitempty,gt=0"`
	ConditionType string          `json:"condition_type" validate:"required,oneof=time_window day_of_week location"`
	Condition     json.RawMessage `json:"condition" validate:"required"`
	Effect        string          `json:"effect" validate:"required,oneof=allow deny"`
}

type ruleResponse struct {
	ID            int64      `json:"id"`
	SubjectKind   string     `json:"subject_kind"`
	SubjectID     int64      `json:"subject_id"`
	PermissionID  *int64     `json:"permission_id,omitempty"`
	ConditionType string     `json:"condition_type"`
	Condition     Condition  `json:"condition"`
	Effect        string     `json:"effect"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	list, err := h.service.ListRules(r.Context(), identity.BusinessID)
	if err != nil {
		h.logger.Error("list rules", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]ruleResponse, 0, len(list))
	for _, rule := range list {
		out = append(out, toRuleResponse(rule))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cond, err := DecodeCondition(ConditionType(req.ConditionType), req.Condition)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rule, err := h.service.CreateRule(r.Context(), identity.UserID, Rule{
		BusinessID:    identity.BusinessID,
		SubjectKind:   SubjectKind(req.SubjectKind),
		SubjectID:     req.SubjectID,
		PermissionID:  req.PermissionID,
		ConditionType: ConditionType(req.ConditionType),
		Condition:     cond,
		Effect:        Effect(req.Effect),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	ruleID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || ruleID <= 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.DeleteRule(r.Context(), identity.BusinessID, identity.UserID, ruleID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidCondition):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("rule service", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func toRuleResponse(rule Rule) ruleResponse {
	return ruleResponse{
		ID:            rule.ID,
		SubjectKind:   string(rule.SubjectKind),
		SubjectID:     rule.SubjectID,
		PermissionID:  rule.PermissionID,
		ConditionType: string(rule.ConditionType),
		Condition:     rule.Condition,
		Effect:        string(rule.Effect),
		CreatedAt:     rule.CreatedAt,
	}
}
