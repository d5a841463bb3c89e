package audit

import (
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

// Handler serves the audit trail to administrators.
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

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("audit.view"))
		r.Get("/", h.list)
	})
}

type listResponse struct {
	Entries []Entry    `json:"entries"`
	Paging  pagingBody `json:"paging"`
}

type pagingBody struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, err := shared.IdentityFromContext(r.Context())
	if err != nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.ListEntries(r.Context(), identity.BusinessID, filters)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Entries == nil {
		result.Entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{
		Entries: result.Entries,
		Paging: pagingBody{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
			PrevPage: result.Paging.PrevPage,
			NextPage: result.Paging.NextPage,
		},
	})
}

func parseFilters(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	filters := ListFilters{
		Action:         q.Get("action"),
		PermissionName: q.Get("permission"),
	}
	if raw := q.Get("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ListFilters{}, err
		}
		filters.From = ts
	}
	if raw := q.Get("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ListFilters{}, err
		}
		filters.To = ts
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return ListFilters{}, err
		}
		filters.SubjectUserID = id
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return filters, nil
}
