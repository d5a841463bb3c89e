package catalog

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-bm/vantage/internal/platform/httpx"
)

// Guard wires permission checks in front of handlers.
type Guard interface {
	Require(permissionName string) func(http.Handler) http.Handler
}

// Handler serves the read-only permission catalog.
type Handler struct {
	cache *Cache
	guard Guard
}

// NewHandler constructs a Handler.
func NewHandler(cache *Cache, guard Guard) *Handler {
	return &Handler{cache: cache, guard: guard}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require("permissions.view"))
		r.Get("/", h.list)
	})
}

type permissionResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms := append([]Permission(nil), h.cache.All()...)
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Category != perms[j].Category {
			return perms[i].Category < perms[j].Category
		}
		return perms[i].Name < perms[j].Name
	})
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponse{
			ID:           p.ID,
			Name:         p.Name,
			Category:     p.Category,
			ResourceType: p.ResourceType,
			Action:       p.Action,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}
