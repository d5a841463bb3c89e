package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-bm/vantage/internal/audit"
	"github.com/vantage-bm/vantage/internal/authz"
	"github.com/vantage-bm/vantage/internal/catalog"
	"github.com/vantage-bm/vantage/internal/observability"
	"github.com/vantage-bm/vantage/internal/overrides"
	"github.com/vantage-bm/vantage/internal/roles"
	"github.com/vantage-bm/vantage/internal/rules"
	"github.com/vantage-bm/vantage/internal/shared"
	"github.com/vantage-bm/vantage/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Pool           *pgxpool.Pool

	AuthzHandler     *authz.Handler
	CatalogHandler   *catalog.Handler
	RolesHandler     *roles.Handler
	OverridesHandler *overrides.Handler
	RulesHandler     *rules.Handler
	AuditHandler     *audit.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(req.Context()); err != nil {
				params.Logger.Warn("healthz db ping", slog.Any("error", err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.AuthzHandler != nil {
		r.Route("/authz", params.AuthzHandler.MountRoutes)
	}
	if params.CatalogHandler != nil {
		r.Route("/permissions", params.CatalogHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.OverridesHandler != nil {
		r.Route("/users", params.OverridesHandler.MountRoutes)
	}
	if params.RulesHandler != nil {
		r.Route("/rules", params.RulesHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
