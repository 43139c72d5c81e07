package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mason-erp/mason-erp/internal/billing"
	"github.com/mason-erp/mason-erp/internal/materials"
	"github.com/mason-erp/mason-erp/internal/observability"
	"github.com/mason-erp/mason-erp/internal/payments"
	"github.com/mason-erp/mason-erp/internal/projects"
	"github.com/mason-erp/mason-erp/internal/stock"
	"github.com/mason-erp/mason-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	StockHandler     *stock.Handler
	MaterialsHandler *materials.Handler
	BillingHandler   *billing.Handler
	PaymentsHandler  *payments.Handler
	ProjectsHandler  *projects.Handler
	JobHandler       *jobs.Handler
	Pool             *pgxpool.Pool
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Mason defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		if params.StockHandler != nil {
			api.Route("/stock", params.StockHandler.MountRoutes)
		}
		if params.MaterialsHandler != nil {
			api.Route("/materials", params.MaterialsHandler.MountRoutes)
		}
		if params.BillingHandler != nil {
			api.Route("/billing", params.BillingHandler.MountRoutes)
		}
		if params.PaymentsHandler != nil {
			api.Route("/payments", params.PaymentsHandler.MountRoutes)
		}
		if params.ProjectsHandler != nil {
			api.Route("/projects", params.ProjectsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			api.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
