package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/SanmishaTech/clinicminds-sub002/internal/adminstock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/auth"
	"github.com/SanmishaTech/clinicminds-sub002/internal/authz"
	"github.com/SanmishaTech/clinicminds-sub002/internal/masterdata/franchises"
	"github.com/SanmishaTech/clinicminds-sub002/internal/masterdata/medicines"
	"github.com/SanmishaTech/clinicminds-sub002/internal/observability"
	"github.com/SanmishaTech/clinicminds-sub002/internal/sales"
	"github.com/SanmishaTech/clinicminds-sub002/internal/shared"
	"github.com/SanmishaTech/clinicminds-sub002/internal/stock"
	"github.com/SanmishaTech/clinicminds-sub002/internal/transport"
	"github.com/SanmishaTech/clinicminds-sub002/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Authz          authz.Middleware

	AuthHandler       *auth.Handler
	SalesHandler      *sales.Handler
	TransportHandler  *transport.Handler
	StockHandler      *stock.Handler
	AdminStockHandler *adminstock.Handler
	MedicineHandler   *medicines.Handler
	FranchiseHandler  *franchises.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router for the JSON API.
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

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/auth", params.AuthHandler.MountRoutes)

	// everything below requires an authenticated session with a resolved role
	r.Group(func(r chi.Router) {
		r.Use(params.Authz.Resolve)
		params.SalesHandler.MountRoutes(r)
		params.TransportHandler.MountRoutes(r)
		params.StockHandler.MountRoutes(r)
		params.AdminStockHandler.MountRoutes(r)
		params.MedicineHandler.MountRoutes(r)
		params.FranchiseHandler.MountRoutes(r)

		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
