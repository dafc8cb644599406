package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/scrapledger/scrapledger/internal/auth"
	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/dashboard"
	"github.com/scrapledger/scrapledger/internal/lot"
	"github.com/scrapledger/scrapledger/internal/party"
	"github.com/scrapledger/scrapledger/internal/report"
	"github.com/scrapledger/scrapledger/internal/shared"
	"github.com/scrapledger/scrapledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	AuthHandler      *auth.Handler
	PartyHandler     *party.Handler
	BillingHandler   *billing.Handler
	LotHandler       *lot.Handler
	DashboardHandler *dashboard.Handler
	ReportHandler    *report.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		params.AuthHandler.MountRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)
			params.PartyHandler.MountRoutes(r)
			params.BillingHandler.MountRoutes(r)
			params.LotHandler.MountRoutes(r)
			params.DashboardHandler.MountRoutes(r)
			params.ReportHandler.MountRoutes(r)
		})
	})

	return r
}
