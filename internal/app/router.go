package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-procure/meridian-procure/internal/award"
	"github.com/meridian-procure/meridian-procure/internal/identity"
	"github.com/meridian-procure/meridian-procure/internal/mrf"
	"github.com/meridian-procure/meridian-procure/internal/observability"
	"github.com/meridian-procure/meridian-procure/internal/rfq"
	"github.com/meridian-procure/meridian-procure/internal/vendors"
	"github.com/meridian-procure/meridian-procure/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Identity       *identity.Middleware
	MRFHandler     *mrf.Handler
	RFQHandler     *rfq.Handler
	AwardHandler   *award.Handler
	VendorsHandler *vendors.Handler
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
	Pool           *pgxpool.Pool
}

// NewRouter constructs the chi.Router with Meridian defaults.
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
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if params.Identity != nil {
			r.Use(params.Identity.Require)
		}

		if params.MRFHandler != nil {
			r.Route("/mrfs", func(r chi.Router) {
				params.MRFHandler.MountRoutes(r)
				if params.AwardHandler != nil {
					params.AwardHandler.MountMRFRoutes(r)
				}
			})
		}

		if params.RFQHandler != nil {
			r.Route("/rfqs", func(r chi.Router) {
				params.RFQHandler.MountRoutes(r)
				if params.AwardHandler != nil {
					params.AwardHandler.MountRFQRoutes(r)
				}
			})
		}

		if params.VendorsHandler != nil {
			r.Route("/vendors", func(r chi.Router) {
				params.VendorsHandler.MountRoutes(r)
			})
		}

		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	return r
}
