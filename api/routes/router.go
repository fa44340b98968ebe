package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/machawaste/wastelink-backend/api/controllers"
	"github.com/machawaste/wastelink-backend/api/middleware"
	"github.com/machawaste/wastelink-backend/internal/lifecycle"
	"github.com/machawaste/wastelink-backend/pkg/config"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
)

// RouterParams carries everything the HTTP surface needs. Gatherer,
// HTTPMetrics and DeadLetters are optional; a nil Gatherer disables /metrics
// and a nil DeadLetters leaves the /v1/ops routes unmounted.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Lifecycle   lifecycle.Service
	Health      map[string]controllers.Pinger
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
	DeadLetters controllers.DeadLetterReader
}

func NewRouter(p RouterParams) http.Handler {
	logg := p.Logger
	svc := p.Lifecycle

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", controllers.HealthReady(p.Config, logg, p.Health))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", controllers.AccountOpen(svc, logg))

		if p.DeadLetters != nil {
			r.Route("/ops/dead-letters", func(r chi.Router) {
				r.Get("/", controllers.DeadLetterList(p.DeadLetters, logg))
				r.Get("/{eventID}", controllers.DeadLetterGet(p.DeadLetters, logg))
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.AccountID(logg))

			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Get("/balance", controllers.AccountBalance(svc, logg))
				r.Get("/history", controllers.AccountHistory(svc, logg))
				r.Get("/reconcile", controllers.AccountReconcile(svc, logg))
				r.Get("/listings", controllers.PosterListings(svc, logg))
				r.Post("/debits", controllers.AccountDebit(svc, logg))
			})

			r.Route("/listings", func(r chi.Router) {
				r.Get("/", controllers.ListingsAvailable(svc, logg))
				r.Post("/", controllers.ListingPost(svc, logg))
				r.Route("/{listingID}", func(r chi.Router) {
					r.Get("/", controllers.ListingGet(svc, logg))
					r.Get("/estimate", controllers.ListingEstimate(svc, logg))
					r.Post("/recycle", controllers.ListingRecycle(svc, logg))
					r.Get("/matches", controllers.ListingMatches(svc, logg))
					r.Post("/matches", controllers.MatchCreate(svc, logg))
				})
			})

			r.Route("/matches", func(r chi.Router) {
				r.Get("/", controllers.CollectorMatches(svc, logg))
				r.Route("/{matchID}", func(r chi.Router) {
					r.Get("/", controllers.MatchGet(svc, logg))
					r.Post("/accept", controllers.MatchAccept(svc, logg))
					r.Post("/reject", controllers.MatchReject(svc, logg))
					r.Post("/complete", controllers.MatchComplete(svc, logg))
				})
			})
		})
	})

	return r
}
