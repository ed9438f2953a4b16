package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flagit/flagit-backend/api/controllers"
	"github.com/flagit/flagit-backend/api/middleware"
	"github.com/flagit/flagit-backend/internal/certifications"
	"github.com/flagit/flagit-backend/internal/stores"
	"github.com/flagit/flagit-backend/pkg/config"
	"github.com/flagit/flagit-backend/pkg/logger"
	pkgredis "github.com/flagit/flagit-backend/pkg/redis"
)

// redisStore is the subset of the redis client the middleware chain needs.
type redisStore interface {
	pkgredis.SubmissionStore
	middleware.RateLimitStore
	Ping(ctx context.Context) error
}

// Dependencies groups what the router wires into controllers.
type Dependencies struct {
	DB             controllers.Pinger
	Redis          redisStore
	Certifications certifications.Service
	Stores         stores.Service
	Gatherer       prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{"db": deps.DB}
	var idem pkgredis.SubmissionStore
	var limiter middleware.RateLimitStore
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
		idem = deps.Redis
		limiter = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	pollPolicy := middleware.NewRateLimitPolicy(
		"certification_status",
		cfg.Certification.PollWindow,
		cfg.Certification.PollMemberLimit,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/certifications", func(r chi.Router) {
			r.Get("/", controllers.CertificationHistory(deps.Certifications, logg))
			// POST takes a store id and GET a certification id on the same segment,
			// so both share the {id} key.
			r.With(middleware.Idempotency(idem, logg)).Post("/{id}", controllers.CertificationSubmit(deps.Certifications, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(pollPolicy, limiter, logg))
				r.Get("/status/{certificationId}", controllers.CertificationStatus(deps.Certifications, logg))
				r.Get("/{id}", controllers.CertificationConfirm(deps.Certifications, logg))
			})
		})

		r.Route("/stores", func(r chi.Router) {
			r.Get("/", controllers.StoreList(deps.Stores, logg))
			r.Get("/{storeId}", controllers.StoreDetail(deps.Stores, logg))
		})
	})

	return r
}
