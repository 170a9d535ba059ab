package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cobrehq/cbmm-accounts/api/controllers"
	"github.com/cobrehq/cbmm-accounts/api/middleware"
	"github.com/cobrehq/cbmm-accounts/internal/accounts"
	"github.com/cobrehq/cbmm-accounts/internal/events"
	"github.com/cobrehq/cbmm-accounts/internal/transactions"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	"github.com/cobrehq/cbmm-accounts/pkg/db"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
	"github.com/cobrehq/cbmm-accounts/pkg/redis"
)

// Deps carries everything the HTTP surface needs. Handlers do request and
// response shaping only; all business logic stays behind the services.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        redis.Pinger
	Accounts     accounts.Service
	Transactions transactions.Service
	Processor    events.Processor
	Batch        *events.BatchProcessor
	Metrics      prometheus.Gatherer
}

func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.DB, deps.Redis))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts/{accountNumber}", func(r chi.Router) {
			r.Get("/", controllers.GetAccount(deps.Accounts, deps.Logger))
			r.Get("/transactions", controllers.ListTransactions(deps.Transactions, deps.Logger))
		})
		r.Route("/events", func(r chi.Router) {
			r.Post("/", controllers.ProcessEvent(deps.Processor, deps.Logger))
			r.Post("/batch", controllers.ProcessBatch(deps.Batch, deps.Config.Batch, deps.Logger))
		})
	})

	return r
}
