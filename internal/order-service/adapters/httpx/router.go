package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/httpx/middlewares"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/cache"
)

// RouterConfig carries the optional pieces of the router. A nil Cache turns
// idempotent replay off.
type RouterConfig struct {
	Cache          cache.Cache
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewRouter(handler *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)
	r.Get("/health/breakers", handler.Breakers)

	r.Route("/orders", func(r chi.Router) {
		r.Use(middlewares.Identity)
		if cfg.Cache != nil {
			ttl := cfg.IdempotencyTTL
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			r.Use(middlewares.Idempotency(cfg.Cache, ttl, cfg.Logger))
		}

		r.Post("/", handler.CreateOrder)
		r.Get("/", handler.ListOrders)
		r.Get("/{id}", handler.GetOrderByID)
		r.Post("/{id}/cancel", handler.CancelOrder)
	})
	return r
}
