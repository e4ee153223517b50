package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jcmexdev/order-orchestrator/internal/coordinator"
	"github.com/jcmexdev/order-orchestrator/internal/coordinator/sagalog/sqlite"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/httpx"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/inventory"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/memory"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/payment"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/postgres"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/breaker"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/httpjson"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/outbox"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := telemetry.InitLogger(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		log.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error("tracer shutdown error", "error", err)
		}
	}()

	// Order store: postgres with a transactional outbox, or memory for local runs.
	var orders ports.OrderRepository
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("pg connect failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Error("pg migrate failed", "error", err)
			os.Exit(1)
		}
		orders = postgres.NewRepository(log, pool)

		if len(cfg.KafkaBrokers) > 0 {
			writer := outbox.NewWriter(cfg.KafkaBrokers)
			defer writer.Close()
			relay := outbox.NewRelay(log, postgres.NewOutboxStore(log, pool),
				outbox.NewDispatcher(log, writer, cfg.OutboxTopic), relayID(cfg.ServiceName),
				outbox.WithBatchSize(cfg.OutboxBatch),
				outbox.WithInterval(cfg.OutboxInterval),
			)
			go func() {
				if err := relay.Run(ctx); err != nil {
					log.Error("relay stopped with error", "error", err)
				}
			}()
		}
	} else {
		log.Warn("PG_URL not set, orders are kept in memory")
		orders = memory.NewRepository()
	}

	sagaLog, err := sqlite.Open(cfg.SagaLogPath)
	if err != nil {
		log.Error("failed to open saga log", "path", cfg.SagaLogPath, "error", err)
		os.Exit(1)
	}
	defer sagaLog.Close()

	idem, err := idempotencyCache(ctx, cfg, log)
	if err != nil {
		log.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	invBreaker, err := newBreaker("inventory", cfg.Inventory, log)
	if err != nil {
		log.Error("invalid inventory breaker", "error", err)
		os.Exit(1)
	}
	payBreaker, err := newBreaker("payment", cfg.Payment, log)
	if err != nil {
		log.Error("invalid payment breaker", "error", err)
		os.Exit(1)
	}

	inv := inventory.NewClient(httpjson.New("inventory", cfg.InventoryURL, nil), invBreaker)
	pay := payment.NewClient(httpjson.New("payment", cfg.PaymentURL, nil), payBreaker)

	opts := []coordinator.Option{coordinator.WithSagaLog(sagaLog), coordinator.WithLogger(log)}
	if cfg.PriceLookup {
		opts = append(opts, coordinator.WithPriceLookup(inv))
	}
	orch := coordinator.NewOrchestrator(orders, inv, pay, opts...)

	handler := httpx.NewHandler(orch, invBreaker, payBreaker)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpx.NewRouter(handler, httpx.RouterConfig{
			Cache:          idem,
			IdempotencyTTL: cfg.IdempotencyTTL,
			Logger:         log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("order service http running", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown error", "error", err)
	}
	log.Info("order service shutdown complete")
}

func newBreaker(name string, cfg config.Breaker, log *slog.Logger) (*breaker.Breaker, error) {
	return breaker.New(name,
		breaker.WithFailureThreshold(cfg.FailureThreshold),
		breaker.WithCoolDown(cfg.CoolDown),
		breaker.WithCallTimeout(cfg.CallTimeout),
		breaker.WithStateChangeHook(func(c breaker.StateChange) {
			log.Warn("circuit breaker state changed", "breaker", c.Name, "from", c.From.String(), "to", c.To.String())
		}),
	)
}

func idempotencyCache(ctx context.Context, cfg *config.Order, log *slog.Logger) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, idempotent replay is per process")
		return cache.NewMemoryCache(cfg.ServiceName), nil
	}
	client, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	return cache.NewRedisCache(client, cfg.ServiceName), nil
}

func relayID(service string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "local"
	}
	return fmt.Sprintf("%s-%s-%d", service, host, os.Getpid())
}
