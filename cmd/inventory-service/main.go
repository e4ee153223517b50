package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	inventoryservice "github.com/jcmexdev/order-orchestrator/internal/inventory-service"
	"github.com/jcmexdev/order-orchestrator/internal/inventory-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadStandin("inventory-service", "8081")
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
	defer func() { _ = shutdown(context.Background()) }()

	products, err := domain.ParseCatalog(cfg.Catalog)
	if err != nil {
		log.Error("invalid CATALOG", "error", err)
		os.Exit(1)
	}
	stock := inventoryservice.NewStock(products, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(inventoryservice.NewRouter(stock), "inventory-service"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("inventory service http running", "addr", cfg.Addr, "products", len(products))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
