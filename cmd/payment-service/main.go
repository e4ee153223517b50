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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	paymentservice "github.com/jcmexdev/order-orchestrator/internal/payment-service"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.LoadStandin("payment-service", "8082")
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

	limit, err := decimal.NewFromString(cfg.ChargeLimit)
	if err != nil {
		log.Error("invalid CHARGE_LIMIT", "value", cfg.ChargeLimit, "error", err)
		os.Exit(1)
	}
	ledger := paymentservice.NewLedger(limit, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(paymentservice.NewRouter(ledger), "payment-service"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("payment service http running", "addr", cfg.Addr, "charge_limit", limit.String())
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
