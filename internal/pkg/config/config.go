// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Breaker is the tuning of one downstream circuit.
type Breaker struct {
	FailureThreshold int
	CoolDown         time.Duration
	CallTimeout      time.Duration
}

// Order configures cmd/order-service. Empty PostgresURL selects the
// in-memory order store; empty RedisAddr selects the in-process
// idempotency cache; empty KafkaBrokers disables the outbox relay.
type Order struct {
	ServiceName     string
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration

	InventoryURL string
	PaymentURL   string
	Inventory    Breaker
	Payment      Breaker
	PriceLookup  bool

	PostgresURL    string
	SagaLogPath    string
	RedisAddr      string
	IdempotencyTTL time.Duration

	KafkaBrokers   []string
	OutboxTopic    string
	OutboxInterval time.Duration
	OutboxBatch    int
}

// Load reads the order service settings and validates them.
func Load() (*Order, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := &Order{
		ServiceName:     GetEnv("OTEL_SERVICE_NAME", "order-service"),
		Addr:            ":" + GetEnv("PORT", "8080"),
		LogLevel:        GetEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),

		InventoryURL: GetEnv("INVENTORY_URL", "http://localhost:8081"),
		PaymentURL:   GetEnv("PAYMENT_URL", "http://localhost:8082"),
		Inventory:    p.breaker("INVENTORY"),
		Payment:      p.breaker("PAYMENT"),
		PriceLookup:  p.bool("PRICE_LOOKUP", true),

		PostgresURL:    os.Getenv("PG_URL"),
		SagaLogPath:    GetEnv("SAGA_LOG_PATH", "saga.db"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		IdempotencyTTL: p.duration("IDEMPOTENCY_TTL", 24*time.Hour),

		KafkaBrokers:   splitList(os.Getenv("KAFKA_BROKERS")),
		OutboxTopic:    GetEnv("OUTBOX_TOPIC", "order-events"),
		OutboxInterval: p.duration("OUTBOX_INTERVAL", time.Second),
		OutboxBatch:    p.int("OUTBOX_BATCH_SIZE", 100),
	}

	if cfg.InventoryURL == "" || cfg.PaymentURL == "" {
		errs = append(errs, errors.New("INVENTORY_URL and PAYMENT_URL cannot be empty"))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.PostgresURL == "" {
		errs = append(errs, errors.New("KAFKA_BROKERS requires PG_URL: events are relayed from the postgres outbox"))
	}
	if cfg.OutboxBatch <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.OutboxBatch))
	}
	for _, b := range []struct {
		name string
		cfg  Breaker
	}{{"INVENTORY", cfg.Inventory}, {"PAYMENT", cfg.Payment}} {
		if b.cfg.FailureThreshold <= 0 {
			errs = append(errs, fmt.Errorf("%s_BREAKER_THRESHOLD must be positive", b.name))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Standin configures the in-memory inventory and payment services.
type Standin struct {
	ServiceName string
	Addr        string
	LogLevel    string
	// Catalog seeds inventory as "id:price:stock,...".
	Catalog string
	// ChargeLimit is the amount above which payment declines.
	ChargeLimit string
}

// LoadStandin reads the settings of a stand-in service listening on
// defaultPort by default.
func LoadStandin(service, defaultPort string) (*Standin, error) {
	cfg := &Standin{
		ServiceName: GetEnv("OTEL_SERVICE_NAME", service),
		Addr:        ":" + GetEnv("PORT", defaultPort),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Catalog:     GetEnv("CATALOG", "p1:10.00:100,p2:25.50:20,p3:99.99:5"),
		ChargeLimit: GetEnv("CHARGE_LIMIT", "1000"),
	}
	if cfg.Addr == ":" {
		return nil, errors.New("config: PORT cannot be empty")
	}
	return cfg, nil
}

// GetEnv returns the value of key or fallback when it is unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

type parser struct {
	errs *[]error
}

func (p parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return fallback
	}
	return d
}

func (p parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return fallback
	}
	return n
}

func (p parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return fallback
	}
	return b
}

func (p parser) breaker(prefix string) Breaker {
	return Breaker{
		FailureThreshold: p.int(prefix+"_BREAKER_THRESHOLD", 5),
		CoolDown:         p.duration(prefix+"_BREAKER_COOLDOWN", 30*time.Second),
		CallTimeout:      p.duration(prefix+"_CALL_TIMEOUT", 2*time.Second),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
