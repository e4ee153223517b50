package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "PG_URL", "REDIS_ADDR", "KAFKA_BROKERS", "INVENTORY_BREAKER_THRESHOLD", "PRICE_LOOKUP"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5, cfg.Inventory.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Payment.CoolDown)
	assert.True(t, cfg.PriceLookup)
	assert.Empty(t, cfg.PostgresURL)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PG_URL", "postgres://localhost/orders")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PAYMENT_BREAKER_THRESHOLD", "3")
	t.Setenv("PAYMENT_BREAKER_COOLDOWN", "1m")
	t.Setenv("PAYMENT_CALL_TIMEOUT", "500ms")
	t.Setenv("PRICE_LOOKUP", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, Breaker{FailureThreshold: 3, CoolDown: time.Minute, CallTimeout: 500 * time.Millisecond}, cfg.Payment)
	assert.False(t, cfg.PriceLookup)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "bad duration", env: map[string]string{"INVENTORY_BREAKER_COOLDOWN": "soon"}, want: "INVENTORY_BREAKER_COOLDOWN"},
		{name: "bad integer", env: map[string]string{"OUTBOX_BATCH_SIZE": "many"}, want: "OUTBOX_BATCH_SIZE"},
		{name: "zero threshold", env: map[string]string{"PAYMENT_BREAKER_THRESHOLD": "0"}, want: "PAYMENT_BREAKER_THRESHOLD must be positive"},
		{name: "kafka without postgres", env: map[string]string{"KAFKA_BROKERS": "k1:9092", "PG_URL": ""}, want: "KAFKA_BROKERS requires PG_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadStandin(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OTEL_SERVICE_NAME", "")
	cfg, err := LoadStandin("payment-service", "8082")
	require.NoError(t, err)
	assert.Equal(t, ":8082", cfg.Addr)
	assert.Equal(t, "payment-service", cfg.ServiceName)
}
