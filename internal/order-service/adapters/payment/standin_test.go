package payment

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	paymentservice "github.com/jcmexdev/order-orchestrator/internal/payment-service"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/breaker"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/httpjson"
)

func TestClient_AgainstStandin(t *testing.T) {
	srv := httptest.NewServer(paymentservice.NewRouter(paymentservice.NewLedger(decimal.NewFromInt(100), nil)))
	t.Cleanup(srv.Close)
	b, err := breaker.New("payment", breaker.WithFailureThreshold(1), breaker.WithCoolDown(time.Hour))
	require.NoError(t, err)
	c := NewClient(httpjson.New("payment", srv.URL, nil), b)
	ctx := context.Background()

	id, err := c.Charge(ctx, "order-1", decimal.RequireFromString("20.00"), "order-1")
	require.NoError(t, err)
	again, err := c.Charge(ctx, "order-1", decimal.RequireFromString("20.00"), "order-1")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = c.Charge(ctx, "order-2", decimal.RequireFromString("100.01"), "order-2")
	assert.ErrorIs(t, err, ports.ErrPaymentDeclined)

	require.NoError(t, c.Refund(ctx, id))
	require.NoError(t, c.Refund(ctx, id))
	assert.Equal(t, breaker.StateClosed, b.State())
}
