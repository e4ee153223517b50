// Package payment calls the payment service through its circuit breaker.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/breaker"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/httpjson"
)

type chargeRequest struct {
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type chargeResponse struct {
	PaymentID string `json:"payment_id"`
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
}

type Client struct {
	http    *httpjson.Client
	breaker *breaker.Breaker
}

var _ ports.PaymentClient = (*Client)(nil)

func NewClient(hc *httpjson.Client, b *breaker.Breaker) *Client {
	return &Client{http: hc, breaker: b}
}

// Charge bills amount to the order. A 402 answer wraps ports.ErrPaymentDeclined.
func (c *Client) Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (string, error) {
	req := chargeRequest{OrderID: orderID, Amount: amount, IdempotencyKey: idempotencyKey}

	res, err := breaker.Do(ctx, c.breaker, func(ctx context.Context) (chargeResponse, error) {
		var out chargeResponse
		err := c.http.Post(ctx, "/charge", idempotencyKey, req, &out)
		return out, err
	})
	if err != nil {
		var se *httpjson.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusPaymentRequired {
			return "", fmt.Errorf("payment: charge order %s: %w: %w", orderID, ports.ErrPaymentDeclined, err)
		}
		return "", fmt.Errorf("payment: charge order %s: %w", orderID, err)
	}
	if res.PaymentID == "" {
		return "", fmt.Errorf("payment: charge order %s: empty payment id", orderID)
	}
	return res.PaymentID, nil
}

func (c *Client) Refund(ctx context.Context, paymentID string) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.http.Post(ctx, "/refund", paymentID, refundRequest{PaymentID: paymentID}, nil)
	})
	if err != nil {
		return fmt.Errorf("payment: refund %s: %w", paymentID, err)
	}
	return nil
}
