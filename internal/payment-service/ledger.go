// Package paymentservice is an in-memory payment processor used for local
// runs and end-to-end tests of the order service.
package paymentservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDeclined        = errors.New("payment declined")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrInvalidAmount   = errors.New("amount must not be negative")
)

type Status string

const (
	StatusCaptured Status = "CAPTURED"
	StatusRefunded Status = "REFUNDED"
)

type Payment struct {
	ID      string
	OrderID string
	Amount  decimal.Decimal
	Status  Status
}

// Ledger declines any charge above limit and dedups charges by idempotency
// key.
type Ledger struct {
	mu       sync.Mutex
	limit    decimal.Decimal
	payments map[string]*Payment
	byKey    map[string]string
	logger   *slog.Logger
}

func NewLedger(limit decimal.Decimal, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		limit:    limit,
		payments: make(map[string]*Payment),
		byKey:    make(map[string]string),
		logger:   logger,
	}
}

func (l *Ledger) Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id, ok := l.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		l.logger.InfoContext(ctx, "duplicate charge", "order_id", orderID, "payment_id", id)
		return *l.payments[id], nil
	}
	if amount.IsNegative() {
		return Payment{}, ErrInvalidAmount
	}
	if amount.GreaterThan(l.limit) {
		l.logger.InfoContext(ctx, "charge declined", "order_id", orderID, "amount", amount.String(), "limit", l.limit.String())
		return Payment{}, fmt.Errorf("%w: %s exceeds limit %s", ErrDeclined, amount.StringFixed(2), l.limit.StringFixed(2))
	}

	p := &Payment{ID: uuid.NewString(), OrderID: orderID, Amount: amount, Status: StatusCaptured}
	l.payments[p.ID] = p
	if idempotencyKey != "" {
		l.byKey[idempotencyKey] = p.ID
	}
	l.logger.InfoContext(ctx, "charge captured", "order_id", orderID, "payment_id", p.ID, "amount", amount.StringFixed(2))
	return *p, nil
}

// Refund is idempotent: refunding a refunded payment succeeds.
func (l *Ledger) Refund(ctx context.Context, paymentID string) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.payments[paymentID]
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
	}
	if p.Status != StatusRefunded {
		p.Status = StatusRefunded
		l.logger.InfoContext(ctx, "payment refunded", "order_id", p.OrderID, "payment_id", p.ID, "amount", p.Amount.StringFixed(2))
	}
	return *p, nil
}
