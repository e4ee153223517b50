// Package ports declares what the order orchestrator needs from the outside
// world: a place to keep orders and the two downstream services.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
)

// Downstream answers that are not outages. Adapters wrap these so the
// orchestrator can tell "no" apart from "nobody answered".
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrProductNotFound   = errors.New("product not found")
)

// StatusUpdate is applied atomically by OrderRepository.UpdateStatus. Empty
// ReservationID, PaymentID and Reason leave the stored values untouched.
type StatusUpdate struct {
	Status        domain.OrderStatus
	ReservationID string
	PaymentID     string
	Reason        string
	At            time.Time
}

// ListFilter selects a page of orders, newest first. An empty UserID means
// every user.
type ListFilter struct {
	UserID string
	Skip   int
	Limit  int
}

// OrderRepository persists orders. It never changes business fields; only
// status and downstream references move after Save.
type OrderRepository interface {
	Save(ctx context.Context, order *domain.Order) error
	// UpdateStatus returns domain.ErrOrderNotFound for unknown ids and
	// domain.ErrInvalidTransition when the stored status cannot move to
	// upd.Status.
	UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]*domain.Order, error)
}

// StockItem is one product quantity to reserve.
type StockItem struct {
	ProductID string
	Quantity  int
}

// InventoryClient reserves and releases stock. Reserve wraps
// ErrInsufficientStock when the service answered 409.
type InventoryClient interface {
	Reserve(ctx context.Context, orderID string, items []StockItem) (reservationID string, err error)
	// Release is idempotent: unknown or already released ids are not errors.
	Release(ctx context.Context, reservationID string) error
}

// PriceLookup returns the authoritative unit price of a product. It wraps
// ErrProductNotFound when the product does not exist.
type PriceLookup interface {
	Price(ctx context.Context, productID string) (decimal.Decimal, error)
}

// PaymentClient charges and refunds. Charge wraps ErrPaymentDeclined when
// the service answered 402.
type PaymentClient interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, idempotencyKey string) (paymentID string, err error)
	Refund(ctx context.Context, paymentID string) error
}
