package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
)

// Step and compensation names as they appear in logs and the saga log.
const (
	StepReserveStock  = "reserve_stock"
	StepChargePayment = "charge_payment"
	StepConfirmOrder  = "confirm_order"

	CompensationReleaseStock  = "release_stock"
	CompensationRefundPayment = "refund_payment"
)

// ReleaseStock returns the compensation that gives reserved stock back.
func ReleaseStock(client ports.InventoryClient, reservationID string) *Compensation {
	return &Compensation{
		Name:      CompensationReleaseStock,
		Reference: reservationID,
		Run: func(ctx context.Context) error {
			return client.Release(ctx, reservationID)
		},
	}
}

// RefundPayment returns the compensation that refunds a charge.
func RefundPayment(client ports.PaymentClient, paymentID string) *Compensation {
	return &Compensation{
		Name:      CompensationRefundPayment,
		Reference: paymentID,
		Run: func(ctx context.Context) error {
			return client.Refund(ctx, paymentID)
		},
	}
}

// --- ReserveStockStep ---

type ReserveStockStep struct {
	client  ports.InventoryClient
	orderID string
	items   []ports.StockItem

	reservationID string
}

func NewReserveStockStep(client ports.InventoryClient, orderID string, items []ports.StockItem) *ReserveStockStep {
	return &ReserveStockStep{client: client, orderID: orderID, items: items}
}

func (s *ReserveStockStep) Name() string { return StepReserveStock }

func (s *ReserveStockStep) Execute(ctx context.Context) StepResult {
	id, err := s.client.Reserve(ctx, s.orderID, s.items)
	if err != nil {
		return Failed(err)
	}
	s.reservationID = id
	return Succeeded(id, ReleaseStock(s.client, id))
}

// ReservationID is set once Execute succeeded.
func (s *ReserveStockStep) ReservationID() string { return s.reservationID }

// --- ChargePaymentStep ---

type ChargePaymentStep struct {
	client  ports.PaymentClient
	orderID string
	amount  decimal.Decimal

	paymentID string
}

func NewChargePaymentStep(client ports.PaymentClient, orderID string, amount decimal.Decimal) *ChargePaymentStep {
	return &ChargePaymentStep{client: client, orderID: orderID, amount: amount}
}

func (s *ChargePaymentStep) Name() string { return StepChargePayment }

// Execute charges the frozen order total, keyed by the order id.
func (s *ChargePaymentStep) Execute(ctx context.Context) StepResult {
	id, err := s.client.Charge(ctx, s.orderID, s.amount, s.orderID)
	if err != nil {
		return Failed(err)
	}
	s.paymentID = id
	return Succeeded(id, RefundPayment(s.client, id))
}

func (s *ChargePaymentStep) PaymentID() string { return s.paymentID }

// --- ConfirmOrderStep ---

// ConfirmOrderStep persists CONFIRMED together with the downstream ids. It
// fails when the order is no longer PENDING, which happens when it was
// cancelled while the saga ran; the earlier steps are then undone.
type ConfirmOrderStep struct {
	orders  ports.OrderRepository
	orderID string
	reserve *ReserveStockStep
	charge  *ChargePaymentStep
	now     func() time.Time

	order *domain.Order
}

func NewConfirmOrderStep(orders ports.OrderRepository, orderID string, reserve *ReserveStockStep, charge *ChargePaymentStep, now func() time.Time) *ConfirmOrderStep {
	return &ConfirmOrderStep{orders: orders, orderID: orderID, reserve: reserve, charge: charge, now: now}
}

func (s *ConfirmOrderStep) Name() string { return StepConfirmOrder }

func (s *ConfirmOrderStep) Execute(ctx context.Context) StepResult {
	order, err := s.orders.UpdateStatus(ctx, s.orderID, ports.StatusUpdate{
		Status:        domain.StatusConfirmed,
		ReservationID: s.reserve.ReservationID(),
		PaymentID:     s.charge.PaymentID(),
		At:            s.now(),
	})
	if err != nil {
		return Failed(fmt.Errorf("confirm order %s: %w", s.orderID, err))
	}
	s.order = order
	// Last step; nothing after it can fail.
	return Succeeded(order.ID, nil)
}

// Order is the confirmed order once Execute succeeded.
func (s *ConfirmOrderStep) Order() *domain.Order { return s.order }
