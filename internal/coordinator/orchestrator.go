// Package coordinator drives the order sagas: create (reserve stock, charge,
// confirm) and cancel (refund, release). Failures are compensated from the
// step results, never from panics.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/order-orchestrator/internal/coordinator/sagalog"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
)

// Saga names recorded in the saga log.
const (
	SagaCreateOrder = "create_order"
	SagaCancelOrder = "cancel_order"
)

// Paging bounds for ListOrders.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Orchestrator owns orders from PENDING until they reach a final status.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	orders    ports.OrderRepository
	inventory ports.InventoryClient
	payment   ports.PaymentClient
	prices    ports.PriceLookup
	sagaLog   sagalog.Repository
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*Orchestrator)

// WithPriceLookup makes unit prices come from the catalogue instead of the
// caller.
func WithPriceLookup(p ports.PriceLookup) Option {
	return func(o *Orchestrator) { o.prices = p }
}

func WithSagaLog(r sagalog.Repository) Option {
	return func(o *Orchestrator) { o.sagaLog = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

var _ ports.OrderService = (*Orchestrator)(nil)

func NewOrchestrator(orders ports.OrderRepository, inventory ports.InventoryClient, payment ports.PaymentClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		orders:    orders,
		inventory: inventory,
		payment:   payment,
		logger:    slog.Default(),
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateOrder validates, persists a PENDING order, reserves stock, charges
// the total and confirms. It returns *domain.ValidationError,
// *domain.InventoryUnavailableError or *domain.PaymentFailedError on the
// expected failure paths. Cancelling ctx does not stop downstream calls.
func (o *Orchestrator) CreateOrder(ctx context.Context, in ports.CreateOrderInput) (*domain.Order, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "orchestrator.CreateOrder", trace.WithAttributes(
		attribute.String("user.id", in.UserID),
		attribute.Int("order.lines", len(in.Lines)),
	))
	defer span.End()

	order, err := o.createOrder(ctx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return order, nil
}

func (o *Orchestrator) createOrder(ctx context.Context, in ports.CreateOrderInput) (*domain.Order, error) {
	if err := domain.Validate(in.UserID, in.Lines, in.ShippingAddress); err != nil {
		return nil, err
	}

	lines, err := o.priceLines(ctx, in.Lines)
	if err != nil {
		return nil, err
	}

	order, err := domain.NewOrder(in.UserID, lines, in.ShippingAddress, o.now())
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.total", order.TotalAmount.String()),
	)

	if err := o.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: save %s: %w", order.ID, err)
	}
	o.logger.InfoContext(ctx, "order placed", "order_id", order.ID, "user_id", order.UserID, "total", order.TotalAmount.String())

	reserve := NewReserveStockStep(o.inventory, order.ID, stockItems(order))
	charge := NewChargePaymentStep(o.payment, order.ID, order.TotalAmount)
	confirm := NewConfirmOrderStep(o.orders, order.ID, reserve, charge, o.now)

	saga := NewSaga(order.ID, SagaCreateOrder, []Step{reserve, charge, confirm}, o.sagaLog, o.logger)
	out := saga.Run(ctx, sagaPayload(order))
	if out.Err == nil {
		o.logger.InfoContext(ctx, "order confirmed", "order_id", order.ID,
			"reservation_id", reserve.ReservationID(), "payment_id", charge.PaymentID())
		return confirm.Order(), nil
	}

	var failure error
	switch out.FailedStep {
	case StepReserveStock:
		failure = &domain.InventoryUnavailableError{
			OrderID: order.ID,
			Kind:    kindOf(out.Err, ports.ErrInsufficientStock),
			Err:     out.Err,
		}
	case StepChargePayment:
		failure = &domain.PaymentFailedError{
			OrderID: order.ID,
			Kind:    kindOf(out.Err, ports.ErrPaymentDeclined),
			Err:     out.Err,
		}
	default:
		failure = fmt.Errorf("create order %s: %w", order.ID, out.Err)
	}

	o.markFailed(ctx, order.ID, reserve.ReservationID(), failure.Error())
	return nil, failure
}

// priceLines returns lines with catalogue prices when a lookup is wired.
// Without one, the caller's prices are taken as authoritative. Either way
// the prices are fixed here and never looked up again for this order.
func (o *Orchestrator) priceLines(ctx context.Context, lines []domain.OrderLine) ([]domain.OrderLine, error) {
	if o.prices == nil {
		return lines, nil
	}

	priced := make([]domain.OrderLine, len(lines))
	cache := make(map[string]int, len(lines))
	var problems []string
	for i, l := range lines {
		priced[i] = l
		if j, ok := cache[l.ProductID]; ok {
			priced[i].UnitPrice = priced[j].UnitPrice
			continue
		}

		price, err := o.prices.Price(ctx, l.ProductID)
		switch {
		case errors.Is(err, ports.ErrProductNotFound):
			problems = append(problems, fmt.Sprintf("items[%d].product_id %q does not exist", i, l.ProductID))
			continue
		case err != nil:
			return nil, &domain.InventoryUnavailableError{Kind: domain.KindUnavailable, Err: err}
		case price.IsNegative():
			return nil, &domain.InventoryUnavailableError{
				Kind: domain.KindUnavailable,
				Err:  fmt.Errorf("catalogue price %s for %q is negative", price, l.ProductID),
			}
		}
		priced[i].UnitPrice = price
		cache[l.ProductID] = i
	}
	if len(problems) > 0 {
		return nil, domain.NewValidationError(problems...)
	}
	return priced, nil
}

// markFailed is best effort: the downstream failure is what the caller sees.
func (o *Orchestrator) markFailed(ctx context.Context, orderID, reservationID, reason string) {
	_, err := o.orders.UpdateStatus(ctx, orderID, ports.StatusUpdate{
		Status:        domain.StatusFailed,
		ReservationID: reservationID,
		Reason:        reason,
		At:            o.now(),
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to mark order FAILED", "order_id", orderID, "error", err)
		return
	}
	o.logger.WarnContext(ctx, "order failed", "order_id", orderID, "reason", reason)
}

// CancelOrder moves a PENDING or CONFIRMED order to CANCELLED, then refunds
// and releases whatever the order holds. Compensation failures are logged and
// recorded; the order stays cancelled.
func (o *Orchestrator) CancelOrder(ctx context.Context, req domain.Requester, id string) (*domain.Order, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "orchestrator.CancelOrder", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	order, err := o.GetOrder(ctx, req, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.Cancellable() {
		return nil, fmt.Errorf("cancel order %s: %w: status is %s", id, domain.ErrInvalidTransition, order.Status)
	}

	cancelled, err := o.orders.UpdateStatus(ctx, id, ports.StatusUpdate{
		Status: domain.StatusCancelled,
		Reason: "cancelled by " + req.UserID,
		At:     o.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", id, err)
	}

	var comps []Compensation
	if cancelled.ReservationID != "" {
		comps = append(comps, *ReleaseStock(o.inventory, cancelled.ReservationID))
	}
	if cancelled.PaymentID != "" {
		comps = append(comps, *RefundPayment(o.payment, cancelled.PaymentID))
	}

	saga := NewSaga(id, SagaCancelOrder, nil, o.sagaLog, o.logger)
	out := saga.Compensate(ctx, comps)
	if len(out.Unresolved) > 0 {
		span.SetAttributes(attribute.Int("saga.unresolved_compensations", len(out.Unresolved)))
	}

	o.logger.InfoContext(ctx, "order cancelled", "order_id", id, "by", req.UserID, "compensated", out.Compensated)
	return cancelled, nil
}

// GetOrder returns the order when req owns it or is an admin.
func (o *Orchestrator) GetOrder(ctx context.Context, req domain.Requester, id string) (*domain.Order, error) {
	order, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.CanAccess(order) {
		return nil, fmt.Errorf("order %s: %w", id, domain.ErrForbidden)
	}
	return order, nil
}

// ListOrders returns a page of orders, newest first. Admins see every order.
func (o *Orchestrator) ListOrders(ctx context.Context, req domain.Requester, skip, limit int) ([]*domain.Order, error) {
	filter := ports.ListFilter{UserID: req.UserID, Skip: max(skip, 0), Limit: limit}
	if req.IsAdmin() {
		filter.UserID = ""
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}
	return o.orders.List(ctx, filter)
}

func kindOf(err, rejected error) domain.FailureKind {
	if errors.Is(err, rejected) {
		return domain.KindRejected
	}
	return domain.KindUnavailable
}

func stockItems(order *domain.Order) []ports.StockItem {
	items := make([]ports.StockItem, len(order.Lines))
	for i, l := range order.Lines {
		items[i] = ports.StockItem{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return items
}

type sagaInput struct {
	OrderID string          `json:"order_id"`
	UserID  string          `json:"user_id"`
	Total   string          `json:"total"`
	Items   []sagaInputLine `json:"items"`
}

type sagaInputLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

func sagaPayload(order *domain.Order) string {
	in := sagaInput{
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.TotalAmount.String(),
		Items:   make([]sagaInputLine, len(order.Lines)),
	}
	for i, l := range order.Lines {
		in.Items[i] = sagaInputLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return ""
	}
	return string(b)
}
