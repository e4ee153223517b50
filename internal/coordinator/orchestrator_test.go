package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/order-orchestrator/internal/coordinator/sagalog"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/adapters/memory"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
	"github.com/jcmexdev/order-orchestrator/internal/pkg/breaker"
)

type fakeInventory struct {
	mu         sync.Mutex
	reserveErr error
	releaseErr error
	reserves   []string
	releases   []string
	prices     map[string]decimal.Decimal
}

func (f *fakeInventory) Reserve(_ context.Context, orderID string, _ []ports.StockItem) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserves = append(f.reserves, orderID)
	if f.reserveErr != nil {
		return "", f.reserveErr
	}
	return "res-" + orderID, nil
}

func (f *fakeInventory) Release(_ context.Context, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases = append(f.releases, reservationID)
	return f.releaseErr
}

func (f *fakeInventory) Price(_ context.Context, productID string) (decimal.Decimal, error) {
	p, ok := f.prices[productID]
	if !ok {
		return decimal.Zero, fmt.Errorf("lookup %s: %w", productID, ports.ErrProductNotFound)
	}
	return p, nil
}

type charge struct {
	orderID string
	amount  decimal.Decimal
	key     string
}

type fakePayment struct {
	mu        sync.Mutex
	chargeErr error
	charges   []charge
	refunds   []string
}

func (f *fakePayment) Charge(_ context.Context, orderID string, amount decimal.Decimal, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, charge{orderID: orderID, amount: amount, key: key})
	if f.chargeErr != nil {
		return "", f.chargeErr
	}
	return "pay-" + orderID, nil
}

func (f *fakePayment) Refund(_ context.Context, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, paymentID)
	return nil
}

type fakeSagaLog struct {
	mu      sync.Mutex
	entries []*sagalog.SagaLog
}

func (f *fakeSagaLog) Save(_ context.Context, e *sagalog.SagaLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeSagaLog) statuses(sagaID string) []sagalog.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sagalog.Status
	for _, e := range f.entries {
		if e.SagaID == sagaID {
			out = append(out, e.Status)
		}
	}
	return out
}

type fixture struct {
	orch      *Orchestrator
	orders    *memory.Repository
	inventory *fakeInventory
	payment   *fakePayment
	sagaLog   *fakeSagaLog
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		orders:    memory.NewRepository(),
		inventory: &fakeInventory{},
		payment:   &fakePayment{},
		sagaLog:   &fakeSagaLog{},
	}
	base := []Option{
		WithSagaLog(f.sagaLog),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.orch = NewOrchestrator(f.orders, f.inventory, f.payment, append(base, opts...)...)
	return f
}

var testAddress = domain.Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701", Country: "US"}

func p1Input() ports.CreateOrderInput {
	return ports.CreateOrderInput{
		UserID:          "u1",
		Lines:           []domain.OrderLine{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")}},
		ShippingAddress: testAddress,
	}
}

func onlyOrder(t *testing.T, repo *memory.Repository) *domain.Order {
	t.Helper()
	all, err := repo.List(context.Background(), ports.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	return all[0]
}

func TestCreateOrder_Confirms(t *testing.T) {
	f := newFixture()

	order, err := f.orch.CreateOrder(context.Background(), p1Input())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusConfirmed, order.Status)
	assert.True(t, decimal.NewFromInt(20).Equal(order.TotalAmount))
	assert.Equal(t, "res-"+order.ID, order.ReservationID)
	assert.Equal(t, "pay-"+order.ID, order.PaymentID)

	require.Len(t, f.payment.charges, 1)
	assert.Equal(t, order.ID, f.payment.charges[0].key, "order id is the idempotency key")
	assert.True(t, order.TotalAmount.Equal(f.payment.charges[0].amount))
	assert.Empty(t, f.inventory.releases)

	stored, err := f.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, stored.Status)

	assert.Equal(t, []sagalog.Status{
		sagalog.StatusStarted,
		sagalog.StatusStepDone,
		sagalog.StatusStepDone,
		sagalog.StatusStepDone,
		sagalog.StatusCompleted,
	}, f.sagaLog.statuses(order.ID))
}

func TestCreateOrder_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name string
		in   ports.CreateOrderInput
	}{
		{name: "no lines", in: ports.CreateOrderInput{UserID: "u1", ShippingAddress: testAddress}},
		{name: "zero quantity", in: ports.CreateOrderInput{
			UserID:          "u1",
			Lines:           []domain.OrderLine{{ProductID: "p1", Quantity: 0}},
			ShippingAddress: testAddress,
		}},
		{name: "missing address", in: ports.CreateOrderInput{
			UserID: "u1",
			Lines:  []domain.OrderLine{{ProductID: "p1", Quantity: 1}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.orch.CreateOrder(context.Background(), tt.in)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Empty(t, f.inventory.reserves)
			assert.Empty(t, f.payment.charges)

			all, err := f.orders.List(context.Background(), ports.ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, all, "nothing is persisted for invalid input")
		})
	}
}

func TestCreateOrder_InventoryFailureSkipsPayment(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind domain.FailureKind
	}{
		{name: "insufficient stock", err: fmt.Errorf("409: %w", ports.ErrInsufficientStock), wantKind: domain.KindRejected},
		{name: "breaker open", err: &breaker.OpenError{Name: "inventory", State: breaker.StateOpen}, wantKind: domain.KindUnavailable},
		{name: "server error", err: errors.New("inventory returned status 500"), wantKind: domain.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.inventory.reserveErr = tt.err

			_, err := f.orch.CreateOrder(context.Background(), p1Input())

			var invErr *domain.InventoryUnavailableError
			require.ErrorAs(t, err, &invErr)
			assert.Equal(t, tt.wantKind, invErr.Kind)
			assert.Empty(t, f.payment.charges, "no charge after a failed reservation")
			assert.Empty(t, f.inventory.releases, "nothing was reserved, nothing to release")

			order := onlyOrder(t, f.orders)
			assert.Equal(t, domain.StatusFailed, order.Status)
			assert.NotEmpty(t, order.FailureReason)
		})
	}
}

func TestCreateOrder_BreakerOpenNeverLeaks(t *testing.T) {
	f := newFixture()
	f.inventory.reserveErr = &breaker.OpenError{Name: "inventory", State: breaker.StateOpen}

	_, err := f.orch.CreateOrder(context.Background(), p1Input())

	var invErr *domain.InventoryUnavailableError
	require.ErrorAs(t, err, &invErr)
	assert.ErrorIs(t, err, breaker.ErrCircuitOpen, "the open circuit is the cause, not the surfaced type")
}

func TestCreateOrder_PaymentFailureReleasesOnce(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind domain.FailureKind
	}{
		{name: "declined", err: fmt.Errorf("402: %w", ports.ErrPaymentDeclined), wantKind: domain.KindRejected},
		{name: "breaker open", err: &breaker.OpenError{Name: "payment", State: breaker.StateOpen}, wantKind: domain.KindUnavailable},
		{name: "gateway error", err: errors.New("payment returned status 502"), wantKind: domain.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.payment.chargeErr = tt.err

			_, err := f.orch.CreateOrder(context.Background(), p1Input())

			var payErr *domain.PaymentFailedError
			require.ErrorAs(t, err, &payErr)
			assert.Equal(t, tt.wantKind, payErr.Kind)

			order := onlyOrder(t, f.orders)
			assert.Equal(t, []string{"res-" + order.ID}, f.inventory.releases, "exactly one release with the reservation id")
			assert.Empty(t, f.payment.refunds)
			assert.Equal(t, domain.StatusFailed, order.Status)
			assert.Equal(t, "res-"+order.ID, order.ReservationID)
		})
	}
}

func TestCreateOrder_ReleaseFailureIsRecordedNotEscalated(t *testing.T) {
	f := newFixture()
	f.payment.chargeErr = fmt.Errorf("402: %w", ports.ErrPaymentDeclined)
	f.inventory.releaseErr = &breaker.OpenError{Name: "inventory", State: breaker.StateOpen}

	_, err := f.orch.CreateOrder(context.Background(), p1Input())

	var payErr *domain.PaymentFailedError
	require.ErrorAs(t, err, &payErr, "caller still sees the payment failure")

	order := onlyOrder(t, f.orders)
	assert.Equal(t, domain.StatusFailed, order.Status)
	assert.Len(t, f.inventory.releases, 1, "release is attempted exactly once")
	assert.Contains(t, f.sagaLog.statuses(order.ID), sagalog.StatusCompensationFailed)

	var failed *sagalog.SagaLog
	for _, e := range f.sagaLog.entries {
		if e.Status == sagalog.StatusCompensationFailed {
			failed = e
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, CompensationReleaseStock, failed.CurrentStep)
	assert.Equal(t, "res-"+order.ID, failed.Reference)
}

func TestCreateOrder_TotalIgnoresCallerPricesWhenLookupWired(t *testing.T) {
	inv := &fakeInventory{prices: map[string]decimal.Decimal{
		"p1": decimal.RequireFromString("10.00"),
		"p2": decimal.RequireFromString("2.50"),
	}}
	f := newFixture(WithPriceLookup(inv))

	in := ports.CreateOrderInput{
		UserID: "u1",
		Lines: []domain.OrderLine{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("0.01")},
			{ProductID: "p2", Quantity: 4},
			{ProductID: "p1", Quantity: 1},
		},
		ShippingAddress: testAddress,
	}
	order, err := f.orch.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("40.00").Equal(order.TotalAmount), "got %s", order.TotalAmount)
	assert.True(t, order.TotalAmount.Equal(f.payment.charges[0].amount))
}

func TestCreateOrder_UnknownProductIsValidationError(t *testing.T) {
	inv := &fakeInventory{prices: map[string]decimal.Decimal{}}
	f := newFixture(WithPriceLookup(inv))

	_, err := f.orch.CreateOrder(context.Background(), p1Input())

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), `"p1" does not exist`)
	assert.Empty(t, f.inventory.reserves)
}

func TestCreateOrder_NegativeCataloguePriceIsRejected(t *testing.T) {
	inv := &fakeInventory{prices: map[string]decimal.Decimal{"p1": decimal.RequireFromString("-1.00")}}
	f := newFixture(WithPriceLookup(inv))

	_, err := f.orch.CreateOrder(context.Background(), p1Input())

	var invErr *domain.InventoryUnavailableError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, domain.KindUnavailable, invErr.Kind)
	assert.Empty(t, f.inventory.reserves)
	assert.Empty(t, f.payment.charges)

	all, err := f.orders.List(context.Background(), ports.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is persisted with a bad catalogue price")
}

func TestCreateOrder_CallerDisconnectDoesNotAbort(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	order, err := f.orch.CreateOrder(ctx, p1Input())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, order.Status)
}

func TestCancelOrder(t *testing.T) {
	owner := domain.Requester{UserID: "u1"}

	t.Run("confirmed order is refunded and released", func(t *testing.T) {
		f := newFixture()
		order, err := f.orch.CreateOrder(context.Background(), p1Input())
		require.NoError(t, err)

		cancelled, err := f.orch.CancelOrder(context.Background(), owner, order.ID)
		require.NoError(t, err)

		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
		assert.Equal(t, []string{"pay-" + order.ID}, f.payment.refunds)
		assert.Equal(t, []string{"res-" + order.ID}, f.inventory.releases)
	})

	t.Run("admin may cancel any order", func(t *testing.T) {
		f := newFixture()
		order, err := f.orch.CreateOrder(context.Background(), p1Input())
		require.NoError(t, err)

		_, err = f.orch.CancelOrder(context.Background(), domain.Requester{UserID: "ops", Role: domain.RoleAdmin}, order.ID)
		assert.NoError(t, err)
	})

	t.Run("other users are forbidden", func(t *testing.T) {
		f := newFixture()
		order, err := f.orch.CreateOrder(context.Background(), p1Input())
		require.NoError(t, err)

		_, err = f.orch.CancelOrder(context.Background(), domain.Requester{UserID: "u2"}, order.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)
		assert.Empty(t, f.payment.refunds)
	})

	t.Run("failed order cannot be cancelled", func(t *testing.T) {
		f := newFixture()
		f.inventory.reserveErr = fmt.Errorf("409: %w", ports.ErrInsufficientStock)
		_, err := f.orch.CreateOrder(context.Background(), p1Input())
		require.Error(t, err)
		order := onlyOrder(t, f.orders)

		_, err = f.orch.CancelOrder(context.Background(), owner, order.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture()
		_, err := f.orch.CancelOrder(context.Background(), owner, "missing")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestListOrders(t *testing.T) {
	f := newFixture(WithClock(steppingClock()))
	for _, user := range []string{"u1", "u2", "u1"} {
		in := p1Input()
		in.UserID = user
		_, err := f.orch.CreateOrder(context.Background(), in)
		require.NoError(t, err)
	}

	mine, err := f.orch.ListOrders(context.Background(), domain.Requester{UserID: "u1"}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	assert.True(t, mine[0].CreatedAt.After(mine[1].CreatedAt), "newest first")

	all, err := f.orch.ListOrders(context.Background(), domain.Requester{UserID: "ops", Role: domain.RoleAdmin}, 0, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := f.orch.ListOrders(context.Background(), domain.Requester{UserID: "ops", Role: domain.RoleAdmin}, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, all[1].ID, page[0].ID)
}

func TestGetOrder_Access(t *testing.T) {
	f := newFixture()
	order, err := f.orch.CreateOrder(context.Background(), p1Input())
	require.NoError(t, err)

	_, err = f.orch.GetOrder(context.Background(), domain.Requester{UserID: "u1"}, order.ID)
	assert.NoError(t, err)

	_, err = f.orch.GetOrder(context.Background(), domain.Requester{UserID: "u2"}, order.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
