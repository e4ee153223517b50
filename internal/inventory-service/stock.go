// Package inventoryservice is an in-memory inventory used for local runs and
// end-to-end tests of the order service.
package inventoryservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-orchestrator/internal/inventory-service/domain"
)

// Stock holds products and reservations behind one lock so a reservation
// checks and decrements every item atomically.
type Stock struct {
	mu           sync.Mutex
	products     map[string]domain.Product
	reservations map[string]*domain.Reservation
	byKey        map[string]string
	logger       *slog.Logger
}

func NewStock(products []domain.Product, logger *slog.Logger) *Stock {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stock{
		products:     make(map[string]domain.Product, len(products)),
		reservations: make(map[string]*domain.Reservation),
		byKey:        make(map[string]string),
		logger:       logger,
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

// Reserve takes every item or nothing. A repeated idempotency key returns the
// reservation made the first time without touching stock again.
func (s *Stock) Reserve(ctx context.Context, orderID, idempotencyKey string, items []domain.StockItem) (domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		s.logger.InfoContext(ctx, "duplicate reservation", "order_id", orderID, "reservation_id", id)
		return cloneReservation(s.reservations[id]), nil
	}

	need := make(map[string]int, len(items))
	for _, it := range items {
		need[it.ProductID] += it.Quantity
	}
	for id, qty := range need {
		p, ok := s.products[id]
		if !ok {
			return domain.Reservation{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
		}
		if p.Stock < qty {
			s.logger.InfoContext(ctx, "insufficient stock", "order_id", orderID, "product_id", id, "available", p.Stock, "requested", qty)
			return domain.Reservation{}, fmt.Errorf("%w: %s has %d, %d requested", domain.ErrInsufficientStock, id, p.Stock, qty)
		}
	}

	for id, qty := range need {
		p := s.products[id]
		p.Stock -= qty
		s.products[id] = p
	}

	r := &domain.Reservation{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Items:   append([]domain.StockItem(nil), items...),
	}
	s.reservations[r.ID] = r
	if idempotencyKey != "" {
		s.byKey[idempotencyKey] = r.ID
	}
	s.logger.InfoContext(ctx, "stock reserved", "order_id", orderID, "reservation_id", r.ID, "items", len(items))
	return cloneReservation(r), nil
}

// Release puts a reservation's stock back. Releasing twice is a no-op.
func (s *Stock) Release(ctx context.Context, reservationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[reservationID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrReservationNotFound, reservationID)
	}
	if r.Released {
		return nil
	}
	for _, it := range r.Items {
		p := s.products[it.ProductID]
		p.Stock += it.Quantity
		s.products[it.ProductID] = p
	}
	r.Released = true
	s.logger.InfoContext(ctx, "stock released", "order_id", r.OrderID, "reservation_id", r.ID)
	return nil
}

func (s *Stock) Product(_ context.Context, id string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
	}
	return p, nil
}

func cloneReservation(r *domain.Reservation) domain.Reservation {
	c := *r
	c.Items = append([]domain.StockItem(nil), r.Items...)
	return c
}
