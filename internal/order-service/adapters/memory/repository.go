// Package memory keeps orders in process memory. It backs local runs without
// PostgreSQL and the orchestrator tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
	"github.com/jcmexdev/order-orchestrator/internal/order-service/ports"
)

type Repository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

var _ ports.OrderRepository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		orders: make(map[string]*domain.Order),
	}
}

func (r *Repository) Save(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return fmt.Errorf("memory: order %s already exists", order.ID)
	}
	r.orders[order.ID] = order.Clone()
	return nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, upd ports.StatusUpdate) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("memory: order %s: %w", id, domain.ErrOrderNotFound)
	}

	at := upd.At
	if at.IsZero() {
		at = time.Now()
	}
	next := order.Clone()
	if err := next.Transition(upd.Status, upd.ReservationID, upd.PaymentID, upd.Reason, at); err != nil {
		return nil, fmt.Errorf("memory: order %s: %w", id, err)
	}
	r.orders[id] = next
	return next.Clone(), nil
}

func (r *Repository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("memory: order %s: %w", id, domain.ErrOrderNotFound)
	}
	return order.Clone(), nil
}

func (r *Repository) List(_ context.Context, filter ports.ListFilter) ([]*domain.Order, error) {
	r.mu.RLock()
	matched := make([]*domain.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.UserID == "" || o.UserID == filter.UserID {
			matched = append(matched, o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Skip >= len(matched) {
		return []*domain.Order{}, nil
	}
	matched = matched[max(filter.Skip, 0):]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}
