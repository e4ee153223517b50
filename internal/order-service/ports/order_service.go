package ports

import (
	"context"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
)

// CreateOrderInput is what a caller may supply. There is no total: it is
// always derived from the lines.
type CreateOrderInput struct {
	UserID          string
	Lines           []domain.OrderLine
	ShippingAddress domain.Address
}

// OrderService is the inbound port served over HTTP.
type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error)
	GetOrder(ctx context.Context, req domain.Requester, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, req domain.Requester, skip, limit int) ([]*domain.Order, error)
	CancelOrder(ctx context.Context, req domain.Requester, id string) (*domain.Order, error)
}
