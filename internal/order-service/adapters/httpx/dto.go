package httpx

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jcmexdev/order-orchestrator/internal/order-service/domain"
)

// CreateOrderRequest has no total field. Unknown fields, a "total" included,
// are ignored by the decoder.
type CreateOrderRequest struct {
	Items           []CreateOrderItemDTO `json:"items"`
	ShippingAddress AddressDTO           `json:"shipping_address"`
}

type CreateOrderItemDTO struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type AddressDTO struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          string              `json:"status"`
	Total           string              `json:"total"`
	Items           []OrderItemResponse `json:"items"`
	ShippingAddress AddressDTO          `json:"shipping_address"`
	ReservationID   string              `json:"reservation_id,omitempty"`
	PaymentID       string              `json:"payment_id,omitempty"`
	Reason          string              `json:"reason,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Skip   int             `json:"skip"`
	Limit  int             `json:"limit"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	OrderID string   `json:"order_id,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (r CreateOrderRequest) lines() []domain.OrderLine {
	out := make([]domain.OrderLine, len(r.Items))
	for i, it := range r.Items {
		out[i] = domain.OrderLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
	}
	return out
}

func (a AddressDTO) toDomain() domain.Address {
	return domain.Address{
		Street:  a.Street,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: a.Country,
	}
}

func mapOrderToResponse(o *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Lines))
	for i, l := range o.Lines {
		items[i] = OrderItemResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal().StringFixed(2),
		}
	}
	a := o.ShippingAddress
	return OrderResponse{
		ID:     o.ID,
		UserID: o.UserID,
		Status: string(o.Status),
		Total:  o.TotalAmount.StringFixed(2),
		Items:  items,
		ShippingAddress: AddressDTO{
			Street:  a.Street,
			City:    a.City,
			State:   a.State,
			Zip:     a.Zip,
			Country: a.Country,
		},
		ReservationID: o.ReservationID,
		PaymentID:     o.PaymentID,
		Reason:        o.FailureReason,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
