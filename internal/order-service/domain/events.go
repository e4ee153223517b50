package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle event types written to the outbox.
const (
	EventOrderPlaced    = "order_placed"
	EventOrderConfirmed = "order_confirmed"
	EventOrderFailed    = "order_failed"
	EventOrderCancelled = "order_cancelled"
)

// OrderEvent is the payload published for every status the order reaches.
type OrderEvent struct {
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	TotalAmount   string    `json:"total_amount"`
	ReservationID string    `json:"reservation_id,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventType maps a status to the event announcing it.
func EventType(s OrderStatus) (string, error) {
	switch s {
	case StatusPending:
		return EventOrderPlaced, nil
	case StatusConfirmed:
		return EventOrderConfirmed, nil
	case StatusFailed:
		return EventOrderFailed, nil
	case StatusCancelled:
		return EventOrderCancelled, nil
	}
	return "", fmt.Errorf("no event for status %q", s)
}

// NewOrderEvent returns the event type and JSON payload describing o as it
// is now.
func NewOrderEvent(o *Order) (string, []byte, error) {
	typ, err := EventType(o.Status)
	if err != nil {
		return "", nil, err
	}
	payload, err := json.Marshal(OrderEvent{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount.StringFixed(2),
		ReservationID: o.ReservationID,
		PaymentID:     o.PaymentID,
		Reason:        o.FailureReason,
		OccurredAt:    o.UpdatedAt,
	})
	if err != nil {
		return "", nil, fmt.Errorf("marshal %s event: %w", typ, err)
	}
	return typ, payload, nil
}
