package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID              string
	UserID          string
	Lines           []OrderLine
	ShippingAddress Address
	Status          OrderStatus
	TotalAmount     decimal.Decimal

	// ReservationID and PaymentID reference the downstream side effects so a
	// cancel or an external reconciler can undo them.
	ReservationID string
	PaymentID     string
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Address struct {
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

func (a Address) problems() []string {
	var out []string
	fields := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"zip", a.Zip},
		{"country", a.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, fmt.Sprintf("shipping_address.%s is required", f.name))
		}
	}
	return out
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo encodes the order lifecycle:
//
//	PENDING -> CONFIRMED | FAILED | CANCELLED
//	CONFIRMED -> CANCELLED
//
// FAILED and CANCELLED are final.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusFailed || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCancelled
	}
	return false
}

// Cancellable reports whether an explicit cancel is allowed from s.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(StatusCancelled)
}

// Total sums quantity x unit price over lines.
func Total(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ValidateLines checks the caller-controlled part of an order: at least one
// line, each with a product, a positive quantity and a non-negative price.
func ValidateLines(lines []OrderLine) error {
	if len(lines) == 0 {
		return NewValidationError("at least one item is required")
	}
	var problems []string
	for i, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d].product_id is required", i))
		}
		if l.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be greater than 0", i))
		}
		if l.UnitPrice.IsNegative() {
			problems = append(problems, fmt.Sprintf("items[%d].unit_price must not be negative", i))
		}
	}
	if len(problems) > 0 {
		return NewValidationError(problems...)
	}
	return nil
}

// Validate runs every input check that does not need a downstream call.
func Validate(userID string, lines []OrderLine, addr Address) error {
	var problems []string
	if strings.TrimSpace(userID) == "" {
		problems = append(problems, "user id is required")
	}
	if err := ValidateLines(lines); err != nil {
		problems = append(problems, err.(*ValidationError).Problems...)
	}
	problems = append(problems, addr.problems()...)
	if len(problems) > 0 {
		return NewValidationError(problems...)
	}
	return nil
}

// NewOrder builds a PENDING order. The total is always derived from lines,
// never taken from the caller.
func NewOrder(userID string, lines []OrderLine, addr Address, now time.Time) (*Order, error) {
	if err := Validate(userID, lines, addr); err != nil {
		return nil, err
	}
	frozen := make([]OrderLine, len(lines))
	copy(frozen, lines)

	now = now.UTC()
	return &Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Lines:           frozen,
		ShippingAddress: addr,
		Status:          StatusPending,
		TotalAmount:     Total(frozen),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Transition moves o to next and records the downstream references that
// came with it. Empty references keep their current value.
func (o *Order) Transition(next OrderStatus, reservationID, paymentID, reason string, at time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
	}
	o.Status = next
	if reservationID != "" {
		o.ReservationID = reservationID
	}
	if paymentID != "" {
		o.PaymentID = paymentID
	}
	if reason != "" {
		o.FailureReason = reason
	}
	o.UpdatedAt = at.UTC()
	return nil
}

// Quantities returns product id -> quantity, merging repeated products.
func (o *Order) Quantities() map[string]int {
	out := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		out[l.ProductID] += l.Quantity
	}
	return out
}

// Clone returns a deep copy so stores never share line slices with callers.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = make([]OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}
