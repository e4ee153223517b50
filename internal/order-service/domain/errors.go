package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrForbidden         = errors.New("order belongs to another user")
)

// ValidationError means the caller's input was malformed. No downstream call
// has been made when it is returned.
type ValidationError struct {
	Problems []string
}

func NewValidationError(problems ...string) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	return "invalid order: " + strings.Join(e.Problems, "; ")
}

// FailureKind separates "the answer was no" from "nobody answered".
type FailureKind string

const (
	// KindRejected: inventory had insufficient stock or payment was declined.
	KindRejected FailureKind = "rejected"
	// KindUnavailable: the dependency errored, timed out, or its circuit is open.
	KindUnavailable FailureKind = "unavailable"
)

// InventoryUnavailableError is returned when stock could not be reserved or
// priced. Nothing was reserved, so no compensation runs. OrderID is empty
// when the failure happened during price lookup, before the order existed.
type InventoryUnavailableError struct {
	OrderID string
	Kind    FailureKind
	Err     error
}

func (e *InventoryUnavailableError) Error() string {
	if e.Kind == KindRejected {
		return orderPrefix(e.OrderID) + fmt.Sprintf("insufficient stock: %v", e.Err)
	}
	return orderPrefix(e.OrderID) + fmt.Sprintf("inventory unavailable: %v", e.Err)
}

func (e *InventoryUnavailableError) Unwrap() error { return e.Err }

// PaymentFailedError is returned when the charge did not go through after
// stock was reserved. The reservation release has already been attempted.
type PaymentFailedError struct {
	OrderID string
	Kind    FailureKind
	Err     error
}

func (e *PaymentFailedError) Error() string {
	if e.Kind == KindRejected {
		return orderPrefix(e.OrderID) + fmt.Sprintf("payment declined: %v", e.Err)
	}
	return orderPrefix(e.OrderID) + fmt.Sprintf("payment unavailable: %v", e.Err)
}

func (e *PaymentFailedError) Unwrap() error { return e.Err }

func orderPrefix(id string) string {
	if id == "" {
		return ""
	}
	return "order " + id + ": "
}
