// Package sagalog records every step and compensation a saga goes through.
//
// The log is append-only. It answers two questions after the fact:
//
//  1. Where did a given order's saga stop, and which trace covers it?
//
//  2. Which compensations failed and still need a reconciler to retry them?
//     Rows with StatusCompensationFailed carry the step name and the
//     downstream reference (reservation or payment id) to undo.
package sagalog

import "time"

// Status is the event a log row records.
type Status string

const (
	StatusStarted            Status = "STARTED"
	StatusStepDone           Status = "STEP_DONE"
	StatusStepFailed         Status = "STEP_FAILED"
	StatusCompensating       Status = "COMPENSATING"
	StatusCompensated        Status = "COMPENSATED"
	StatusCompensationFailed Status = "COMPENSATION_FAILED"
	StatusCompleted          Status = "COMPLETED"
	StatusFailed             Status = "FAILED"
)

// SagaLog is a single row in the saga_logs table.
type SagaLog struct {
	// SagaID is the order id, so rows join with order data.
	SagaID string

	// Saga names the workflow: "create_order" or "cancel_order".
	Saga string

	Status Status

	// CurrentStep is the step or compensation this row is about.
	CurrentStep string

	// Reference is the downstream id the step produced or the compensation
	// targets (reservation id, payment id).
	Reference string

	// Payload is the JSON input of the saga. Written on STARTED only.
	Payload string

	// ErrorMessages is a JSON array of failure details.
	ErrorMessages string

	// TraceID and SpanID locate the span that was active when the row was
	// written.
	TraceID string
	SpanID  string

	UpdatedAt time.Time
}
