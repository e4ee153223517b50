package sagalog

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceInfo holds the OTel identifiers found in a context.
type TraceInfo struct {
	TraceID string
	SpanID  string
}

// ExtractTraceInfo returns the ids of the span active in ctx as hex strings,
// or empty strings when there is none.
func ExtractTraceInfo(ctx context.Context) TraceInfo {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceInfo{}
	}
	return TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}

// Entry describes one row before it is stamped with trace ids and time.
type Entry struct {
	SagaID    string
	Saga      string
	Status    Status
	Step      string
	Reference string
	Payload   string
	Errors    []string
}

// NewEntry builds a SagaLog row from e, taking trace ids from ctx.
//
//	repo.Save(ctx, sagalog.NewEntry(ctx, sagalog.Entry{
//		SagaID: orderID, Saga: "create_order", Status: sagalog.StatusStepDone, Step: "reserve_stock",
//	}))
func NewEntry(ctx context.Context, e Entry) *SagaLog {
	ti := ExtractTraceInfo(ctx)

	errJSON := "[]"
	if len(e.Errors) > 0 {
		if b, err := json.Marshal(e.Errors); err == nil {
			errJSON = string(b)
		}
	}

	return &SagaLog{
		SagaID:        e.SagaID,
		Saga:          e.Saga,
		Status:        e.Status,
		CurrentStep:   e.Step,
		Reference:     e.Reference,
		Payload:       e.Payload,
		ErrorMessages: errJSON,
		TraceID:       ti.TraceID,
		SpanID:        ti.SpanID,
		UpdatedAt:     time.Now().UTC(),
	}
}
