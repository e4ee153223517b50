package coordinator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jcmexdev/order-orchestrator/internal/coordinator/sagalog"
)

const tracerName = "github.com/jcmexdev/order-orchestrator/internal/coordinator"

// Compensation undoes the effect of a step that succeeded.
type Compensation struct {
	Name string
	// Reference is the downstream id being undone, kept in the saga log so a
	// reconciler can retry a failed compensation.
	Reference string
	Run       func(ctx context.Context) error
}

// StepResult is the outcome of a step. A failed result carries Err. A
// successful one carries the compensation that undoes it, or nil when there
// is nothing to undo.
type StepResult struct {
	Err          error
	Reference    string
	Compensation *Compensation
}

func Succeeded(reference string, comp *Compensation) StepResult {
	return StepResult{Reference: reference, Compensation: comp}
}

func Failed(err error) StepResult {
	return StepResult{Err: err}
}

// Step is a single unit of work in a saga.
type Step interface {
	Name() string
	Execute(ctx context.Context) StepResult
}

// Outcome reports how a saga run ended.
type Outcome struct {
	// FailedStep and Err are empty when every step succeeded.
	FailedStep string
	Err        error

	// Compensated lists compensations that ran without error; Unresolved
	// the ones that failed and were recorded for reconciliation.
	Compensated []string
	Unresolved  []CompensationFailure
}

// CompensationFailure is a compensation that did not go through.
type CompensationFailure struct {
	Name      string
	Reference string
	Err       error
}

// Saga runs steps in order and, when one fails, compensates the ones that
// succeeded in reverse order. Each compensation is attempted exactly once.
type Saga struct {
	id     string
	name   string
	steps  []Step
	log    sagalog.Repository
	logger *slog.Logger
	tracer trace.Tracer
}

// NewSaga builds a saga identified by id (the order id). sagaLog may be nil.
func NewSaga(id, name string, steps []Step, sagaLog sagalog.Repository, logger *slog.Logger) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{
		id:     id,
		name:   name,
		steps:  steps,
		log:    sagaLog,
		logger: logger,
		tracer: otel.Tracer(tracerName),
	}
}

// Run executes the steps. payload is recorded with the STARTED row.
func (s *Saga) Run(ctx context.Context, payload string) Outcome {
	s.record(ctx, sagalog.Entry{Status: sagalog.StatusStarted, Payload: payload})

	var done []Compensation
	for _, step := range s.steps {
		res := s.execute(ctx, step)
		if res.Err != nil {
			s.logger.WarnContext(ctx, "saga step failed",
				"saga", s.name, "saga_id", s.id, "step", step.Name(), "error", res.Err)
			s.record(ctx, sagalog.Entry{
				Status: sagalog.StatusStepFailed,
				Step:   step.Name(),
				Errors: []string{res.Err.Error()},
			})

			out := s.compensate(ctx, done)
			out.FailedStep = step.Name()
			out.Err = res.Err
			s.record(ctx, sagalog.Entry{Status: sagalog.StatusFailed, Step: step.Name()})
			return out
		}

		s.record(ctx, sagalog.Entry{Status: sagalog.StatusStepDone, Step: step.Name(), Reference: res.Reference})
		if res.Compensation != nil {
			done = append(done, *res.Compensation)
		}
	}

	s.logger.InfoContext(ctx, "saga completed", "saga", s.name, "saga_id", s.id)
	s.record(ctx, sagalog.Entry{Status: sagalog.StatusCompleted})
	return Outcome{}
}

// Compensate runs comps in reverse order outside of a step failure, for
// example when an order is cancelled after it was confirmed.
func (s *Saga) Compensate(ctx context.Context, comps []Compensation) Outcome {
	return s.compensate(ctx, comps)
}

func (s *Saga) execute(ctx context.Context, step Step) StepResult {
	ctx, span := s.tracer.Start(ctx, "saga."+step.Name(), trace.WithAttributes(
		attribute.String("saga.name", s.name),
		attribute.String("saga.id", s.id),
	))
	defer span.End()

	res := step.Execute(ctx)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	return res
}

func (s *Saga) compensate(ctx context.Context, comps []Compensation) Outcome {
	var out Outcome
	if len(comps) == 0 {
		return out
	}
	s.record(ctx, sagalog.Entry{Status: sagalog.StatusCompensating})

	for i := len(comps) - 1; i >= 0; i-- {
		comp := comps[i]
		s.logger.InfoContext(ctx, "compensating", "saga_id", s.id, "compensation", comp.Name, "reference", comp.Reference)

		cctx, span := s.tracer.Start(ctx, "saga.compensate."+comp.Name)
		err := comp.Run(cctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err != nil {
			s.logger.ErrorContext(ctx, "compensation failed, needs reconciliation",
				"saga_id", s.id, "compensation", comp.Name, "reference", comp.Reference, "error", err)
			s.record(ctx, sagalog.Entry{
				Status:    sagalog.StatusCompensationFailed,
				Step:      comp.Name,
				Reference: comp.Reference,
				Errors:    []string{err.Error()},
			})
			out.Unresolved = append(out.Unresolved, CompensationFailure{Name: comp.Name, Reference: comp.Reference, Err: err})
			continue
		}

		s.record(ctx, sagalog.Entry{Status: sagalog.StatusCompensated, Step: comp.Name, Reference: comp.Reference})
		out.Compensated = append(out.Compensated, comp.Name)
	}
	return out
}

// record appends to the saga log. A log write failure never changes the
// saga outcome.
func (s *Saga) record(ctx context.Context, e sagalog.Entry) {
	if s.log == nil {
		return
	}
	e.SagaID = s.id
	e.Saga = s.name
	if err := s.log.Save(ctx, sagalog.NewEntry(ctx, e)); err != nil {
		s.logger.ErrorContext(ctx, "saga log write failed", "saga_id", s.id, "status", e.Status, "error", err)
	}
}
