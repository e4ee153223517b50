// Package breaker implements a per-dependency circuit breaker.
//
// A Breaker wraps outbound calls to one dependency and tracks consecutive
// failures. Once the threshold is reached the circuit opens and calls fail
// fast with ErrCircuitOpen without touching the network. After the cool-down a
// single probe is let through; its outcome either closes the circuit again or
// re-opens it for another cool-down.
//
// A Breaker is safe for concurrent use and is meant to be created once per
// dependency at process start and shared by every request.
//
//	b, err := breaker.New("payment-service", breaker.WithFailureThreshold(3))
//	id, err := breaker.Do(ctx, b, func(ctx context.Context) (string, error) { ... })
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the position of a Breaker in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var (
	// ErrCircuitOpen is returned, wrapped in *OpenError, when a call is
	// rejected without being attempted.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCallTimeout is returned when a wrapped call exceeds the call timeout.
	// The late result of such a call is discarded.
	ErrCallTimeout = errors.New("call timed out")
)

// OpenError reports which breaker rejected a call and in which state.
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Name, ErrCircuitOpen, e.State)
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// StateChange is emitted on every transition.
type StateChange struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Snapshot is a point-in-time view of a Breaker, used for health endpoints.
type Snapshot struct {
	Name      string    `json:"name"`
	State     State     `json:"state"`
	Failures  int       `json:"failures"`
	OpenedAt  time.Time `json:"opened_at,omitzero"`
	ChangedAt time.Time `json:"changed_at"`
}

// IsFailure is the default failure classifier. Caller cancellation does not
// count against the dependency. Errors that implement
// BreakerFailure() bool decide for themselves (HTTP status errors use this to
// exclude 4xx). Everything else, including timeouts, is a failure.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	if cancelled(err) {
		return false
	}
	var c interface{ BreakerFailure() bool }
	if errors.As(err, &c) {
		return c.BreakerFailure()
	}
	return true
}

func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) && !errors.Is(err, ErrCallTimeout)
}

// Breaker guards calls to a single dependency.
type Breaker struct {
	name string
	opts options

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	changedAt  time.Time
	probing    bool
	generation uint64
}

// New returns a closed Breaker for the named dependency.
func New(name string, opts ...Option) (*Breaker, error) {
	if name == "" {
		return nil, errors.New("breaker: name is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	return &Breaker{
		name:      name,
		opts:      o,
		state:     StateClosed,
		changedAt: o.now(),
	}, nil
}

// Name returns the dependency name the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. An open breaker whose cool-down elapsed
// still reports OPEN until the next call turns it into a probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:      b.name,
		State:     b.state,
		Failures:  b.failures,
		OpenedAt:  b.openedAt,
		ChangedAt: b.changedAt,
	}
}

// Execute runs call through the breaker.
func (b *Breaker) Execute(ctx context.Context, call func(ctx context.Context) error) error {
	_, err := Do(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}

// Do runs call through b and returns its result. When the circuit is open the
// call is not invoked and the error wraps ErrCircuitOpen.
func Do[T any](ctx context.Context, b *Breaker, call func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	gen, err := b.admit()
	if err != nil {
		return zero, err
	}

	v, err := invoke(ctx, b.opts.callTimeout, call)
	b.record(gen, err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

func invoke[T any](ctx context.Context, timeout time.Duration, call func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return call(ctx)
	}

	type result struct {
		v   T
		err error
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned call can still finish and exit.
	done := make(chan result, 1)
	go func() {
		v, err := call(callCtx)
		done <- result{v: v, err: err}
	}()

	unwrap := func(r result) (T, error) {
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.v, fmt.Errorf("%w: %w", ErrCallTimeout, r.err)
		}
		return r.v, r.err
	}

	select {
	case r := <-done:
		return unwrap(r)
	case <-callCtx.Done():
		select {
		case r := <-done:
			return unwrap(r)
		default:
		}
		var zero T
		err := callCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s: %w", ErrCallTimeout, timeout, err)
		}
		return zero, err
	}
}

// admit decides whether a call may proceed and returns the generation it
// belongs to.
func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	var change *StateChange
	defer func() {
		b.mu.Unlock()
		b.emit(change)
	}()

	switch b.state {
	case StateOpen:
		now := b.opts.now()
		if now.Sub(b.openedAt) < b.opts.coolDown {
			return 0, &OpenError{Name: b.name, State: StateOpen}
		}
		change = b.setState(StateHalfOpen, now)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return 0, &OpenError{Name: b.name, State: StateHalfOpen}
		}
		b.probing = true
	}
	return b.generation, nil
}

// record applies the outcome of a call admitted in generation gen. Results
// from an earlier generation are ignored.
func (b *Breaker) record(gen uint64, err error) {
	b.mu.Lock()
	var change *StateChange
	defer func() {
		b.mu.Unlock()
		b.emit(change)
	}()

	if gen != b.generation {
		return
	}

	failed := err != nil && b.opts.isFailure(err)
	now := b.opts.now()

	// A cancelled call says nothing about the dependency. It leaves the
	// counter alone, and an abandoned probe hands the slot back to the next
	// caller without restarting the cool-down.
	if !failed && cancelled(err) {
		if b.state == StateHalfOpen {
			change = b.setState(StateOpen, now)
		}
		return
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.opts.failureThreshold {
			change = b.trip(now)
		}
	case StateHalfOpen:
		b.probing = false
		if failed {
			b.failures++
			change = b.trip(now)
			return
		}
		b.failures = 0
		change = b.setState(StateClosed, now)
	}
}

func (b *Breaker) trip(now time.Time) *StateChange {
	b.openedAt = now
	return b.setState(StateOpen, now)
}

// setState must be called with b.mu held.
func (b *Breaker) setState(to State, now time.Time) *StateChange {
	from := b.state
	b.state = to
	b.changedAt = now
	b.generation++
	if to != StateHalfOpen {
		b.probing = false
	}
	return &StateChange{Name: b.name, From: from, To: to, At: now}
}

func (b *Breaker) emit(change *StateChange) {
	if change == nil || b.opts.onStateChange == nil {
		return
	}
	b.opts.onStateChange(*change)
}
