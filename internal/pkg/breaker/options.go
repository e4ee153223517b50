package breaker

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultFailureThreshold = 5
	DefaultCoolDown         = 60 * time.Second
	DefaultCallTimeout      = 10 * time.Second
)

// Option configures a Breaker. Options validate their input and return an
// error instead of silently clamping it.
type Option func(*options) error

type options struct {
	failureThreshold int
	coolDown         time.Duration
	callTimeout      time.Duration
	isFailure        func(error) bool
	now              func() time.Time
	onStateChange    func(StateChange)
}

func defaultOptions() options {
	return options{
		failureThreshold: DefaultFailureThreshold,
		coolDown:         DefaultCoolDown,
		callTimeout:      DefaultCallTimeout,
		isFailure:        IsFailure,
		now:              time.Now,
	}
}

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("breaker: failure threshold must be >= 1, got %d", n)
		}
		o.failureThreshold = n
		return nil
	}
}

// WithCoolDown sets how long the circuit stays open before a probe is allowed.
// Zero means the very next call after opening is a probe.
func WithCoolDown(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("breaker: cool-down must be >= 0, got %s", d)
		}
		o.coolDown = d
		return nil
	}
}

// WithCallTimeout bounds every wrapped call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("breaker: call timeout must be >= 0, got %s", d)
		}
		o.callTimeout = d
		return nil
	}
}

// WithFailureClassifier replaces IsFailure as the rule deciding which errors
// count against the circuit.
func WithFailureClassifier(fn func(error) bool) Option {
	return func(o *options) error {
		if fn == nil {
			return errors.New("breaker: failure classifier must not be nil")
		}
		o.isFailure = fn
		return nil
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.New("breaker: clock must not be nil")
		}
		o.now = now
		return nil
	}
}

// WithStateChangeHook registers fn to be called after every transition.
// fn runs outside the breaker lock, so it may call Snapshot.
func WithStateChangeHook(fn func(StateChange)) Option {
	return func(o *options) error {
		o.onStateChange = fn
		return nil
	}
}
