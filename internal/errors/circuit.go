package errors

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is the cause of the error returned while a backend's
// breaker is open. Match it with errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state. The numeric value is exported as the
// backend_circuit_state gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateListener observes breaker transitions. It is called outside the
// breaker lock, once per transition.
type StateListener func(backend string, from, to State)

// CircuitBreaker guards one retrieval backend (ollama, pinecone-dense,
// pinecone-sparse, cross_encoder). It fails fast once the backend has failed
// maxFailures times in a row and admits a single trial call after
// resetTimeout.
type CircuitBreaker struct {
	backend      string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	listeners    []StateListener

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

type CircuitBreakerOption func(*CircuitBreaker)

func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.maxFailures = n
	}
}

func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.resetTimeout = d
	}
}

// WithStateListener registers fn for every transition. Options may carry
// several listeners.
func WithStateListener(fn StateListener) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.listeners = append(cb.listeners, fn)
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker defaults to 5 failures and a 30 second reset timeout.
func NewCircuitBreaker(backend string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		backend:      backend,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the backend the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.backend
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// must hold cb.mu
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// RetryAfter is the time left before an open breaker admits a trial call.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.currentState() != StateOpen {
		return 0
	}
	return cb.resetTimeout - cb.now().Sub(cb.openedAt)
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.failures = 0
	cb.state = StateClosed
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.failures++
	if from == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to {
		return
	}
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit_state_changed",
		slog.String("backend", cb.backend),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	for _, fn := range cb.listeners {
		fn(cb.backend, from, to)
	}
}

// openError reports a rejected call. It is not retryable: retrying inside
// the reset window cannot succeed.
func (cb *CircuitBreaker) openError() *RAGError {
	e := New(ErrCodeBackendUnavailable, cb.backend+" circuit breaker is open", ErrCircuitOpen).
		WithDetail("backend", cb.backend).
		WithSuggestion("check that " + cb.backend + " is reachable; calls resume after " +
			cb.RetryAfter().Round(time.Second).String())
	e.Retryable = false
	return e
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := CircuitExecute(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// CircuitExecute runs fn through cb. While the circuit is open it returns an
// ERR_301 RAGError wrapping ErrCircuitOpen without calling fn. A failed
// half-open trial reopens the circuit immediately.
func CircuitExecute[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T

	cb.mu.Lock()
	from := cb.state
	state := cb.currentState()
	if state == StateOpen {
		cb.mu.Unlock()
		return zero, cb.openError()
	}
	cb.state = state
	cb.mu.Unlock()
	cb.notify(from, state)

	result, err := fn()
	if err != nil {
		cb.RecordFailure()
		return zero, err
	}

	cb.RecordSuccess()
	return result, nil
}
