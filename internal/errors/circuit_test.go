package errors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type transition struct {
	backend  string
	from, to State
}

type recorder struct {
	mu   sync.Mutex
	seen []transition
}

func (r *recorder) listen(backend string, from, to State) {
	r.mu.Lock()
	r.seen = append(r.seen, transition{backend, from, to})
	r.mu.Unlock()
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	// Given: a breaker tripping after 3 failures
	clock := newFakeClock()
	cb := NewCircuitBreaker("pinecone-sparse", WithMaxFailures(3), WithResetTimeout(time.Minute), WithClock(clock.Now))

	// When: three calls fail
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("down") })
	}

	// Then: the circuit is open and calls are rejected without running
	assert.Equal(t, StateOpen, cb.State())
	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	assert.False(t, ran)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, ErrCodeBackendUnavailable, GetCode(err))
	assert.False(t, IsRetryable(err))
	var re *RAGError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "pinecone-sparse", re.Details["backend"])
	assert.Contains(t, re.Suggestion, "1m0s")
	assert.Equal(t, time.Minute, cb.RetryAfter())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	// Given: an open breaker
	clock := newFakeClock()
	cb := NewCircuitBreaker("pinecone-dense", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.Now))
	_ = cb.Execute(func() error { return errors.New("down") })
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	clock.Advance(2 * time.Second)

	// Then: the breaker is half-open and a successful trial closes it
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.Zero(t, cb.RetryAfter())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("pinecone-dense", WithMaxFailures(1), WithResetTimeout(time.Second), WithClock(clock.Now))
	_ = cb.Execute(func() error { return errors.New("down") })
	clock.Advance(2 * time.Second)

	err := cb.Execute(func() error { return errors.New("still down") })

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, time.Second, cb.RetryAfter())
}

func TestCircuitBreaker_ListenerSeesEveryTransition(t *testing.T) {
	// Given: a listener on the ollama breaker
	clock := newFakeClock()
	rec := &recorder{}
	cb := NewCircuitBreaker("ollama",
		WithMaxFailures(2),
		WithResetTimeout(time.Second),
		WithClock(clock.Now),
		WithStateListener(rec.listen),
		WithStateListener(nil))

	// When: it trips, recovers through a trial, and keeps succeeding
	_ = cb.Execute(func() error { return errors.New("down") })
	_ = cb.Execute(func() error { return errors.New("down") })
	_ = cb.Execute(func() error { return nil })
	clock.Advance(2 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	require.NoError(t, cb.Execute(func() error { return nil }))

	// Then: only real state changes are reported, in order
	assert.Equal(t, []transition{
		{"ollama", StateClosed, StateOpen},
		{"ollama", StateOpen, StateHalfOpen},
		{"ollama", StateHalfOpen, StateClosed},
	}, rec.seen)
}

func TestCircuitBreaker_OpenErrorNotRetried(t *testing.T) {
	// Given: an open breaker inside a retry loop
	cb := NewCircuitBreaker("cross_encoder", WithMaxFailures(1))
	_ = cb.Execute(func() error { return BackendError("cross_encoder", "down", nil) })
	calls := 0

	// When: retrying a call through it
	err := Retry(t.Context(), RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 1, ShouldRetry: IsRetryable}, func() error {
		calls++
		return cb.Execute(func() error { return nil })
	})

	// Then: the rejection ends the loop at once
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestCircuitExecute_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("scorer")

	got, err := CircuitExecute(cb, func() (int, error) { return 7, nil })

	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, "scorer", cb.Name())
	assert.Equal(t, "closed", cb.State().String())
}
