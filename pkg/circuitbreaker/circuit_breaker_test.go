package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("webhook down")

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, cooldown time.Duration) (*CircuitBreaker, *clock, *[]State) {
	var transitions []State
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New(Settings{
		Name:        "webhook",
		MaxFailures: maxFailures,
		Cooldown:    cooldown,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, to)
		},
	})
	cb.now = c.now
	return cb, c, &transitions
}

func fail(ctx context.Context) error    { return errDown }
func succeed(ctx context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _, transitions := newTestBreaker(3, time.Minute)
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error { called = true; return nil })
	require.Error(t, err)
	assert.True(t, IsOpen(err))
	assert.False(t, called)
	assert.Equal(t, []State{StateOpen}, *transitions)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, c, transitions := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())

	c.advance(time.Minute)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.NoError(t, cb.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, *transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, c, _ := newTestBreaker(1, time.Minute)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	c.advance(2 * time.Minute)

	assert.ErrorIs(t, cb.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_CancellationIsNotFailure(t *testing.T) {
	cb, _, _ := newTestBreaker(1, time.Minute)

	err := cb.Execute(context.Background(), func(ctx context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpenError(t *testing.T) {
	err := &OpenError{Name: "webhook", State: StateOpen}
	assert.Equal(t, "circuit breaker 'webhook' is OPEN", err.Error())
	assert.False(t, IsOpen(errDown))
}
