package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the state of a circuit breaker
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
		return "UNKNOWN"
	}
}

// Settings configures a CircuitBreaker.
type Settings struct {
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int
	// Cooldown is how long the circuit stays open before a probe is let through.
	Cooldown time.Duration
	// HalfOpenSuccesses is the number of consecutive probe successes that close the circuit.
	HalfOpenSuccesses int
	// OnStateChange is called with the lock released.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker stops calling a failing dependency for a cooldown period
type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  bool
	openedAt  time.Time
}

// New creates a new circuit breaker
func New(settings Settings) *CircuitBreaker {
	if settings.MaxFailures <= 0 {
		settings.MaxFailures = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = time.Minute
	}
	if settings.HalfOpenSuccesses <= 0 {
		settings.HalfOpenSuccesses = 1
	}
	return &CircuitBreaker{settings: settings, now: time.Now}
}

// Execute runs fn unless the circuit is open. Context cancellation by the
// caller is not counted as a failure of the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.after(err == nil || errors.Is(err, context.Canceled))
	return err
}

// State returns the current state, moving OPEN to HALF_OPEN once the cooldown elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	from, to := cb.refresh()
	state := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return state
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	from, to := cb.refresh()

	var err error
	switch cb.state {
	case StateOpen:
		err = &OpenError{Name: cb.settings.Name, State: cb.state}
	case StateHalfOpen:
		if cb.inFlight {
			err = &OpenError{Name: cb.settings.Name, State: cb.state}
		} else {
			cb.inFlight = true
		}
	}
	cb.mu.Unlock()

	cb.notify(from, to)
	return err
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	from := cb.state

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
		} else {
			cb.failures++
			if cb.failures >= cb.settings.MaxFailures {
				cb.open()
			}
		}
	case StateHalfOpen:
		cb.inFlight = false
		if !success {
			cb.open()
			break
		}
		cb.successes++
		if cb.successes >= cb.settings.HalfOpenSuccesses {
			cb.state = StateClosed
			cb.failures = 0
			cb.successes = 0
		}
	}

	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.successes = 0
	cb.inFlight = false
}

// refresh must be called with mu held.
func (cb *CircuitBreaker) refresh() (State, State) {
	from := cb.state
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.settings.Cooldown {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.inFlight = false
	}
	return from, cb.state
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// OpenError is returned without calling the dependency while the circuit is open
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsOpen reports whether err was produced by a rejecting circuit breaker
func IsOpen(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}
