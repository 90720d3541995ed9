package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State of the breaker.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls rejected until the cooldown elapses
	StateHalfOpen              // one probe call allowed through
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

// CircuitBreaker guards the Redis write path. A run of failureLimit
// consecutive errors opens the circuit; after cooldown the next call runs
// as a probe. A successful probe closes the circuit, a failed one reopens
// it and restarts the cooldown.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        State
	consecutive  int
	failureLimit int
	cooldown     time.Duration
	openedAt     time.Time
	trips        uint64

	now func() time.Time // injectable for tests

	// OnStateChange, if set, is called with the mutex held on every
	// transition. Keep it fast and do not call back into the breaker.
	OnStateChange func(from, to State)
}

func NewCircuitBreaker(failureLimit int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureLimit: failureLimit,
		cooldown:     cooldown,
		now:          time.Now,
	}
}

// Execute runs fn unless the circuit is open. While open and inside the
// cooldown window it returns ErrCircuitOpen without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) <= cb.cooldown {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed)
		}
		cb.consecutive = 0
		return
	}

	cb.consecutive++
	cb.openedAt = cb.now()
	if cb.state == StateHalfOpen || cb.consecutive >= cb.failureLimit {
		cb.transition(StateOpen)
	}
}

// CurrentState returns the breaker state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Trips returns how many times the circuit has opened.
func (cb *CircuitBreaker) Trips() uint64 {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.trips
}

// transition is called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateClosed {
		cb.consecutive = 0
	}
	if to == StateOpen {
		cb.trips++
	}
	if cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
