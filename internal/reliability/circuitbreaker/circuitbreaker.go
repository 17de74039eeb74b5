package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker rejects calls
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
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
	}
	return "UNKNOWN"
}

// CircuitBreaker fails fast after a dependency fails repeatedly, then
// probes it again once the cool-down has elapsed.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	openedAt         time.Time
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	onStateChange    func(from, to State)
	now              func() time.Time
}

// New creates a breaker that opens after failureThreshold consecutive failures
// and closes after successThreshold half-open successes
func New(failureThreshold, successThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// OnStateChange registers a callback for state transitions
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Do runs fn unless the breaker is open. Errors for which countable returns
// false (bad credentials, validation) pass through without tripping the breaker.
func (cb *CircuitBreaker) Do(fn func() error, countable func(error) bool) error {
	if !cb.Allow() {
		return ErrOpen
	}
	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return err
}

// Allow reports whether a call may proceed, moving open to half-open after the cool-down
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return true
	}
	if cb.now().Sub(cb.openedAt) >= cb.cooldown {
		cb.transition(StateHalfOpen)
		return true
	}
	return false
}

// RecordSuccess resets failures and may close a half-open breaker
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.transition(StateClosed)
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure counts a failure and may open the breaker
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.openedAt = cb.now()
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.openedAt = cb.now()
		cb.transition(StateOpen)
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if cb.onStateChange != nil {
		cb.onStateChange(from, to)
	}
}
