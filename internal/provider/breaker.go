package provider

import (
	"sync"
	"time"
)

// BreakerState is the circuit-breaker lifecycle for one provider's health,
// additive detail for spec.md §4.6's exclusion rule (a provider with ≥3
// consecutive failures or a failure within provider_cooldown is excluded).
// Rather than simply excluding until the cooldown elapses, Closed -> Open
// -> HalfOpen -> Closed lets a single trial request decide recovery
// instead of letting a flood of requests hit a still-unhealthy backend.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker tracks one provider's consecutive-failure count and gates
// whether it's eligible for selection.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state           BreakerState
	consecutiveFail int
	lastFailure     time.Time
	halfOpenProbing bool
}

// NewBreaker creates a Breaker that opens after failureThreshold
// consecutive failures and stays open for cooldown before allowing one
// half-open trial (spec.md §4.6 defaults: 3 failures, 30s cooldown).
func NewBreaker(failureThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{failureThreshold: failureThreshold, cooldown: cooldown}
}

// Allow reports whether a new call may be attempted right now. In
// StateOpen, it transitions to StateHalfOpen and permits exactly one
// trial call once cooldown has elapsed.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		// A trial is already in flight; don't let a second one through
		// until it resolves via RecordSuccess/RecordFailure.
		return !b.halfOpenProbing
	case StateOpen:
		if now.Sub(b.lastFailure) < b.cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.halfOpenProbing = true
		return true
	default:
		return true
	}
}

// RecordSuccess resets the breaker to Closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFail = 0
	b.halfOpenProbing = false
}

// RecordFailure registers a failed call at now. In HalfOpen, any failure
// reopens the circuit immediately. In Closed, the circuit opens once
// consecutive failures reach the threshold.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = now
	b.halfOpenProbing = false

	if b.state == StateHalfOpen {
		b.state = StateOpen
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.failureThreshold {
		b.state = StateOpen
	}
}

// State returns the current breaker state, for metrics/logging.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
