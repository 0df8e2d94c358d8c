package analytics

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// BreakerState is the externally observable state of the circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold      = 3
	defaultBaseCooldown          = 10 * time.Second
	defaultMaxCooldown           = 120 * time.Second
	defaultJitterRatio           = 0.2
	defaultHalfOpenMaxConcurrent = 1

	// halfOpenAdvisoryDelay is returned while half-open probes are saturated.
	// It is a small constant back-off, not derived from the cooldown schedule.
	halfOpenAdvisoryDelay = 200 * time.Millisecond
)

// BreakerConfig holds circuit breaker configuration. Zero values use
// defaults; a negative JitterRatio disables jitter entirely.
type BreakerConfig struct {
	FailureThreshold      int
	BaseCooldown          time.Duration
	MaxCooldown           time.Duration
	JitterRatio           float64
	HalfOpenMaxConcurrent int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold < 1 {
		c.FailureThreshold = defaultFailureThreshold
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = defaultBaseCooldown
	}
	if c.MaxCooldown <= 0 {
		c.MaxCooldown = defaultMaxCooldown
	}
	if c.MaxCooldown < c.BaseCooldown {
		c.MaxCooldown = c.BaseCooldown
	}
	if c.JitterRatio == 0 {
		c.JitterRatio = defaultJitterRatio
	} else if c.JitterRatio < 0 {
		c.JitterRatio = 0
	}
	if c.HalfOpenMaxConcurrent < 1 {
		c.HalfOpenMaxConcurrent = defaultHalfOpenMaxConcurrent
	}
	return c
}

// CircuitBreaker tracks consecutive delivery failures and short-circuits
// network attempts during sustained failure. Each trip doubles the cooldown
// up to MaxCooldown, with symmetric jitter applied.
//
// All methods take the internal mutex and never block on I/O, so the breaker
// is safe to consult from inside the dispatch loop.
type CircuitBreaker struct {
	mu    sync.Mutex
	cfg   BreakerConfig
	clock clockwork.Clock

	state               BreakerState
	consecutiveFailures int
	openCount           int
	openUntil           time.Time
	halfOpenInFlight    int

	// jitter returns a value in [0,1); replaceable for deterministic tests.
	jitter func() float64
}

// NewCircuitBreaker creates a breaker in the Closed state.
func NewCircuitBreaker(cfg BreakerConfig, clock clockwork.Clock) *CircuitBreaker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CircuitBreaker{
		cfg:    cfg.withDefaults(),
		clock:  clock,
		state:  BreakerClosed,
		jitter: rand.Float64,
	}
}

// OnSuccess records a successful delivery. From any state the breaker
// returns to Closed.
func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != BreakerClosed {
		b.state = BreakerClosed
		b.halfOpenInFlight = 0
	}
}

// OnFailure records a retryable delivery failure. Reaching the failure
// threshold while Closed trips the breaker open; any failure while HalfOpen
// reopens immediately with an increased cooldown.
func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	switch {
	case b.state == BreakerHalfOpen:
		b.tripOpen()
	case b.state == BreakerClosed && b.consecutiveFailures >= b.cfg.FailureThreshold:
		b.tripOpen()
	}
}

// OnNonRetryable records a response that indicates a bad payload rather than
// a failing collector. It resets the failure streak without changing state,
// so non-retryable rejections never strengthen or open the breaker.
func (b *CircuitBreaker) OnNonRetryable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
}

// BeforeRequest is consulted before each network attempt. A zero return means
// the request may proceed; a positive return is the wait the caller should
// schedule before trying again. While HalfOpen the call reserves a probe slot.
func (b *CircuitBreaker) BeforeRequest() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return 0
	case BreakerOpen:
		now := b.clock.Now()
		if !now.Before(b.openUntil) {
			b.state = BreakerHalfOpen
			b.halfOpenInFlight = 1
			return 0
		}
		return b.openUntil.Sub(now)
	case BreakerHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxConcurrent {
			return halfOpenAdvisoryDelay
		}
		b.halfOpenInFlight++
		return 0
	default:
		return 0
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// RemainingCooldown returns how long until an Open breaker admits a probe.
func (b *CircuitBreaker) RemainingCooldown() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != BreakerOpen {
		return 0
	}
	remaining := b.openUntil.Sub(b.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// tripOpen must be called with the mutex held.
func (b *CircuitBreaker) tripOpen() {
	b.openCount++
	delay := float64(b.cfg.BaseCooldown) * math.Pow(2, float64(b.openCount-1))
	if delay > float64(b.cfg.MaxCooldown) {
		delay = float64(b.cfg.MaxCooldown)
	}
	if b.cfg.JitterRatio > 0 {
		delay += (b.jitter()*2 - 1) * b.cfg.JitterRatio * delay
	}
	if delay < 0 {
		delay = 0
	}
	b.openUntil = b.clock.Now().Add(time.Duration(delay))
	b.state = BreakerOpen
	b.consecutiveFailures = 0
	b.halfOpenInFlight = 0
}
