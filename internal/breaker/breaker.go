// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package breaker implements C3: a per-source circuit breaker isolating
// workers from a consistently failing source. Grounded on the original's
// async_queue/error_handler.py CircuitBreaker (CLOSED/OPEN/HALF_OPEN,
// failure_threshold, recovery_timeout, success_threshold), translated to
// Go with its own internal lock rather than an asyncio-coroutine call
// wrapper, per spec.md §4.3/§5.
package breaker

import (
	"sync"
	"time"
)

// State is one of a breaker's three states.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// Config tunes a breaker's thresholds.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	// SuccessThreshold is how many consecutive HALF_OPEN successes are
	// needed to close the breaker. Defaults to 1 to match spec.md's
	// literal "exactly one probe" language; kept configurable for parity
	// with the original's default of 2.
	SuccessThreshold int
}

// DefaultConfig matches spec.md §4.3's defaults.
var DefaultConfig = Config{FailureThreshold: 5, Cooldown: 60 * time.Second, SuccessThreshold: 1}

// Breaker is a single source's circuit breaker.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state             State
	consecutiveFails  int
	consecutiveSucc   int
	lastFailure       time.Time
	probing           bool
}

// New constructs a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig.Cooldown
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call may proceed. If the breaker is OPEN but
// its cooldown has elapsed, Allow transitions it to HALF_OPEN and admits
// exactly one caller as the probe; subsequent callers while the probe is
// outstanding are still refused (state remains HALF_OPEN until the
// probe's outcome is recorded).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	case Open:
		if time.Since(b.lastFailure) >= b.cfg.Cooldown {
			b.state = HalfOpen
			b.consecutiveSucc = 0
			b.probing = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess clears the failure streak and, in HALF_OPEN, counts
// toward closing the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFails = 0
	if b.state == HalfOpen {
		b.probing = false
		b.consecutiveSucc++
		if b.consecutiveSucc >= b.cfg.SuccessThreshold {
			b.state = Closed
			b.consecutiveSucc = 0
		}
	}
}

// RecordFailure registers a failed call. In HALF_OPEN, any failure
// reopens the breaker immediately; in CLOSED, the breaker opens once
// consecutive failures reach the threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()
	if b.state == HalfOpen {
		b.state = Open
		b.probing = false
		b.consecutiveSucc = 0
		return
	}
	b.consecutiveFails++
	if b.consecutiveFails >= b.cfg.FailureThreshold {
		b.state = Open
	}
}

// CurrentState reports the breaker's current state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// CooldownRemaining reports how long until an OPEN breaker's cooldown
// elapses, used by the worker to sleep until the HALF_OPEN window (§4.7
// step 4a) rather than busy-polling Allow.
func (b *Breaker) CooldownRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return 0
	}
	remaining := b.cfg.Cooldown - time.Since(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Registry maps source name to its Breaker, constructed per-manager
// instance for test isolation (same rationale as ratelimit.Registry).
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry builds a Registry whose breakers all share cfg (the zero
// value selects DefaultConfig).
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), cfg: cfg}
}

// For returns the Breaker for source, constructing one on first use.
func (r *Registry) For(source string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[source]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[source]; ok {
		return b
	}
	b = New(r.cfg)
	r.breakers[source] = b
	return b
}
