package resilience

import (
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// that trips the breaker.
	FailureThreshold int
	// OpenDuration is how long calls fail fast before a single probe is let
	// through.
	OpenDuration time.Duration
	// OnStateChange, if set, is invoked after every transition. Used to wire
	// metrics without coupling this package to prometheus.
	OnStateChange func(target string, state BreakerState)
}

// Breaker is the per-downstream-target circuit breaker. One instance is
// shared by every caller hitting the same target; all state transitions
// happen under a single mutex.
type Breaker struct {
	target string
	cfg    BreakerConfig
	now    func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

func NewBreaker(target string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		target: target,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the time source. Test hook.
func (b *Breaker) WithNow(now func() time.Time) *Breaker {
	b.now = now
	return b
}

func (b *Breaker) Target() string { return b.target }

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow decides whether a call may proceed. In Open state it fails fast with
// ErrCircuitOpen until OpenDuration has elapsed, then admits exactly one
// probe; concurrent callers during the probe keep failing fast.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenDuration {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	}
	return nil
}

// Success records a successful call. A half-open probe success closes the
// breaker and resets the failure count.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state != StateClosed {
		b.probing = false
		b.transition(StateClosed)
	}
}

// Failure records a failed call. Reaching the threshold in Closed state, or
// any half-open probe failure, opens the breaker and restarts the cooldown.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.probing = false
		b.openedAt = b.now()
		b.transition(StateOpen)
	case StateOpen:
		// Late failure from a call admitted before the trip; the cooldown
		// timer is already running.
	}
}

// transition is called with the mutex held.
func (b *Breaker) transition(to BreakerState) {
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.target, to)
	}
}
