// Package breaker implements the circuit breaker (§4.11): a per-scope
// state machine that opens after a run of classified failures and
// rejects calls without invoking the inner function until a cooldown
// elapses.
package breaker

import (
	"sync"
	"time"

	"github.com/exrt/exllm/pkg/errors"
)

// State is the circuit breaker's current status.
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
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker's thresholds.
type Config struct {
	// FailureThreshold is the number of consecutive classified failures
	// before the breaker opens.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in
	// half-open state required to close the breaker.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before allowing a
	// half-open probe.
	Timeout time.Duration
	// HalfOpenMaxRequests bounds concurrent probes while half-open.
	HalfOpenMaxRequests int
}

// DefaultConfig matches §4.11's seed scenario: 5 consecutive failures
// open the breaker, 2 successes in half-open close it, 60s cooldown.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		Timeout:             60 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker is a process-wide, named circuit breaker (one per named
// scope, §3's CircuitBreakerState lifecycle: persists across requests).
type Breaker struct {
	mu              sync.Mutex
	name            string
	state           State
	consecutiveFail int
	successCount    int
	halfOpenInFlight int
	openedAt        time.Time
	config          Config
	onStateChange   func(name string, from, to State)
}

// New creates a named Breaker in the closed state.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = DefaultConfig().HalfOpenMaxRequests
	}
	return &Breaker{name: name, state: StateClosed, config: cfg}
}

// OnStateChange registers a callback invoked (off the lock) on every
// transition, for telemetry.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed. Returns a *errors.Error with
// Kind KindCircuitOpen and a RetryAfter hint when the breaker is open.
func (b *Breaker) Allow() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, nil
	case StateOpen:
		remaining := b.config.Timeout - time.Since(b.openedAt)
		if remaining <= 0 {
			b.transition(StateHalfOpen)
			b.halfOpenInFlight = 1
			return true, nil
		}
		return false, errors.New(errors.KindCircuitOpen, "circuit "+b.name+" is open").
			WithProvider(b.name, "").
			WithRetryAfter(int(remaining.Seconds()) + 1)
	case StateHalfOpen:
		if b.halfOpenInFlight < b.config.HalfOpenMaxRequests {
			b.halfOpenInFlight++
			return true, nil
		}
		return false, errors.New(errors.KindCircuitOpen, "circuit "+b.name+" is probing").
			WithProvider(b.name, "")
	default:
		return false, errors.New(errors.KindCircuitOpen, "circuit "+b.name+" in unknown state")
	}
}

// RecordSuccess resets the failure streak, and in half-open state
// accumulates toward closing the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFail = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.transition(StateClosed)
			b.consecutiveFail = 0
			b.successCount = 0
			b.halfOpenInFlight = 0
		} else if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
	}
}

// RecordFailure records a classified failure. classified should be true
// for any failure that should age the breaker: 5xx/transport errors,
// and — per §9 Open Question (c) — a 401 whose body matches a
// rate-limit hint. A genuine auth 401 should be reported with
// classified=false so it never opens the breaker.
func (b *Breaker) RecordFailure(classified bool) {
	if !classified {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.config.FailureThreshold {
			b.openedAt = time.Now()
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.openedAt = time.Now()
		b.transition(StateOpen)
		b.successCount = 0
		b.halfOpenInFlight = 0
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Name returns the breaker's scope name.
func (b *Breaker) Name() string { return b.name }

// Reset forces the breaker back to closed, e.g. for test setup.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.consecutiveFail = 0
	b.successCount = 0
	b.halfOpenInFlight = 0
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onStateChange != nil {
		cb := b.onStateChange
		name := b.name
		go cb(name, from, to)
	}
}

// Registry holds one Breaker per named scope (e.g. per provider),
// created lazily on first use.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	config   Config
}

// NewRegistry builds a Registry that creates breakers with cfg on
// first access.
func NewRegistry(cfg Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), config: cfg}
}

// Get returns the named Breaker, creating it if necessary.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, r.config)
	r.breakers[name] = b
	return b
}
