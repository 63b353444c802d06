// Package breaker implements a per-endpoint circuit breaker registry, one
// Breaker per upstream operation name, guarding provider calls against a
// failing upstream. There is no breaker library anywhere in the example
// pack, so this follows the teacher's per-resource registry shape
// (map[string]*T behind its own mutex, each T behind its own mutex) seen in
// trader-go's generator and exchange-calendar registries.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/errs"
)

// State is one of the three circuit breaker states.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 30 * time.Second
	maxBackoffMultiplier    = 32
)

// Breaker guards a single endpoint. All state transitions occur under its
// own mutex.
type Breaker struct {
	mu sync.Mutex

	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	state             State
	consecutiveFails  int
	consecutiveOK     int
	openEpoch         int
	openedAt          time.Time
	halfOpenInFlight  bool

	log zerolog.Logger
}

func newBreaker(name string, failureThreshold int, recoveryTimeout time.Duration, log zerolog.Logger) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            Closed,
		log:              log.With().Str("component", "breaker").Str("endpoint", name).Logger(),
	}
}

// State reports the breaker's current state, resolving an OPEN breaker
// whose recovery timeout has elapsed into HALF_OPEN first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state
}

// maybeRecover transitions OPEN -> HALF_OPEN once the backoff window has
// elapsed. Callers must hold b.mu.
func (b *Breaker) maybeRecover() {
	if b.state != Open {
		return
	}
	backoff := b.recoveryTimeout * time.Duration(backoffMultiplier(b.openEpoch))
	if time.Since(b.openedAt) >= backoff {
		b.transition(HalfOpen)
	}
}

func backoffMultiplier(epoch int) int {
	m := 1
	for i := 0; i < epoch; i++ {
		m *= 2
		if m >= maxBackoffMultiplier {
			return maxBackoffMultiplier
		}
	}
	return m
}

// Call executes f if the breaker allows it, recording success or failure.
// It fails fast with CircuitOpen when the breaker is OPEN, and allows at
// most one concurrent probe while HALF_OPEN.
func (b *Breaker) Call(f func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := f()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeRecover()

	switch b.state {
	case Open:
		return errs.CircuitOpen
	case HalfOpen:
		if b.halfOpenInFlight {
			return errs.CircuitOpen
		}
		b.halfOpenInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.halfOpenInFlight = false
	}

	if err == nil {
		b.consecutiveOK++
		b.consecutiveFails = 0
		if b.state == HalfOpen {
			b.transition(Closed)
		}
		return
	}

	b.consecutiveFails++
	b.consecutiveOK = 0

	switch b.state {
	case HalfOpen:
		b.openEpoch++
		b.transition(Open)
	case Closed:
		if b.consecutiveFails >= b.failureThreshold {
			b.openEpoch = 0
			b.transition(Open)
		}
	}
}

// transition moves the breaker to next, logging before/after state and
// counters. Callers must hold b.mu.
func (b *Breaker) transition(next State) {
	prev := b.state
	b.state = next
	if next == Open {
		b.openedAt = time.Now()
	}
	if next == Closed {
		b.consecutiveFails = 0
		b.consecutiveOK = 0
		b.openEpoch = 0
	}
	b.log.Info().
		Str("from", string(prev)).
		Str("to", string(next)).
		Int("consecutive_fails", b.consecutiveFails).
		Int("consecutive_ok", b.consecutiveOK).
		Int("open_epoch", b.openEpoch).
		Msg("breaker state transition")
}

// Registry is the endpoint-name-keyed collection of breakers, each lazily
// created on first use.
type Registry struct {
	mu               sync.Mutex
	breakers         map[string]*Breaker
	failureThreshold int
	recoveryTimeout  time.Duration
	log              zerolog.Logger
}

// NewRegistry builds a Registry using the given failure threshold and base
// recovery timeout for every breaker it creates. Zero values fall back to
// spec defaults (5 failures, 30s base recovery).
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration, log zerolog.Logger) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = defaultRecoveryTimeout
	}
	return &Registry{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		log:              log,
	}
}

// Get returns the named breaker, creating it on first reference.
func (r *Registry) Get(endpoint string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[endpoint]
	if !ok {
		b = newBreaker(endpoint, r.failureThreshold, r.recoveryTimeout, r.log)
		r.breakers[endpoint] = b
	}
	return b
}

// Call routes f through the named endpoint's breaker.
func (r *Registry) Call(endpoint string, f func() error) error {
	return r.Get(endpoint).Call(f)
}

// AnyOpen reports whether any registered breaker is currently OPEN, used by
// the scheduler to gate a collection cycle behind breaker health.
func (r *Registry) AnyOpen() bool {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		if b.State() == Open {
			return true
		}
	}
	return false
}
