// Package inference proxies governed calls to a model provider behind a
// per-model circuit breaker: five consecutive failures inside a ten-second
// window open the circuit for sixty seconds, after which a single
// half-open probe decides whether to close it again or reopen it.
package inference

import (
	"sync"
	"time"

	"github.com/wisbric/adlcgate/internal/telemetry"
)

// State is one of the three circuit breaker states.
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

type entry struct {
	state          State
	failureTimes   []time.Time
	openedAt       time.Time
	halfOpenInFlight bool
}

// Breaker is a per-key (here: per-model) circuit breaker. At most one probe
// is ever in flight during half-open: Allow returns true for at most one caller
// until RecordSuccess or RecordFailure resolves that probe.
type Breaker struct {
	mu               sync.Mutex
	entries          map[string]*entry
	failureThreshold int
	failureWindow    time.Duration
	cooldown         time.Duration

	// OnOpen, if set, is invoked (outside the lock) whenever a model's
	// breaker transitions into the open state — the hook ops alerting
	// hangs off of.
	OnOpen func(model string)
}

// NewBreaker creates a Breaker. failureThreshold consecutive failures
// within failureWindow opens the circuit for cooldown.
func NewBreaker(failureThreshold int, failureWindow, cooldown time.Duration) *Breaker {
	return &Breaker{
		entries:          make(map[string]*entry),
		failureThreshold: failureThreshold,
		failureWindow:    failureWindow,
		cooldown:         cooldown,
	}
}

func (b *Breaker) get(key string) *entry {
	e, ok := b.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		b.entries[key] = e
	}
	return e
}

// Allow reports whether a call for key may proceed. In the open state it
// transitions to half-open once the cooldown has elapsed and admits exactly
// one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(key)
	switch e.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(e.openedAt) >= b.cooldown {
			b.transition(key, e, StateHalfOpen)
			e.halfOpenInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if e.halfOpenInFlight {
			return false
		}
		e.halfOpenInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess clears the failure window and closes the circuit.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.get(key)
	e.failureTimes = nil
	e.halfOpenInFlight = false
	if e.state != StateClosed {
		b.transition(key, e, StateClosed)
	}
}

// RecordFailure registers a failure. In half-open, any probe failure
// reopens the circuit immediately. In closed, the circuit opens once
// failureThreshold failures fall within failureWindow of each other.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()

	e := b.get(key)
	now := time.Now()
	opened := false

	if e.state == StateHalfOpen {
		e.halfOpenInFlight = false
		e.failureTimes = nil
		b.transition(key, e, StateOpen)
		e.openedAt = now
		opened = true
	} else {
		e.failureTimes = append(e.failureTimes, now)
		cutoff := now.Add(-b.failureWindow)
		kept := e.failureTimes[:0]
		for _, t := range e.failureTimes {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		e.failureTimes = kept

		if len(e.failureTimes) >= b.failureThreshold {
			b.transition(key, e, StateOpen)
			e.openedAt = now
			e.failureTimes = nil
			opened = true
		}
	}

	b.mu.Unlock()

	// The ops-alert hook runs outside the lock: it may do network I/O
	// (posting to Slack) and must never hold up another goroutine's
	// Allow/RecordSuccess/RecordFailure call on this breaker.
	if opened && b.OnOpen != nil {
		b.OnOpen(key)
	}
}

// State returns the current state for key.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(key).state
}

func (b *Breaker) transition(key string, e *entry, to State) {
	from := e.state
	e.state = to
	telemetry.CircuitBreakerTransitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
}
