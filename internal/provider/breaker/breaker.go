// Package breaker isolates a failing source behind a CLOSED/OPEN/HALF_OPEN
// state machine.
//
//	CLOSED    --max_failures consecutive failures-->  OPEN
//	OPEN      --reset_timeout elapsed, next call-->    HALF_OPEN (one trial call)
//	HALF_OPEN --trial succeeds-->                      CLOSED
//	HALF_OPEN --trial fails-->                         OPEN (opened_at reset)
//
// State only changes through Allow, Success, Failure, Release and Reset.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	}
	return "UNKNOWN"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "CLOSED":
		*s = Closed
	case "OPEN":
		*s = Open
	case "HALF_OPEN":
		*s = HalfOpen
	default:
		return fmt.Errorf("breaker: unknown state %q", b)
	}
	return nil
}

// ErrOpen is returned by Allow and Check while calls are short-circuited.
var ErrOpen = errors.New("circuit breaker is open")

const (
	DefaultMaxFailures  = 3
	DefaultResetTimeout = 300 * time.Second
)

// Stats is a point-in-time copy of the breaker counters.
type Stats struct {
	State               State     `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
	TotalCalls          int64     `json:"total_calls"`
	SuccessfulCalls     int64     `json:"successful_calls"`
	FailedCalls         int64     `json:"failed_calls"`
	RejectedCalls       int64     `json:"rejected_calls"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
}

type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool // a HALF_OPEN trial call is in flight
	stats    Stats
}

type Option func(*Breaker)

func WithMaxFailures(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxFailures = n
		}
	}
}

func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:         name,
		maxFailures:  DefaultMaxFailures,
		resetTimeout: DefaultResetTimeout,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow gates a call. In OPEN it fails fast until reset_timeout has elapsed,
// then moves to HALF_OPEN and lets exactly one trial through. Every nil
// return must be followed by one of Success, Failure or Release.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalCalls++
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			b.stats.RejectedCalls++
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.trial = true
		return nil
	case HalfOpen:
		if b.trial {
			b.stats.RejectedCalls++
			return ErrOpen
		}
		b.trial = true
		return nil
	}
	return nil
}

// Check reports ErrOpen when the breaker is OPEN without changing anything.
// Retries inside one allowed call use it to notice a concurrent trip.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open {
		return ErrOpen
	}
	return nil
}

// Ready reports whether Allow would currently let a call through. An OPEN
// breaker whose reset_timeout has elapsed is ready for its trial call.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return b.now().Sub(b.openedAt) >= b.resetTimeout
	case HalfOpen:
		return !b.trial
	}
	return true
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.SuccessfulCalls++
	b.stats.LastSuccess = b.now()
	b.failures = 0
	b.trial = false
	if b.state != Closed {
		b.openedAt = time.Time{}
		b.transition(Closed)
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.stats.FailedCalls++
	b.stats.LastFailure = now
	b.failures++
	switch b.state {
	case Closed:
		if b.failures >= b.maxFailures {
			b.openedAt = now
			b.transition(Open)
		}
	case HalfOpen:
		b.trial = false
		b.openedAt = now
		b.transition(Open)
	case Open:
		// A call allowed before a concurrent trip finished late.
		b.openedAt = now
	}
}

// Release ends an allowed call without an outcome, e.g. when the caller's own
// deadline cancelled it. A HALF_OPEN trial slot is handed back.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

// Reset forces the breaker back to CLOSED. Operator use only.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	b.openedAt = time.Time{}
	b.transition(Closed)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.State = b.state
	s.ConsecutiveFailures = b.failures
	s.OpenedAt = b.openedAt
	return s
}

// transition must be called with b.mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	ev := b.logger.Info()
	if to == Open {
		ev = b.logger.Warn().Int("failures", b.failures)
	}
	ev.Str("connector", b.name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker transition")
}
