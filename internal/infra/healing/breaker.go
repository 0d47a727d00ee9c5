// Package healing guards store-facing background work with a circuit breaker.
//
// States:
//   - closed: calls pass through; failures count toward the threshold
//   - open: calls fail fast with ErrCircuitOpen until ResetTimeout elapses
//   - half-open: calls probe the store; enough successes close the breaker,
//     one failure opens it again
package healing

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config tunes a Breaker.
type Config struct {
	FailureThreshold int           // consecutive-ish failures that trip the breaker
	ResetTimeout     time.Duration // time spent open before probing
	HalfOpenMax      int           // successful probes needed to close
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      3,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	name      string
	cfg       Config
	state     State
	failures  int
	successes int
	trippedAt time.Time
	trips     int
	now       func() time.Time
	onChange  func(name string, from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// OnStateChange registers a callback run on every transition. It is called
// with the breaker lock held and must not call back into the breaker.
func OnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// New creates a closed breaker. Zero config fields take their defaults.
func New(name string, cfg Config, opts ...Option) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = def.HalfOpenMax
	}
	b := &Breaker{name: name, cfg: cfg, state: Closed, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	if b.state == Open {
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	return nil
}

// Record feeds the outcome of a call. A nil error is a success.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	if err == nil {
		switch b.state {
		case HalfOpen:
			b.successes++
			if b.successes >= b.cfg.HalfOpenMax {
				b.failures = 0
				b.set(Closed)
			}
		case Closed:
			if b.failures > 0 {
				b.failures--
			}
		}
		return
	}

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

// Do runs fn when the breaker allows it and records the result.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// State returns the current position, moving open to half-open once the
// reset timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Trips returns how many times the breaker has opened.
func (b *Breaker) Trips() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trips
}

func (b *Breaker) trip() {
	b.trippedAt = b.now()
	b.trips++
	b.set(Open)
}

func (b *Breaker) maybeHalfOpen() {
	if b.state == Open && b.now().Sub(b.trippedAt) >= b.cfg.ResetTimeout {
		b.successes = 0
		b.set(HalfOpen)
	}
}

func (b *Breaker) set(to State) {
	from := b.state
	b.state = to
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
