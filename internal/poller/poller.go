package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kloia/kubevirt-api-client/internal/apierrors"
	"github.com/kloia/kubevirt-api-client/internal/codec"
)

// DefaultMaxConsecutiveFailures is used when Config.MaxConsecutiveFailures is zero
const DefaultMaxConsecutiveFailures = 5

// State of a poll
type State int

const (
	Polling State = iota
	Satisfied
	Failed
	TimedOut
	Cancelled
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case Polling:
		return "Polling"
	case Satisfied:
		return "Satisfied"
	case Failed:
		return "Failed"
	case TimedOut:
		return "TimedOut"
	case Cancelled:
		return "Cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further polling happens in this state
func (s State) Terminal() bool {
	return s != Polling
}

var (
	// ErrPollFailed is matched when the consecutive failure limit was exceeded
	ErrPollFailed = errors.New("poll failed")
	// ErrPollTimedOut is matched when the deadline elapsed
	ErrPollTimedOut = errors.New("poll timed out")
	// ErrPollCancelled is matched when the caller cancelled the context
	ErrPollCancelled = errors.New("poll cancelled")
)

// Accessor fetches the current state of the watched resource
type Accessor func(ctx context.Context) (codec.Envelope, error)

// Predicate decides whether the watched resource reached the desired state
type Predicate func(codec.Envelope) bool

// Config controls timing and failure tolerance
type Config struct {
	// Interval between accessor calls
	Interval time.Duration
	// Timeout is the deadline measured from the start of Run
	Timeout time.Duration
	// MaxConsecutiveFailures before Failed; zero uses DefaultMaxConsecutiveFailures, negative never fails
	MaxConsecutiveFailures int
	// AbsenceSatisfies makes a NotFound answer satisfy the poll
	AbsenceSatisfies bool
}

// Clock abstracts time for tests
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer fires once on C unless stopped first
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// Option configures a Poller
type Option func(*Poller)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

// WithDescription names the poll in log output
func WithDescription(desc string) Option {
	return func(p *Poller) { p.desc = desc }
}

// Result is the terminal outcome of Run
type Result struct {
	State    State
	Attempts int
	// Last is the last successfully fetched envelope, zero if none
	Last codec.Envelope
	// LastErr is the last accessor error, if any
	LastErr error
	Elapsed time.Duration
}

// Err returns nil when Satisfied and a *PollError otherwise
func (r Result) Err() error {
	if r.State == Satisfied {
		return nil
	}
	return &PollError{State: r.State, Attempts: r.Attempts, Err: r.LastErr}
}

// PollError describes an unsuccessful poll
type PollError struct {
	State    State
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *PollError) Error() string {
	var what string
	switch e.State {
	case Failed:
		what = "poll failed"
	case TimedOut:
		what = "timed out waiting for condition"
	case Cancelled:
		what = "poll cancelled"
	default:
		what = "poll did not complete"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s after %d attempts: %v", what, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s after %d attempts", what, e.Attempts)
}

// Unwrap returns the last accessor error
func (e *PollError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the terminal state
func (e *PollError) Is(target error) bool {
	switch target {
	case ErrPollFailed:
		return e.State == Failed
	case ErrPollTimedOut:
		return e.State == TimedOut
	case ErrPollCancelled:
		return e.State == Cancelled
	}
	return false
}

// Poller repeatedly calls an accessor until a predicate holds, the deadline
// elapses, failures pile up or the caller cancels. A Poller runs once; later
// calls to Run return the cached terminal result.
type Poller struct {
	accessor  Accessor
	predicate Predicate
	cfg       Config
	clock     Clock
	logger    *zap.Logger
	desc      string

	mu     sync.Mutex
	result *Result
}

// New creates a Poller
func New(accessor Accessor, predicate Predicate, cfg Config, opts ...Option) (*Poller, error) {
	if accessor == nil {
		return nil, fmt.Errorf("accessor is required")
	}
	if predicate == nil {
		return nil, fmt.Errorf("predicate is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", cfg.Interval)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", cfg.Timeout)
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}

	p := &Poller{
		accessor:  accessor,
		predicate: predicate,
		cfg:       cfg,
		clock:     realClock{},
		logger:    zap.NewNop(),
		desc:      "condition",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run polls until a terminal state is reached
func (p *Poller) Run(ctx context.Context) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.result != nil {
		return *p.result
	}
	res := p.run(ctx)
	p.result = &res
	return res
}

func (p *Poller) run(ctx context.Context) Result {
	logger := p.logger.With(zap.String("poll_id", uuid.NewString()), zap.String("waiting_for", p.desc))
	start := p.clock.Now()
	deadline := start.Add(p.cfg.Timeout)

	var (
		res      Result
		failures int
	)
	finish := func(s State) Result {
		res.State = s
		res.Elapsed = p.clock.Now().Sub(start)
		logger.Debug("Poll finished",
			zap.Stringer("state", s),
			zap.Int("attempts", res.Attempts),
			zap.Duration("elapsed", res.Elapsed))
		return res
	}

	// A deadline shorter than one interval leaves no room for an evaluation.
	if p.cfg.Timeout < p.cfg.Interval {
		return finish(TimedOut)
	}

	for {
		if ctx.Err() != nil {
			return finish(Cancelled)
		}
		if !p.clock.Now().Before(deadline) {
			return finish(TimedOut)
		}

		res.Attempts++
		env, err := p.accessor(ctx)
		if ctx.Err() != nil {
			return finish(Cancelled)
		}
		if !p.clock.Now().Before(deadline) {
			if err == nil {
				res.Last = env
			} else {
				res.LastErr = err
			}
			return finish(TimedOut)
		}

		if err != nil {
			if p.cfg.AbsenceSatisfies && apierrors.IsNotFound(err) {
				logger.Debug("Resource is absent", zap.Int("attempt", res.Attempts))
				return finish(Satisfied)
			}
			failures++
			res.LastErr = err
			logger.Warn("Poll attempt failed",
				zap.Int("attempt", res.Attempts),
				zap.Int("consecutive_failures", failures),
				zap.Error(err))
			if p.cfg.MaxConsecutiveFailures > 0 && failures > p.cfg.MaxConsecutiveFailures {
				return finish(Failed)
			}
		} else {
			failures = 0
			res.Last = env
			if p.predicate(env) {
				return finish(Satisfied)
			}
			logger.Debug("Condition not met yet", zap.Int("attempt", res.Attempts))
		}

		timer := p.clock.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return finish(Cancelled)
		case <-timer.C():
		}
	}
}

// Wait is a convenience wrapper that builds a Poller, runs it and returns the last envelope
func Wait(ctx context.Context, accessor Accessor, predicate Predicate, cfg Config, opts ...Option) (codec.Envelope, error) {
	p, err := New(accessor, predicate, cfg, opts...)
	if err != nil {
		return codec.Envelope{}, err
	}
	res := p.Run(ctx)
	return res.Last, res.Err()
}
