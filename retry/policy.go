package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultMaxRetries is the number of backoff retries after the first attempt.
	DefaultMaxRetries = 5

	// DefaultBase is the first backoff delay. Each following delay doubles.
	DefaultBase = 3 * time.Second
)

// Config configures a Policy.
type Config struct {
	// MaxRetries is the number of retries allowed for rate-limited calls. Zero disables
	// retrying.
	MaxRetries int

	// Base is the delay before the first retry.
	Base time.Duration
}

// DefaultConfig returns five retries starting at three seconds: 3, 6, 12, 24, 48.
func DefaultConfig() Config {
	return Config{MaxRetries: DefaultMaxRetries, Base: DefaultBase}
}

// Policy retries rate-limited completion calls with exponential backoff. A Policy holds
// no per-call state and is safe for concurrent use.
type Policy struct {
	maxRetries int
	base       time.Duration
	clock      clockwork.Clock
	log        *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces the clock used for backoff sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) {
		p.log = l
	}
}

// New creates a Policy. Panics if cfg.MaxRetries is negative or cfg.Base is not positive.
func New(cfg Config, opts ...Option) *Policy {
	if cfg.MaxRetries < 0 {
		panic("retry: MaxRetries must be >= 0")
	}
	if cfg.Base <= 0 {
		panic("retry: Base must be > 0")
	}
	p := &Policy{
		maxRetries: cfg.MaxRetries,
		base:       cfg.Base,
		clock:      clockwork.NewRealClock(),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxRetries returns the configured retry count.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// Delays returns the full backoff schedule, one entry per allowed retry.
func (p *Policy) Delays() []time.Duration {
	b := p.newBackOff()
	out := make([]time.Duration, p.maxRetries)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

func (p *Policy) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.base,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.base << p.maxRetries,
	}
	b.Reset()
	return b
}

// sleep waits for d on the policy clock. It returns early with the context error when ctx
// is done.
func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.clock.After(d):
		return nil
	}
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// FatalError is returned when a call failed with a non-retryable error, or kept being rate
// limited after every retry was spent. It matches analyst.ErrFatalProvider.
type FatalError struct {
	Attempts int
	Class    Class
	Err      error
}

// Error implements error.
func (e *FatalError) Error() string {
	if e.Class == ClassRateLimited {
		return fmt.Sprintf("%v: still rate limited after %d attempts: %v", analyst.ErrFatalProvider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%v: %v", analyst.ErrFatalProvider, e.Err)
}

// Unwrap exposes both the sentinel and the provider error.
func (e *FatalError) Unwrap() []error {
	return []error{analyst.ErrFatalProvider, e.Err}
}

// ContextOverflowError reports that the request did not fit the model's context window.
// It is returned without consuming retries; the caller is expected to shorten the
// conversation and try again. It matches analyst.ErrContextOverflow.
type ContextOverflowError struct {
	Err error
}

// Error implements error.
func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("%v: %v", analyst.ErrContextOverflow, e.Err)
}

// Unwrap exposes both the sentinel and the provider error.
func (e *ContextOverflowError) Unwrap() []error {
	return []error{analyst.ErrContextOverflow, e.Err}
}

// -----------------------------------------------------------------------------
// Do
// -----------------------------------------------------------------------------

// Do calls fn until it succeeds, retrying rate-limited failures on the policy's backoff
// schedule. Every hook is notified before each sleep.
//
// Return values:
//   - fn's value on success
//   - *ContextOverflowError when fn reports a context overflow
//   - *FatalError for any other failure, or when retries run out
//   - ctx.Err() when ctx is done before or during a sleep
func Do[T any](
	ctx context.Context,
	p *Policy,
	fn func(ctx context.Context) (T, error),
	hooks ...analyst.RetryHook,
) (T, error) {
	var zero T
	b := p.newBackOff()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return zero, ctxErr
		}

		class := Classify(err)
		switch class {
		case ClassContextOverflow:
			p.log.Warn("retry: context overflow", "attempt", attempt, "error", err)
			return zero, &ContextOverflowError{Err: err}

		case ClassRateLimited:
			if attempt > p.maxRetries {
				p.log.Error("retry: retries exhausted", "attempts", attempt, "error", err)
				return zero, &FatalError{Attempts: attempt, Class: class, Err: err}
			}
			delay := b.NextBackOff()
			p.log.Warn("retry: rate limited, backing off", "attempt", attempt, "delay", delay, "error", err)
			event := analyst.RetryEvent{Attempt: attempt, Delay: delay, Err: err}
			for _, h := range hooks {
				h.OnRetry(ctx, event)
			}
			if err := p.sleep(ctx, delay); err != nil {
				return zero, err
			}

		default:
			return zero, &FatalError{Attempts: attempt, Class: class, Err: err}
		}
	}
}
