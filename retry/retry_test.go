package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	type input struct {
		err error
	}

	type expected struct {
		class Class
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "nil",
			input:    input{err: nil},
			expected: expected{class: ClassFatal},
		},
		{
			name:     "context canceled",
			input:    input{err: context.Canceled},
			expected: expected{class: ClassFatal},
		},
		{
			name:     "deadline wrapped",
			input:    input{err: fmt.Errorf("calling model: %w", context.DeadlineExceeded)},
			expected: expected{class: ClassFatal},
		},
		{
			name:     "transient sentinel",
			input:    input{err: fmt.Errorf("%w: slow down", analyst.ErrTransient)},
			expected: expected{class: ClassRateLimited},
		},
		{
			name:     "overflow sentinel",
			input:    input{err: fmt.Errorf("%w: 210000 tokens", analyst.ErrContextOverflow)},
			expected: expected{class: ClassContextOverflow},
		},
		{
			name: "status 429",
			input: input{err: &analyst.ProviderError{
				Provider: "anthropic", Status: 429, Message: "slow down",
			}},
			expected: expected{class: ClassRateLimited},
		},
		{
			name: "status 529 overloaded",
			input: input{err: &analyst.ProviderError{
				Provider: "anthropic", Status: 529, Type: "overloaded_error",
			}},
			expected: expected{class: ClassRateLimited},
		},
		{
			name:     "status 503",
			input:    input{err: &analyst.ProviderError{Provider: "openai", Status: 503}},
			expected: expected{class: ClassRateLimited},
		},
		{
			name: "status 400 prompt too long",
			input: input{err: &analyst.ProviderError{
				Provider: "anthropic", Status: 400, Type: "invalid_request_error",
				Message: "prompt is too long: 210000 tokens > 200000 maximum",
			}},
			expected: expected{class: ClassContextOverflow},
		},
		{
			name:     "status 413",
			input:    input{err: &analyst.ProviderError{Provider: "anthropic", Status: 413}},
			expected: expected{class: ClassContextOverflow},
		},
		{
			name: "status 400 other",
			input: input{err: &analyst.ProviderError{
				Provider: "anthropic", Status: 400, Type: "invalid_request_error", Message: "bad tool schema",
			}},
			expected: expected{class: ClassFatal},
		},
		{
			name: "status wins over misleading text",
			input: input{err: &analyst.ProviderError{
				Provider: "openai", Status: 401, Message: "rate limit your login attempts",
			}},
			expected: expected{class: ClassFatal},
		},
		{
			name: "type without status",
			input: input{err: &analyst.ProviderError{
				Provider: "openai", Type: "context_length_exceeded",
			}},
			expected: expected{class: ClassContextOverflow},
		},
		{
			name:     "text rate limit",
			input:    input{err: errors.New("Rate limit reached for requests")},
			expected: expected{class: ClassRateLimited},
		},
		{
			name:     "text context length",
			input:    input{err: errors.New("This model's maximum context length is 128000 tokens")},
			expected: expected{class: ClassContextOverflow},
		},
		{
			name:     "unknown",
			input:    input{err: errors.New("invalid api key")},
			expected: expected{class: ClassFatal},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected.class, Classify(tc.input.err))
		})
	}
}

func TestPolicy_Delays(t *testing.T) {
	p := New(DefaultConfig())

	assert.Equal(t, []time.Duration{
		3 * time.Second,
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
		48 * time.Second,
	}, p.Delays())
}

func TestPolicy_NewPanics(t *testing.T) {
	assert.Panics(t, func() { New(Config{MaxRetries: -1, Base: time.Second}) })
	assert.Panics(t, func() { New(Config{MaxRetries: 1}) })
	assert.NotPanics(t, func() { New(Config{MaxRetries: 0, Base: time.Second}) })
}

type recordingHook struct {
	mu     sync.Mutex
	events []analyst.RetryEvent
}

func (h *recordingHook) OnRetry(_ context.Context, e analyst.RetryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHook) delays() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]time.Duration, len(h.events))
	for i, e := range h.events {
		out[i] = e.Delay
	}
	return out
}

var rateLimited = &analyst.ProviderError{Provider: "test", Status: 429, Message: "slow down"}

// failing returns fn that fails with err for the first n calls and then returns "ok".
func failing(n int, err error) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		calls++
		if calls <= n {
			return "", err
		}
		return "ok", nil
	}, &calls
}

func TestDo_RateLimitedTwiceThenSucceeds(t *testing.T) {
	clock := clockwork.NewFakeClock()
	start := clock.Now()
	p := New(DefaultConfig(), WithClock(clock))
	hook := &recordingHook{}
	fn, calls := failing(2, rateLimited)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type outcome struct {
		v   string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := Do(ctx, p, fn, hook)
		done <- outcome{v, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(3 * time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(6 * time.Second)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "ok", got.v)
	assert.Equal(t, 3, *calls)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, hook.delays())
	assert.Equal(t, 9*time.Second, clock.Since(start))
}

func TestDo_ExhaustsRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := New(DefaultConfig(), WithClock(clock))
	hook := &recordingHook{}
	fn, calls := failing(100, rateLimited)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, fn, hook)
		done <- err
	}()

	for _, d := range p.Delays() {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(d)
	}

	err := <-done
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 6, fatal.Attempts)
	assert.Equal(t, ClassRateLimited, fatal.Class)
	assert.ErrorIs(t, err, analyst.ErrFatalProvider)
	assert.Equal(t, 6, *calls)
	assert.Equal(t, p.Delays(), hook.delays())
}

func TestDo_FatalIsNotRetried(t *testing.T) {
	p := New(DefaultConfig(), WithClock(clockwork.NewFakeClock()))
	fn, calls := failing(1, &analyst.ProviderError{Provider: "test", Status: 401, Message: "invalid x-api-key"})

	_, err := Do(context.Background(), p, fn)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, fatal.Attempts)
	assert.Equal(t, 1, *calls)
	assert.ErrorIs(t, err, analyst.ErrFatalProvider)
	assert.Equal(t, analyst.KindFatalProvider, analyst.KindOf(err))
}

func TestDo_ContextOverflowDoesNotRetry(t *testing.T) {
	p := New(DefaultConfig(), WithClock(clockwork.NewFakeClock()))
	hook := &recordingHook{}
	fn, calls := failing(1, &analyst.ProviderError{
		Provider: "anthropic", Status: 400, Message: "prompt is too long",
	})

	_, err := Do(context.Background(), p, fn, hook)

	var overflow *ContextOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.ErrorIs(t, err, analyst.ErrContextOverflow)
	assert.Equal(t, analyst.KindContextOverflow, analyst.KindOf(err))
	assert.Equal(t, 1, *calls)
	assert.Empty(t, hook.delays())
}

func TestDo_CanceledDuringSleep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := New(DefaultConfig(), WithClock(clock))
	fn, calls := failing(100, rateLimited)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, fn)
		done <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, analyst.KindCanceled, analyst.KindOf(err))
	assert.Equal(t, 1, *calls)
}

func TestDo_ZeroRetries(t *testing.T) {
	p := New(Config{MaxRetries: 0, Base: time.Second}, WithClock(clockwork.NewFakeClock()))
	fn, calls := failing(1, rateLimited)

	_, err := Do(context.Background(), p, fn)

	assert.ErrorIs(t, err, analyst.ErrFatalProvider)
	assert.Equal(t, 1, *calls)
}
