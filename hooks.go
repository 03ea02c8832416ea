package analyst

import "context"

// -----------------------------------------------------------------------------
// Hook Interfaces
// -----------------------------------------------------------------------------
//
// Hooks observe a run. Implement any subset of the interfaces below and register the value
// with hooks.Registry; the registry only calls the methods a hook implements.
//
//	type tokenCounter struct{ total int }
//
//	func (c *tokenCounter) OnAfterModelCall(ctx context.Context, e analyst.AfterModelCallEvent) {
//	    if e.Completion != nil {
//	        c.total += e.Completion.Usage.InputTokens + e.Completion.Usage.OutputTokens
//	    }
//	}
//
// Hooks must not block and must not return errors. They are called synchronously from the
// run's goroutine.
// -----------------------------------------------------------------------------

// BeforeModelCallHook is notified before each completion call.
type BeforeModelCallHook interface {
	OnBeforeModelCall(ctx context.Context, event BeforeModelCallEvent)
}

// AfterModelCallHook is notified after each completion call, successful or not.
type AfterModelCallHook interface {
	OnAfterModelCall(ctx context.Context, event AfterModelCallEvent)
}

// AfterToolCallHook is notified after each tool dispatch.
type AfterToolCallHook interface {
	OnAfterToolCall(ctx context.Context, event AfterToolCallEvent)
}

// RetryHook is notified before every backoff sleep.
type RetryHook interface {
	OnRetry(ctx context.Context, event RetryEvent)
}

// PruneHook is notified whenever the conversation is shortened.
type PruneHook interface {
	OnPrune(ctx context.Context, event PruneEvent)
}

// AfterRunHook is notified once when a run ends.
type AfterRunHook interface {
	OnAfterRun(ctx context.Context, event AfterRunEvent)
}
