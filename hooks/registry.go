package hooks

import (
	"context"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

// Registry manages a collection of hooks and dispatches events to them.
//
// # Overview
//
// Registry is the central coordination point for hooks. It:
//   - Stores registered hooks in order
//   - Dispatches events to hooks that implement the relevant interface
//
// Hooks can implement any combination of hook interfaces; they only receive events for
// the interfaces they implement.
//
// # Creating and Using
//
//	registry := hooks.NewRegistry().
//	    Register(hooks.NewSlogHook(logger)).
//	    Register(metrics.New(prometheus.DefaultRegisterer))
//
//	exec, err := executor.New(executor.Config{
//	    Model: model,
//	    Tools: tools,
//	    Hooks: registry,
//	})
//
// # Thread Safety
//
// Registry is NOT thread-safe for registration. Register all hooks before the first run;
// after that a Registry can be shared by concurrent runs, and every hook it holds must be
// safe for concurrent use.
type Registry struct {
	hooks []any
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		hooks: make([]any, 0),
	}
}

// Register adds a hook to the registry. The hook can implement any combination of the
// hook interfaces in package analyst. Hooks are called in the order they are registered.
func (r *Registry) Register(hook any) *Registry {
	r.hooks = append(r.hooks, hook)
	return r
}

// FireBeforeModelCall dispatches a BeforeModelCallEvent to all registered
// BeforeModelCallHook implementations.
func (r *Registry) FireBeforeModelCall(ctx context.Context, event analyst.BeforeModelCallEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(analyst.BeforeModelCallHook); ok {
			hook.OnBeforeModelCall(ctx, event)
		}
	}
}

// FireAfterModelCall dispatches an AfterModelCallEvent to all registered
// AfterModelCallHook implementations.
func (r *Registry) FireAfterModelCall(ctx context.Context, event analyst.AfterModelCallEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(analyst.AfterModelCallHook); ok {
			hook.OnAfterModelCall(ctx, event)
		}
	}
}

// FireAfterToolCall dispatches an AfterToolCallEvent to all registered
// AfterToolCallHook implementations.
func (r *Registry) FireAfterToolCall(ctx context.Context, event analyst.AfterToolCallEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(analyst.AfterToolCallHook); ok {
			hook.OnAfterToolCall(ctx, event)
		}
	}
}

// FireRetry dispatches a RetryEvent to all registered RetryHook implementations.
func (r *Registry) FireRetry(ctx context.Context, event analyst.RetryEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(analyst.RetryHook); ok {
			hook.OnRetry(ctx, event)
		}
	}
}

// FirePrune dispatches a PruneEvent to all registered PruneHook implementations.
func (r *Registry) FirePrune(ctx context.Context, event analyst.PruneEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(analyst.PruneHook); ok {
			hook.OnPrune(ctx, event)
		}
	}
}

// FireAfterRun dispatches an AfterRunEvent to all registered AfterRunHook
// implementations.
func (r *Registry) FireAfterRun(ctx context.Context, event analyst.AfterRunEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(analyst.AfterRunHook); ok {
			hook.OnAfterRun(ctx, event)
		}
	}
}

// RetryHook adapts the registry to analyst.RetryHook so it can be handed to retry.Do.
func (r *Registry) RetryHook() analyst.RetryHook {
	return retryFanout{r}
}

type retryFanout struct {
	r *Registry
}

func (f retryFanout) OnRetry(ctx context.Context, event analyst.RetryEvent) {
	f.r.FireRetry(ctx, event)
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	return len(r.hooks)
}

// Clear removes all registered hooks.
func (r *Registry) Clear() {
	r.hooks = make([]any, 0)
}
