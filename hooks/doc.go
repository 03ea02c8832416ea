// Package hooks provides a registry for run lifecycle hooks and two ready-made hooks.
//
// Hooks observe a run without influencing it. Each hook interface in package analyst
// corresponds to one event type; implement only the interfaces you need.
//
// # Hook Interfaces
//
// Model call hooks:
//   - [analyst.BeforeModelCallHook] - Called before each completion call
//   - [analyst.AfterModelCallHook] - Called after each completion call, including retries
//
// Tool and conversation hooks:
//   - [analyst.AfterToolCallHook] - Called after each tool dispatch
//   - [analyst.PruneHook] - Called when the conversation was shortened
//   - [analyst.RetryHook] - Called before each rate-limit backoff sleep
//
// Run hooks:
//   - [analyst.AfterRunHook] - Called once with the final result
//
// # Creating a Hook
//
//	type SlowToolHook struct{ threshold time.Duration }
//
//	func (h *SlowToolHook) OnAfterToolCall(ctx context.Context, e analyst.AfterToolCallEvent) {
//	    if e.Duration > h.threshold {
//	        slog.WarnContext(ctx, "slow tool", "tool", e.Request.Name, "duration", e.Duration)
//	    }
//	}
//
//	// Compile-time check
//	var _ analyst.AfterToolCallHook = (*SlowToolHook)(nil)
//
// # Provided Hooks
//
//   - [SlogHook] logs every event through log/slog
//   - [TranscriptHook] writes model and tool traffic as YAML documents
//
// Prometheus metrics live in package metrics.
package hooks
