package hooks

import (
	"context"
	"log/slog"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

// SlogHook logs every lifecycle event as a structured record. Routine events go to Debug,
// recoveries to Warn and failed runs to Error.
type SlogHook struct {
	log *slog.Logger
}

// NewSlogHook creates a SlogHook. A nil logger uses slog.Default().
func NewSlogHook(l *slog.Logger) *SlogHook {
	if l == nil {
		l = slog.Default()
	}
	return &SlogHook{log: l}
}

var (
	_ analyst.BeforeModelCallHook = (*SlogHook)(nil)
	_ analyst.AfterModelCallHook  = (*SlogHook)(nil)
	_ analyst.AfterToolCallHook   = (*SlogHook)(nil)
	_ analyst.RetryHook           = (*SlogHook)(nil)
	_ analyst.PruneHook           = (*SlogHook)(nil)
	_ analyst.AfterRunHook        = (*SlogHook)(nil)
)

func (h *SlogHook) OnBeforeModelCall(ctx context.Context, e analyst.BeforeModelCallEvent) {
	h.log.DebugContext(ctx, "model: calling",
		"run_id", e.RunID,
		"round", e.Iteration,
		"turns", len(e.Request.Conversation),
		"tools", len(e.Request.Tools),
	)
}

func (h *SlogHook) OnAfterModelCall(ctx context.Context, e analyst.AfterModelCallEvent) {
	if e.Err != nil {
		h.log.WarnContext(ctx, "model: call failed",
			"run_id", e.RunID, "round", e.Iteration, "duration", e.Duration, "error", e.Err)
		return
	}
	h.log.DebugContext(ctx, "model: responded",
		"run_id", e.RunID,
		"round", e.Iteration,
		"duration", e.Duration,
		"tool_calls", len(e.Completion.ToolCalls),
		"input_tokens", e.Completion.Usage.InputTokens,
		"output_tokens", e.Completion.Usage.OutputTokens,
	)
}

func (h *SlogHook) OnAfterToolCall(ctx context.Context, e analyst.AfterToolCallEvent) {
	attrs := []any{
		"run_id", e.RunID,
		"tool", e.Request.Name,
		"call_id", e.Request.ID,
		"kind", e.Kind.String(),
		"duration", e.Duration,
	}
	if e.Result.IsError() {
		h.log.InfoContext(ctx, "tool: returned error", append(attrs,
			"code", e.Result.Err.Code, "error", e.Result.Err.Message)...)
		return
	}
	h.log.DebugContext(ctx, "tool: ok", attrs...)
}

func (h *SlogHook) OnRetry(ctx context.Context, e analyst.RetryEvent) {
	h.log.WarnContext(ctx, "retry: backing off", "attempt", e.Attempt, "delay", e.Delay, "error", e.Err)
}

func (h *SlogHook) OnPrune(ctx context.Context, e analyst.PruneEvent) {
	level := slog.LevelDebug
	if e.Aggressive {
		level = slog.LevelWarn
	}
	h.log.Log(ctx, level, "compaction: pruned conversation",
		"run_id", e.RunID, "aggressive", e.Aggressive, "before", e.Before, "after", e.After)
}

func (h *SlogHook) OnAfterRun(ctx context.Context, e analyst.AfterRunEvent) {
	r := e.Result
	attrs := []any{
		"run_id", r.RunID,
		"outcome", string(r.Outcome),
		"iterations", r.Budget.IterationsUsed,
		"queries", r.Budget.QueriesUsed,
		"duration", r.Duration,
	}
	if r.OK() {
		h.log.InfoContext(ctx, "run: finished", append(attrs,
			"confidence", r.Answer.Confidence, "fallback", r.Answer.Fallback)...)
		return
	}
	h.log.ErrorContext(ctx, "run: failed", append(attrs, "kind", string(r.Kind), "error", r.Message)...)
}
