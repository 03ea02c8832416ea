package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/retry"
)

// Executor drives the analyst loop: it asks the model for the next turn, dispatches the
// tool calls it requests, prunes the transcript and stops on a final answer, an exhausted
// budget, a fatal provider error or cancellation.
//
// An Executor holds only configuration. Each Run owns its own conversation and budget, so
// one Executor can serve concurrent runs as long as its Model, SQL executors and hooks are
// safe for concurrent use.
type Executor struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg, applies defaults and creates an Executor.
func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Executor{cfg: cfg, log: cfg.Logger}, nil
}

// run is the state of one Run call.
type run struct {
	id     string
	conv   analyst.Conversation
	budget analyst.Budget
}

// Run answers userMessage. It always returns a Result; the outcome tells the caller
// whether an answer was produced.
//
// The execution flow:
//  1. Check ctx and the iteration budget, then ask the model for the next turn
//  2. A turn without tool calls is parsed into the final answer
//  3. Otherwise each tool call is dispatched in model order, query calls counted against
//     the query budget, and the results appended as one ToolResultTurn
//  4. The conversation is pruned and the loop continues
//
// Cancelling ctx ends the run with OutcomeCanceled at the next check: before a completion
// call, during a backoff sleep, or between two tool dispatches.
func (e *Executor) Run(ctx context.Context, userMessage string) *analyst.Result {
	start := e.cfg.Clock.Now()
	r := &run{
		id:     e.cfg.NewRunID(),
		conv:   analyst.Conversation{&analyst.UserTurn{Text: userMessage}},
		budget: analyst.NewBudget(e.cfg.IterationsMax, e.cfg.QueriesMax),
	}
	e.log.Info("executor: run started", "run_id", r.id,
		"iterations_max", r.budget.IterationsMax, "queries_max", r.budget.QueriesMax)

	result := e.loop(ctx, r)
	result.RunID = r.id
	result.Budget = r.budget
	result.Conversation = r.conv
	result.Duration = e.cfg.Clock.Since(start)

	e.cfg.Hooks.FireAfterRun(ctx, analyst.AfterRunEvent{Result: result})
	return result
}

func (e *Executor) loop(ctx context.Context, r *run) *analyst.Result {
	for {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}
		if r.budget.IterationsExhausted() {
			return budgetExceeded(fmt.Sprintf(
				"iteration budget exhausted: %d completion calls made without a final answer",
				r.budget.IterationsUsed,
			))
		}

		r.budget.IterationsUsed++
		completion, err := e.complete(ctx, r)
		if err != nil {
			if analyst.KindOf(err) == analyst.KindCanceled {
				return canceled(err)
			}
			return fatal(err)
		}

		turn := completion.AsTurn()
		ensureCallIDs(turn, r.budget.IterationsUsed)
		r.conv = append(r.conv, turn)

		if !turn.HasToolCalls() {
			answer, perr := e.cfg.Parser.ParseStrict(completion.Content)
			if perr != nil {
				e.log.Debug("executor: final answer did not parse, using fallback",
					"run_id", r.id, "error", perr)
			}
			return &analyst.Result{Outcome: analyst.OutcomeFinal, Answer: &answer}
		}

		results, stop := e.dispatchAll(ctx, r, turn.ToolCalls)
		r.conv = append(r.conv, &analyst.ToolResultTurn{Results: results})
		if stop != nil {
			return stop
		}

		e.prune(ctx, r, false)
	}
}

// complete asks the model for the next turn through the retry policy. A context
// overflow shortens the conversation aggressively and retries the same request once.
func (e *Executor) complete(ctx context.Context, r *run) (*analyst.Completion, error) {
	completion, err := e.callModel(ctx, r)

	var overflow *retry.ContextOverflowError
	if !errors.As(err, &overflow) {
		return completion, err
	}

	e.log.Warn("executor: context overflow, pruning aggressively", "run_id", r.id, "turns", len(r.conv))
	e.prune(ctx, r, true)

	completion, err = e.callModel(ctx, r)
	if errors.As(err, &overflow) {
		return nil, fmt.Errorf("%w: context still too long after aggressive pruning: %v",
			analyst.ErrFatalProvider, err)
	}
	return completion, err
}

func (e *Executor) callModel(ctx context.Context, r *run) (*analyst.Completion, error) {
	req := &analyst.CompletionRequest{
		System:       e.cfg.SystemPrompt,
		Conversation: r.conv.Clone(),
		Tools:        e.cfg.Tools.Declarations(),
		MaxTokens:    e.cfg.MaxTokens,
	}
	iteration := r.budget.IterationsUsed
	e.cfg.Hooks.FireBeforeModelCall(ctx, analyst.BeforeModelCallEvent{
		RunID: r.id, Iteration: iteration, Request: req,
	})

	start := e.cfg.Clock.Now()
	completion, err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) (*analyst.Completion, error) {
		return e.cfg.Model.Complete(ctx, req)
	}, e.cfg.Hooks.RetryHook())
	if err == nil && completion == nil {
		err = fmt.Errorf("%w: model returned no completion", analyst.ErrFatalProvider)
	}

	e.cfg.Hooks.FireAfterModelCall(ctx, analyst.AfterModelCallEvent{
		RunID:      r.id,
		Iteration:  iteration,
		Completion: completion,
		Duration:   e.cfg.Clock.Since(start),
		Err:        err,
	})
	return completion, err
}

// dispatchAll runs calls sequentially in model order. Every call gets exactly one result
// so the pairing invariant holds even when the run stops midway; a non-nil Result ends
// the run.
func (e *Executor) dispatchAll(
	ctx context.Context,
	r *run,
	calls []analyst.ToolCallRequest,
) ([]analyst.ToolCallResult, *analyst.Result) {
	results := make([]analyst.ToolCallResult, 0, len(calls))
	var stop *analyst.Result

	for _, call := range calls {
		if stop != nil {
			results = append(results, skipped(call, stop))
			continue
		}
		if err := ctx.Err(); err != nil {
			stop = canceled(err)
			results = append(results, skipped(call, stop))
			continue
		}

		kind := e.cfg.Tools.Kind(call.Name)
		if kind == analyst.ToolKindQuery {
			if r.budget.QueriesExhausted() {
				e.log.Warn("executor: query budget exhausted", "run_id", r.id,
					"tool", call.Name, "call_id", call.ID, "queries_used", r.budget.QueriesUsed)
				stop = budgetExceeded(fmt.Sprintf(
					"query budget exhausted: %d queries already run, %s call %s not dispatched",
					r.budget.QueriesUsed, call.Name, call.ID,
				))
				results = append(results, skipped(call, stop))
				continue
			}
			r.budget.QueriesUsed++
		}

		start := e.cfg.Clock.Now()
		result := e.cfg.Tools.Dispatch(ctx, call)
		e.cfg.Hooks.FireAfterToolCall(ctx, analyst.AfterToolCallEvent{
			RunID:    r.id,
			Kind:     kind,
			Request:  call,
			Result:   result,
			Duration: e.cfg.Clock.Since(start),
		})
		results = append(results, result)
	}
	return results, stop
}

func (e *Executor) prune(ctx context.Context, r *run, aggressive bool) {
	before := len(r.conv)
	if aggressive {
		r.conv = e.cfg.Pruner.PruneAggressive(r.conv)
	} else {
		r.conv = e.cfg.Pruner.Prune(r.conv)
	}
	if after := len(r.conv); after != before || aggressive {
		e.cfg.Hooks.FirePrune(ctx, analyst.PruneEvent{
			RunID: r.id, Aggressive: aggressive, Before: before, After: after,
		})
	}
}

// ensureCallIDs fills in ids for providers that omit them, so results can always be
// matched to their requests.
func ensureCallIDs(turn *analyst.AssistantTurn, iteration int) {
	for i := range turn.ToolCalls {
		if turn.ToolCalls[i].ID == "" {
			turn.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", iteration, i+1)
		}
	}
}

// skipped is the result recorded for a call the run stopped before dispatching.
func skipped(call analyst.ToolCallRequest, stop *analyst.Result) analyst.ToolCallResult {
	return analyst.ToolCallResult{
		CallID: call.ID,
		Name:   call.Name,
		Err:    analyst.NewToolError(stop.Kind, "NotDispatched", stop.Err),
	}
}

func budgetExceeded(msg string) *analyst.Result {
	return &analyst.Result{
		Outcome: analyst.OutcomeBudgetExceeded,
		Kind:    analyst.KindBudgetExceeded,
		Err:     fmt.Errorf("%w: %s", analyst.ErrBudgetExceeded, msg),
		Message: msg,
	}
}

func canceled(err error) *analyst.Result {
	return &analyst.Result{
		Outcome: analyst.OutcomeCanceled,
		Kind:    analyst.KindCanceled,
		Err:     fmt.Errorf("%w: %w", analyst.ErrCanceled, err),
		Message: "run canceled: " + err.Error(),
	}
}

func fatal(err error) *analyst.Result {
	return &analyst.Result{
		Outcome: analyst.OutcomeFatal,
		Kind:    analyst.KindFatalProvider,
		Err:     err,
		Message: err.Error(),
	}
}
