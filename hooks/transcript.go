package hooks

import (
	"context"
	"fmt"
	"io"
	"sync"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"
)

// TranscriptHook writes a human-readable record of every model call and tool call as
// YAML documents. Nothing is truncated, which makes it useful for debugging prompts and
// guard rejections from the CLI.
type TranscriptHook struct {
	mu    sync.Mutex
	out   io.Writer
	clock clockwork.Clock
}

// NewTranscriptHook creates a TranscriptHook writing to w.
func NewTranscriptHook(w io.Writer) *TranscriptHook {
	return &TranscriptHook{out: w, clock: clockwork.NewRealClock()}
}

// WithClock replaces the clock used for entry timestamps.
func (h *TranscriptHook) WithClock(c clockwork.Clock) *TranscriptHook {
	h.clock = c
	return h
}

var (
	_ analyst.AfterModelCallHook = (*TranscriptHook)(nil)
	_ analyst.AfterToolCallHook  = (*TranscriptHook)(nil)
	_ analyst.PruneHook          = (*TranscriptHook)(nil)
	_ analyst.AfterRunHook       = (*TranscriptHook)(nil)
)

type transcriptCall struct {
	Name      string         `yaml:"name"`
	ID        string         `yaml:"id"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
}

func (h *TranscriptHook) OnAfterModelCall(_ context.Context, e analyst.AfterModelCallEvent) {
	entry := map[string]any{
		"run_id":   e.RunID,
		"round":    e.Iteration,
		"duration": e.Duration.String(),
	}
	if e.Err != nil {
		entry["error"] = e.Err.Error()
	}
	if c := e.Completion; c != nil {
		if c.Content != "" {
			entry["content"] = c.Content
		}
		calls := make([]transcriptCall, 0, len(c.ToolCalls))
		for _, tc := range c.ToolCalls {
			calls = append(calls, transcriptCall{Name: tc.Name, ID: tc.ID, Arguments: tc.Arguments})
		}
		if len(calls) > 0 {
			entry["tool_calls"] = calls
		}
		entry["usage"] = map[string]int{
			"input_tokens":  c.Usage.InputTokens,
			"output_tokens": c.Usage.OutputTokens,
		}
	}
	h.write("model", entry)
}

func (h *TranscriptHook) OnAfterToolCall(_ context.Context, e analyst.AfterToolCallEvent) {
	entry := map[string]any{
		"run_id":    e.RunID,
		"tool":      e.Request.Name,
		"call_id":   e.Request.ID,
		"kind":      e.Kind.String(),
		"arguments": e.Request.Arguments,
		"duration":  e.Duration.String(),
	}
	if e.Result.IsError() {
		entry["error"] = map[string]string{"code": e.Result.Err.Code, "message": e.Result.Err.Message}
	} else {
		entry["payload"] = e.Result.Payload
	}
	h.write("tool", entry)
}

func (h *TranscriptHook) OnPrune(_ context.Context, e analyst.PruneEvent) {
	h.write("prune", map[string]any{
		"run_id":     e.RunID,
		"aggressive": e.Aggressive,
		"before":     e.Before,
		"after":      e.After,
	})
}

func (h *TranscriptHook) OnAfterRun(_ context.Context, e analyst.AfterRunEvent) {
	r := e.Result
	entry := map[string]any{
		"run_id":   r.RunID,
		"outcome":  string(r.Outcome),
		"budget":   r.Budget,
		"duration": r.Duration.String(),
	}
	if r.Answer != nil {
		entry["answer"] = r.Answer
	}
	if r.Message != "" {
		entry["error"] = map[string]string{"kind": string(r.Kind), "message": r.Message}
	}
	h.write("run", entry)
}

func (h *TranscriptHook) write(event string, entry map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(h.out, "--- # %s %s\n", event, h.clock.Now().Format("2006-01-02 15:04:05.000"))
	data, err := yaml.Marshal(entry)
	if err != nil {
		fmt.Fprintf(h.out, "# failed to marshal: %v\n", err)
		return
	}
	_, _ = h.out.Write(data)
}
