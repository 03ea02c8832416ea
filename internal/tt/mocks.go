package tt

import (
	"context"
	"fmt"
	"sync"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

// -----------------------------------------------------------------------------
// MockModel - implements analyst.Model
// -----------------------------------------------------------------------------

// MockModel replays queued completions and errors in order. Once the queue is drained it
// returns a final answer with summary "done".
type MockModel struct {
	mu        sync.Mutex
	steps     []mockStep
	callCount int

	// CapturedRequests stores a copy of every request passed to Complete.
	CapturedRequests []*analyst.CompletionRequest
}

type mockStep struct {
	completion *analyst.Completion
	err        error
}

// NewMockModel creates an empty MockModel.
func NewMockModel() *MockModel {
	return &MockModel{}
}

// AddResponse queues a plain text completion.
func (m *MockModel) AddResponse(content string) *MockModel {
	return m.AddCompletion(&analyst.Completion{
		Content:      content,
		FinishReason: "end_turn",
		Usage:        analyst.Usage{InputTokens: 10, OutputTokens: 5},
	})
}

// AddToolCalls queues a completion requesting the given tool calls.
func (m *MockModel) AddToolCalls(calls ...analyst.ToolCallRequest) *MockModel {
	return m.AddCompletion(&analyst.Completion{
		ToolCalls:    calls,
		FinishReason: "tool_use",
		Usage:        analyst.Usage{InputTokens: 10, OutputTokens: 5},
	})
}

// AddCompletion queues a raw completion.
func (m *MockModel) AddCompletion(c *analyst.Completion) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{completion: c})
	return m
}

// AddError queues an error for the next call.
func (m *MockModel) AddError(err error) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, mockStep{err: err})
	return m
}

// CallCount returns the number of Complete calls so far.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns the captured requests.
func (m *MockModel) Requests() []*analyst.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*analyst.CompletionRequest, len(m.CapturedRequests))
	copy(out, m.CapturedRequests)
	return out
}

// Complete implements analyst.Model.
func (m *MockModel) Complete(
	ctx context.Context,
	req *analyst.CompletionRequest,
) (*analyst.Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.callCount
	m.callCount++

	captured := *req
	captured.Conversation = req.Conversation.Clone()
	m.CapturedRequests = append(m.CapturedRequests, &captured)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx < len(m.steps) {
		step := m.steps[idx]
		if step.err != nil {
			return nil, step.err
		}
		return step.completion, nil
	}
	return &analyst.Completion{
		Content:      `{"insight_summary":"done","confidence_score":1}`,
		FinishReason: "end_turn",
	}, nil
}

// QueryCall builds a query_database tool call request.
func QueryCall(id, sql string) analyst.ToolCallRequest {
	return analyst.ToolCallRequest{
		ID:        id,
		Name:      "query_database",
		Arguments: map[string]any{"sql": sql},
	}
}

// -----------------------------------------------------------------------------
// MockExecutor - implements analyst.SQLExecutor
// -----------------------------------------------------------------------------

// MockExecutor returns configured results per statement and records every call.
type MockExecutor struct {
	mu       sync.Mutex
	results  map[string]*analyst.QueryResult
	errors   map[string]error
	fallback *analyst.QueryResult
	calls    []string
}

// NewMockExecutor creates a MockExecutor whose default result is a single row
// {"count": 42}.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		results: make(map[string]*analyst.QueryResult),
		errors:  make(map[string]error),
		fallback: &analyst.QueryResult{
			Columns:  []string{"count"},
			Rows:     []map[string]any{{"count": 42}},
			RowCount: 1,
		},
	}
}

// On sets the result for an exact statement.
func (e *MockExecutor) On(sql string, res *analyst.QueryResult) *MockExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[sql] = res
	return e
}

// OnError sets the error for an exact statement.
func (e *MockExecutor) OnError(sql string, err error) *MockExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors[sql] = err
	return e
}

// WithDefault replaces the result returned for statements without a configured result.
func (e *MockExecutor) WithDefault(res *analyst.QueryResult) *MockExecutor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fallback = res
	return e
}

// Calls returns every executed statement in order.
func (e *MockExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// Execute implements analyst.SQLExecutor.
func (e *MockExecutor) Execute(ctx context.Context, sql string, params ...any) (*analyst.QueryResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, sql)
	res, hasRes := e.results[sql]
	err, hasErr := e.errors[sql]
	fallback := e.fallback
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hasErr {
		return nil, err
	}
	if hasRes {
		return res, nil
	}
	return fallback, nil
}

// -----------------------------------------------------------------------------
// MockSink - implements analyst.ExportSink
// -----------------------------------------------------------------------------

// MockSink records exports in memory.
type MockSink struct {
	mu      sync.Mutex
	err     error
	Exports []analyst.ExportRequest
}

// NewMockSink creates an empty MockSink.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// FailWith makes every export fail with err.
func (s *MockSink) FailWith(err error) *MockSink {
	s.err = err
	return s
}

// Export implements analyst.ExportSink.
func (s *MockSink) Export(ctx context.Context, req analyst.ExportRequest) (*analyst.ExportReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.Exports = append(s.Exports, req)
	return &analyst.ExportReceipt{
		Destination: fmt.Sprintf("memory://export-%d.%s", len(s.Exports), req.Format),
		RowCount:    len(req.Rows),
		Format:      req.Format,
	}, nil
}
