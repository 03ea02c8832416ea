package toolchain

import (
	"context"
	"errors"
	"strings"
	"testing"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/guard"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/internal/tt"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/shaper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(exec *tt.MockExecutor, sink *tt.MockSink) *Registry {
	g := guard.New(guard.Config{})
	return NewRegistry(Config{}).
		Register(NewQueryTool(g, exec, shaper.New(shaper.Config{}))).
		Register(NewExportTool(g, exec, sink))
}

func manyRows(n int) *analyst.QueryResult {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"id": i}
	}
	return &analyst.QueryResult{Columns: []string{"id"}, Rows: rows, RowCount: n}
}

func TestRegistry_Dispatch(t *testing.T) {
	type input struct {
		request analyst.ToolCallRequest
		setup   func(exec *tt.MockExecutor, sink *tt.MockSink)
	}

	type expected struct {
		errCode       string
		errKind       analyst.ErrorKind
		executorCalls int
		exports       int
		check         func(t *testing.T, payload any)
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name: "unknown tool",
			input: input{request: analyst.ToolCallRequest{
				ID: "c1", Name: "drop_everything", Arguments: map[string]any{},
			}},
			expected: expected{errCode: "UnknownTool", errKind: analyst.KindToolExecution},
		},
		{
			name:  "missing limit never reaches executor",
			input: input{request: tt.QueryCall("c1", "SELECT COUNT(*) FROM t")},
			expected: expected{
				errCode: "MissingLimit",
				errKind: analyst.KindSafetyViolation,
			},
		},
		{
			name:  "wildcard rejected",
			input: input{request: tt.QueryCall("c1", "SELECT * FROM t LIMIT 1")},
			expected: expected{
				errCode: "WildcardProjection",
				errKind: analyst.KindSafetyViolation,
			},
		},
		{
			name: "missing sql argument",
			input: input{request: analyst.ToolCallRequest{
				ID: "c1", Name: DefaultQueryToolName, Arguments: map[string]any{"description": "x"},
			}},
			expected: expected{errCode: "InvalidArguments", errKind: analyst.KindToolExecution},
		},
		{
			name: "successful query is shaped",
			input: input{
				request: tt.QueryCall("c1", "SELECT id FROM t LIMIT 100"),
				setup: func(exec *tt.MockExecutor, _ *tt.MockSink) {
					exec.On("SELECT id FROM t LIMIT 100", manyRows(100))
				},
			},
			expected: expected{
				executorCalls: 1,
				check: func(t *testing.T, payload any) {
					shaped, ok := payload.(*analyst.ShapedResult)
					require.True(t, ok)
					assert.Len(t, shaped.Rows, 5)
					assert.Equal(t, 100, shaped.RowCount)
					assert.NotEmpty(t, shaped.Note)
				},
			},
		},
		{
			name: "executor failure becomes tool error",
			input: input{
				request: tt.QueryCall("c1", "SELECT id FROM missing LIMIT 1"),
				setup: func(exec *tt.MockExecutor, _ *tt.MockSink) {
					exec.OnError("SELECT id FROM missing LIMIT 1", errors.New(`relation "missing" does not exist`))
				},
			},
			expected: expected{
				errCode:       "ExecutionFailed",
				errKind:       analyst.KindToolExecution,
				executorCalls: 1,
			},
		},
		{
			name: "export returns receipt only",
			input: input{
				request: analyst.ToolCallRequest{
					ID:   "c1",
					Name: DefaultExportToolName,
					Arguments: map[string]any{
						"sql":    "SELECT id FROM t LIMIT 5000",
						"format": "json",
					},
				},
				setup: func(exec *tt.MockExecutor, _ *tt.MockSink) {
					exec.On("SELECT id FROM t LIMIT 5000", manyRows(5000))
				},
			},
			expected: expected{
				executorCalls: 1,
				exports:       1,
				check: func(t *testing.T, payload any) {
					receipt, ok := payload.(*analyst.ExportReceipt)
					require.True(t, ok)
					assert.Equal(t, 5000, receipt.RowCount)
					assert.Equal(t, analyst.ExportJSON, receipt.Format)
					assert.NotEmpty(t, receipt.Destination)
				},
			},
		},
		{
			name: "export defaults to csv",
			input: input{
				request: analyst.ToolCallRequest{
					ID: "c1", Name: DefaultExportToolName,
					Arguments: map[string]any{"sql": "SELECT id FROM t LIMIT 10"},
				},
			},
			expected: expected{
				executorCalls: 1,
				exports:       1,
				check: func(t *testing.T, payload any) {
					assert.Equal(t, analyst.ExportCSV, payload.(*analyst.ExportReceipt).Format)
				},
			},
		},
		{
			name: "export over ceiling rejected",
			input: input{request: analyst.ToolCallRequest{
				ID: "c1", Name: DefaultExportToolName,
				Arguments: map[string]any{"sql": "SELECT id FROM t LIMIT 50000"},
			}},
			expected: expected{errCode: "LimitTooHigh", errKind: analyst.KindSafetyViolation},
		},
		{
			name: "export bad format",
			input: input{request: analyst.ToolCallRequest{
				ID: "c1", Name: DefaultExportToolName,
				Arguments: map[string]any{"sql": "SELECT id FROM t LIMIT 5", "format": "parquet"},
			}},
			expected: expected{errCode: "InvalidArguments", errKind: analyst.KindToolExecution},
		},
		{
			name: "sink failure",
			input: input{
				request: analyst.ToolCallRequest{
					ID: "c1", Name: DefaultExportToolName,
					Arguments: map[string]any{"sql": "SELECT id FROM t LIMIT 5"},
				},
				setup: func(_ *tt.MockExecutor, sink *tt.MockSink) {
					sink.FailWith(errors.New("disk full"))
				},
			},
			expected: expected{
				errCode:       "ExportFailed",
				errKind:       analyst.KindToolExecution,
				executorCalls: 1,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := tt.NewMockExecutor()
			sink := tt.NewMockSink()
			if tc.input.setup != nil {
				tc.input.setup(exec, sink)
			}
			reg := newTestRegistry(exec, sink)

			result := reg.Dispatch(context.Background(), tc.input.request)

			assert.Equal(t, tc.input.request.ID, result.CallID)
			assert.Equal(t, tc.input.request.Name, result.Name)
			assert.Len(t, exec.Calls(), tc.expected.executorCalls)
			assert.Len(t, sink.Exports, tc.expected.exports)

			if tc.expected.errCode != "" {
				require.True(t, result.IsError())
				assert.Equal(t, tc.expected.errCode, result.Err.Code)
				assert.Equal(t, tc.expected.errKind, result.Err.Kind)
				assert.NotEmpty(t, result.Err.Message)
				assert.Nil(t, result.Payload)
				return
			}

			require.False(t, result.IsError(), "unexpected error: %v", result.Err)
			if tc.expected.check != nil {
				tc.expected.check(t, result.Payload)
			}
		})
	}
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, string, ...any) (*analyst.QueryResult, error) {
	panic("driver bug")
}

func TestRegistry_DispatchRecoversPanics(t *testing.T) {
	reg := NewRegistry(Config{}).Register(
		NewQueryTool(guard.New(guard.Config{}), panickingExecutor{}, shaper.New(shaper.Config{})),
	)

	result := reg.Dispatch(context.Background(), tt.QueryCall("c1", "SELECT id FROM t LIMIT 1"))

	require.True(t, result.IsError())
	assert.Equal(t, "ExecutionFailed", result.Err.Code)
	assert.Contains(t, result.Err.Message, "driver bug")
}

func TestRegistry_KindAndDeclarations(t *testing.T) {
	reg := newTestRegistry(tt.NewMockExecutor(), tt.NewMockSink())

	assert.Equal(t, analyst.ToolKindQuery, reg.Kind(DefaultQueryToolName))
	assert.Equal(t, analyst.ToolKindExport, reg.Kind(DefaultExportToolName))
	assert.Equal(t, analyst.ToolKindUnknown, reg.Kind("nope"))

	decls := reg.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, DefaultQueryToolName, decls[0].Name)
	assert.Equal(t, DefaultExportToolName, decls[1].Name)

	// The LIMIT rule is enforced at dispatch, so it has to be documented up front.
	assert.Contains(t, decls[0].Description, "LIMIT")
	assert.Contains(t, decls[0].Description, "raw_data")
	assert.True(t, strings.Contains(decls[1].Description, "LIMIT"))
	assert.Equal(t, "object", decls[0].Parameters["type"])
}

func TestRegistry_RegisterPanics(t *testing.T) {
	g := guard.New(guard.Config{})
	exec := tt.NewMockExecutor()

	assert.Panics(t, func() {
		NewRegistry(Config{}).Register(nil)
	})
	assert.Panics(t, func() {
		NewRegistry(Config{}).
			Register(NewQueryTool(g, exec, shaper.New(shaper.Config{}))).
			Register(NewQueryTool(g, exec, shaper.New(shaper.Config{})))
	})
	assert.NotPanics(t, func() {
		NewRegistry(Config{}).
			Register(NewQueryTool(g, exec, shaper.New(shaper.Config{}))).
			Register(NewQueryTool(g, exec, shaper.New(shaper.Config{})).WithName("query_clickhouse"))
	})
}

func TestQueryTool_AllowWrite(t *testing.T) {
	g := guard.New(guard.Config{})
	exec := tt.NewMockExecutor().WithDefault(&analyst.QueryResult{Columns: []string{}, Rows: []map[string]any{}})

	readOnly := NewRegistry(Config{}).Register(NewQueryTool(g, exec, shaper.New(shaper.Config{})))
	result := readOnly.Dispatch(context.Background(), tt.QueryCall("c1", "DELETE FROM t WHERE id = 1"))
	require.True(t, result.IsError())
	assert.Equal(t, "WriteNotAllowed", result.Err.Code)
	assert.Empty(t, exec.Calls())

	writable := NewRegistry(Config{}).Register(NewQueryTool(g, exec, shaper.New(shaper.Config{})).AllowWrite())
	result = writable.Dispatch(context.Background(), tt.QueryCall("c2", "DELETE FROM t WHERE id = 1"))
	assert.False(t, result.IsError())
	assert.Equal(t, []string{"DELETE FROM t WHERE id = 1"}, exec.Calls())
}
