package shaper

import (
	"fmt"
	"strings"
	"testing"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeResult builds a result of n rows whose raw_data cell is width bytes long.
func makeResult(n, rowCount, width int) *analyst.QueryResult {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"id":       i,
			"raw_data": strings.Repeat("x", width),
		}
	}
	return &analyst.QueryResult{
		Columns:  []string{"id", "raw_data"},
		Rows:     rows,
		RowCount: rowCount,
	}
}

func TestShaper_Shape(t *testing.T) {
	type input struct {
		cfg    Config
		result *analyst.QueryResult
	}

	type expected struct {
		rows     int
		rowCount int
		note     string
		noteHas  string
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "zero rows unchanged",
			input:    input{result: &analyst.QueryResult{Columns: []string{"id"}}},
			expected: expected{rows: 0, rowCount: 0},
		},
		{
			name:     "small result passes through",
			input:    input{result: makeResult(3, 3, 10)},
			expected: expected{rows: 3, rowCount: 3},
		},
		{
			name:  "capped to five rows",
			input: input{result: makeResult(20, 20, 10)},
			expected: expected{
				rows:     5,
				rowCount: 20,
				note:     "Result truncated to first 5 rows (of 20 total) to save context",
			},
		},
		{
			name:  "row count from executor kept",
			input: input{result: makeResult(5, 100, 10)},
			expected: expected{
				rows:     5,
				rowCount: 100,
				note:     "Result truncated to first 5 rows (of 100 total) to save context",
			},
		},
		{
			name:  "row count below len rows is corrected",
			input: input{result: makeResult(3, 0, 10)},
			expected: expected{
				rows:     3,
				rowCount: 3,
			},
		},
		{
			name:  "oversized rows cut to fallback",
			input: input{result: makeResult(10, 10, 1000)},
			expected: expected{
				rows:     2,
				rowCount: 10,
				note:     "Result heavily truncated (showing 2 of 10 rows) due to size",
			},
		},
		{
			name:  "reduction is progressive",
			input: input{result: makeResult(10, 10, 600)},
			expected: expected{
				rows:     4,
				rowCount: 10,
				note:     "Result heavily truncated (showing 4 of 10 rows) due to size",
			},
		},
		{
			name:  "fallback rows still too big are clipped",
			input: input{result: makeResult(4, 4, 5000)},
			expected: expected{
				rows:     2,
				rowCount: 4,
				noteHas:  "long values clipped",
			},
		},
		{
			name:  "single huge row is clipped",
			input: input{result: makeResult(1, 1, 8000)},
			expected: expected{
				rows:     1,
				rowCount: 1,
				noteHas:  "long values clipped",
			},
		},
		{
			name: "export hint appended",
			input: input{
				cfg:    Config{ExportHint: "Use export_results for the full data"},
				result: makeResult(8, 8, 10),
			},
			expected: expected{
				rows:     5,
				rowCount: 8,
				note: "Result truncated to first 5 rows (of 8 total) to save context. " +
					"Use export_results for the full data",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.input.cfg)
			shaped := s.Shape(tt.input.result)

			assert.Len(t, shaped.Rows, tt.expected.rows)
			assert.Equal(t, tt.expected.rowCount, shaped.RowCount)
			assert.Equal(t, tt.input.result.Columns, shaped.Columns)
			if tt.expected.noteHas != "" {
				assert.Contains(t, shaped.Note, tt.expected.noteHas)
			} else {
				assert.Equal(t, tt.expected.note, shaped.Note)
			}
			if len(shaped.Rows) > 0 {
				assert.LessOrEqual(t, Size(shaped), s.MaxBytes())
			}
		})
	}
}

func TestShaper_RowCountAlwaysOriginal(t *testing.T) {
	s := New(Config{})
	for _, n := range []int{1, 2, 5, 6, 50} {
		for _, width := range []int{0, 100, 700, 2000, 10000} {
			t.Run(fmt.Sprintf("rows=%d width=%d", n, width), func(t *testing.T) {
				res := makeResult(n, n, width)
				shaped := s.Shape(res)

				assert.Equal(t, n, shaped.RowCount)
				assert.LessOrEqual(t, Size(shaped), s.MaxBytes())
				if len(shaped.Rows) < n {
					assert.Contains(t, shaped.Note, fmt.Sprintf("%d", n))
				}
			})
		}
	}
}

func TestShaper_DoesNotMutateInput(t *testing.T) {
	res := makeResult(2, 2, 9000)
	original := res.Rows[0]["raw_data"].(string)

	shaped := New(Config{}).Shape(res)

	require.Len(t, shaped.Rows, 2)
	assert.Equal(t, original, res.Rows[0]["raw_data"])
	assert.NotEqual(t, original, shaped.Rows[0]["raw_data"])
}

func TestShaper_NilResult(t *testing.T) {
	assert.Equal(t, analyst.ShapedResult{}, New(Config{}).Shape(nil))
}

func TestNew_PanicsOnInvertedFloor(t *testing.T) {
	assert.Panics(t, func() {
		New(Config{MaxRows: 2, FallbackRows: 3})
	})
}

func TestClipString(t *testing.T) {
	// Multi-byte runes are never split.
	got := clipString("héllo wörld", 2)
	assert.True(t, strings.HasPrefix(got, "h"))
	assert.Contains(t, got, "bytes clipped")
	assert.Equal(t, "short", clipString("short", 10))
}
