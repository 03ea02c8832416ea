package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryArgsSchema() map[string]any {
	return Object(map[string]*Property{
		"sql":         String("SQL to run").MinLength(1),
		"description": String("Why the query is run"),
		"format":      String("File format").Enum("csv", "json", "xlsx").Default("csv"),
	}, "sql")
}

func TestSchema_Validate(t *testing.T) {
	type input struct {
		args map[string]any
	}

	type expected struct {
		wantErr     bool
		errContains string
	}

	compiled := MustCompile(queryArgsSchema())

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "valid minimal",
			input:    input{args: map[string]any{"sql": "SELECT 1 LIMIT 1"}},
			expected: expected{},
		},
		{
			name: "valid full",
			input: input{args: map[string]any{
				"sql":         "SELECT 1 LIMIT 1",
				"description": "smoke",
				"format":      "xlsx",
			}},
			expected: expected{},
		},
		{
			name:     "missing required",
			input:    input{args: map[string]any{"description": "no sql"}},
			expected: expected{wantErr: true, errContains: "sql"},
		},
		{
			name:     "nil args treated as empty object",
			input:    input{args: nil},
			expected: expected{wantErr: true, errContains: "sql"},
		},
		{
			name:     "empty sql",
			input:    input{args: map[string]any{"sql": ""}},
			expected: expected{wantErr: true},
		},
		{
			name:     "wrong type",
			input:    input{args: map[string]any{"sql": 42.0}},
			expected: expected{wantErr: true},
		},
		{
			name:     "enum violation",
			input:    input{args: map[string]any{"sql": "x", "format": "parquet"}},
			expected: expected{wantErr: true},
		},
		{
			name:     "unknown property",
			input:    input{args: map[string]any{"sql": "x", "query": "y"}},
			expected: expected{wantErr: true, errContains: "query"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compiled.Validate(tt.input.args)
			if !tt.expected.wantErr {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve))
			assert.NotContains(t, err.Error(), "\n")
			assert.Contains(t, err.Error(), "arguments do not match schema")
			if tt.expected.errContains != "" {
				assert.Contains(t, err.Error(), tt.expected.errContains)
			}
		})
	}
}

func TestSchema_NilAcceptsAnything(t *testing.T) {
	var s *Schema
	assert.NoError(t, s.Validate(map[string]any{"anything": true}))
	assert.Nil(t, s.Raw())

	compiled, err := Compile(nil)
	assert.NoError(t, err)
	assert.Nil(t, compiled)
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(map[string]any{"type": 12})
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustCompile(map[string]any{"type": 12})
	})
}

func TestObject_Build(t *testing.T) {
	raw := queryArgsSchema()

	assert.Equal(t, "object", raw["type"])
	assert.Equal(t, false, raw["additionalProperties"])
	assert.Equal(t, []string{"sql"}, raw["required"])

	props := raw["properties"].(map[string]any)
	sql := props["sql"].(map[string]any)
	assert.Equal(t, "string", sql["type"])
	assert.Equal(t, 1, sql["minLength"])

	format := props["format"].(map[string]any)
	assert.Equal(t, []any{"csv", "json", "xlsx"}, format["enum"])
	assert.Equal(t, "csv", format["default"])

	noRequired := Object(map[string]*Property{"n": Integer("count").MaxLength(3)})
	_, ok := noRequired["required"]
	assert.False(t, ok)
}

func TestValidationError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	ve := &ValidationError{Err: inner}
	assert.ErrorIs(t, ve, inner)
	assert.Equal(t, "arguments do not match schema: inner", ve.Error())
}

func TestSchema_NumberArrayRange(t *testing.T) {
	compiled := MustCompile(Object(map[string]*Property{
		"confidence": Number("Confidence").Range(0, 1),
		"sources":    Array("Sources", String("")),
	}, "confidence"))

	tests := []struct {
		name     string
		input    map[string]any
		expected bool
	}{
		{name: "in range", input: map[string]any{"confidence": 0.4, "sources": []any{"events"}}, expected: true},
		{name: "bounds are inclusive", input: map[string]any{"confidence": 1.0}, expected: true},
		{name: "above range", input: map[string]any{"confidence": 1.5}},
		{name: "wrong item type", input: map[string]any{"confidence": 0.5, "sources": []any{42}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := compiled.Validate(tc.input)
			if tc.expected {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
