package analyst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversation_Validate(t *testing.T) {
	type input struct {
		conv Conversation
	}

	type expected struct {
		wantErr bool
	}

	call := func(id string) ToolCallRequest {
		return ToolCallRequest{ID: id, Name: "query_database"}
	}
	result := func(id string) ToolCallResult {
		return ToolCallResult{CallID: id, Name: "query_database"}
	}

	tests := []struct {
		name     string
		input    input
		expected expected
	}{
		{
			name:     "empty conversation",
			input:    input{conv: Conversation{}},
			expected: expected{wantErr: false},
		},
		{
			name: "paired calls",
			input: input{conv: Conversation{
				&UserTurn{Text: "q"},
				&AssistantTurn{ToolCalls: []ToolCallRequest{call("a"), call("b")}},
				&ToolResultTurn{Results: []ToolCallResult{result("a"), result("b")}},
				&AssistantTurn{Text: "done"},
			}},
			expected: expected{wantErr: false},
		},
		{
			name: "trailing pending request",
			input: input{conv: Conversation{
				&UserTurn{Text: "q"},
				&AssistantTurn{ToolCalls: []ToolCallRequest{call("a")}},
			}},
			expected: expected{wantErr: false},
		},
		{
			name: "assistant followed by assistant",
			input: input{conv: Conversation{
				&UserTurn{Text: "q"},
				&AssistantTurn{ToolCalls: []ToolCallRequest{call("a")}},
				&AssistantTurn{Text: "oops"},
			}},
			expected: expected{wantErr: true},
		},
		{
			name: "missing result for one call",
			input: input{conv: Conversation{
				&UserTurn{Text: "q"},
				&AssistantTurn{ToolCalls: []ToolCallRequest{call("a"), call("b")}},
				&ToolResultTurn{Results: []ToolCallResult{result("a")}},
			}},
			expected: expected{wantErr: true},
		},
		{
			name: "duplicate result id",
			input: input{conv: Conversation{
				&UserTurn{Text: "q"},
				&AssistantTurn{ToolCalls: []ToolCallRequest{call("a"), call("b")}},
				&ToolResultTurn{Results: []ToolCallResult{result("a"), result("a")}},
			}},
			expected: expected{wantErr: true},
		},
		{
			name: "orphan tool results",
			input: input{conv: Conversation{
				&ToolResultTurn{Results: []ToolCallResult{result("a")}},
				&UserTurn{Text: "q"},
			}},
			expected: expected{wantErr: true},
		},
		{
			name: "tool results after plain assistant text",
			input: input{conv: Conversation{
				&UserTurn{Text: "q"},
				&AssistantTurn{Text: "thinking"},
				&ToolResultTurn{Results: []ToolCallResult{result("a")}},
			}},
			expected: expected{wantErr: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.conv.Validate()
			if tt.expected.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConversation_CloneIsIndependent(t *testing.T) {
	orig := Conversation{&UserTurn{Text: "a"}, &AssistantTurn{Text: "b"}}
	clone := orig.Clone()
	clone[1] = &AssistantTurn{Text: "changed"}

	assert.Equal(t, "b", orig[1].(*AssistantTurn).Text)
	assert.Equal(t, 0, orig.FirstUser())
	assert.Equal(t, -1, Conversation{&AssistantTurn{}}.FirstUser())
}

func TestBudget(t *testing.T) {
	b := NewBudget(0, -1)
	assert.Equal(t, DefaultIterationsMax, b.IterationsMax)
	assert.Equal(t, DefaultQueriesMax, b.QueriesMax)
	assert.False(t, b.Exhausted())

	b = NewBudget(2, 1)
	b.QueriesUsed = 1
	assert.True(t, b.QueriesExhausted())
	assert.False(t, b.IterationsExhausted())
	assert.True(t, b.Exhausted())

	b.QueriesUsed = 0
	b.IterationsUsed = 2
	assert.True(t, b.IterationsExhausted())
	assert.True(t, b.Exhausted())
}
