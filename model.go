package analyst

import (
	"context"
	"time"
)

// Model is the completion capability. Implementations translate the provider-neutral
// request into a provider call and back. See the models package for adapters.
type Model interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// CompletionRequest is everything the model sees for one turn.
type CompletionRequest struct {
	System       string
	Conversation Conversation
	Tools        []ToolDeclaration
	MaxTokens    int
}

// Completion is the provider-neutral result of one completion call.
type Completion struct {
	Content      string
	ToolCalls    []ToolCallRequest
	FinishReason string
	Usage        Usage
}

// AsTurn converts the completion into the AssistantTurn appended to the conversation.
func (c *Completion) AsTurn() *AssistantTurn {
	return &AssistantTurn{Text: c.Content, ToolCalls: c.ToolCalls}
}

// Usage is normalized token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// ToolDeclaration is what the model is told about a tool.
type ToolDeclaration struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any
}
