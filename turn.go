package analyst

import "fmt"

// Turn is one entry in a [Conversation]. The set of implementations is closed:
// [*UserTurn], [*AssistantTurn] and [*ToolResultTurn].
type Turn interface {
	isTurn()
}

// UserTurn carries text from the caller.
type UserTurn struct {
	Text string
}

// AssistantTurn is what the model produced in one completion call. When ToolCalls is
// non-empty the turn must be answered by a [ToolResultTurn] before the model is asked again.
type AssistantTurn struct {
	Text      string
	ToolCalls []ToolCallRequest
}

// ToolResultTurn answers every request of the preceding [AssistantTurn], in order.
type ToolResultTurn struct {
	Results []ToolCallResult
}

func (*UserTurn) isTurn()       {}
func (*AssistantTurn) isTurn()  {}
func (*ToolResultTurn) isTurn() {}

// HasToolCalls reports whether the turn requests any tool execution.
func (t *AssistantTurn) HasToolCalls() bool {
	return t != nil && len(t.ToolCalls) > 0
}

// ToolCallRequest is a structured request from the model to invoke a named tool.
type ToolCallRequest struct {
	// ID is unique within the conversation and echoed back in the result.
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolCallResult is the normalized outcome of one tool call. Exactly one of Payload and
// Err is meaningful: Err is set when the call failed or was rejected.
type ToolCallResult struct {
	CallID  string
	Name    string
	Payload any
	Err     *ToolError
}

// IsError reports whether the result carries an error descriptor.
func (r ToolCallResult) IsError() bool {
	return r.Err != nil
}

// Conversation is the ordered transcript of one run.
type Conversation []Turn

// Clone returns a shallow copy whose backing array is independent of c.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	copy(out, c)
	return out
}

// FirstUser returns the index of the first UserTurn, or -1.
func (c Conversation) FirstUser() int {
	for i, t := range c {
		if _, ok := t.(*UserTurn); ok {
			return i
		}
	}
	return -1
}

// Validate checks the pairing invariant: each AssistantTurn with tool calls is immediately
// followed by a ToolResultTurn answering every call id exactly once, and no ToolResultTurn
// appears without such an AssistantTurn in front of it.
func (c Conversation) Validate() error {
	for i, t := range c {
		switch turn := t.(type) {
		case *AssistantTurn:
			if !turn.HasToolCalls() {
				continue
			}
			if i+1 >= len(c) {
				// A trailing request is pending, not broken.
				continue
			}
			results, ok := c[i+1].(*ToolResultTurn)
			if !ok {
				return fmt.Errorf("turn %d: assistant tool calls not followed by tool results", i)
			}
			if err := matchResults(turn.ToolCalls, results.Results); err != nil {
				return fmt.Errorf("turn %d: %w", i+1, err)
			}
		case *ToolResultTurn:
			if i == 0 {
				return fmt.Errorf("turn 0: tool results without a preceding assistant turn")
			}
			prev, ok := c[i-1].(*AssistantTurn)
			if !ok || !prev.HasToolCalls() {
				return fmt.Errorf("turn %d: tool results without a preceding assistant turn", i)
			}
		}
	}
	return nil
}

func matchResults(calls []ToolCallRequest, results []ToolCallResult) error {
	if len(calls) != len(results) {
		return fmt.Errorf("%d tool calls answered by %d results", len(calls), len(results))
	}
	seen := make(map[string]int, len(results))
	for _, r := range results {
		seen[r.CallID]++
	}
	for _, call := range calls {
		if seen[call.ID] != 1 {
			return fmt.Errorf("call %q answered %d times", call.ID, seen[call.ID])
		}
	}
	return nil
}
