package analyst

import (
	"errors"
	"fmt"
)

// ToolKind is the closed set of tool classes the registry knows how to dispatch.
type ToolKind int

const (
	// ToolKindUnknown is any name the registry has no tool for.
	ToolKindUnknown ToolKind = iota

	// ToolKindQuery runs guarded SQL and returns shaped rows. Dispatches count against
	// Budget.QueriesMax.
	ToolKindQuery

	// ToolKindExport runs guarded SQL and persists the rows to a sink, returning only a
	// summary to the conversation.
	ToolKindExport
)

func (k ToolKind) String() string {
	switch k {
	case ToolKindQuery:
		return "query"
	case ToolKindExport:
		return "export"
	default:
		return "unknown"
	}
}

// ToolError is the error descriptor carried in a failed [ToolCallResult]. It is what the
// model sees, so Message should tell it how to correct the call.
type ToolError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`

	err error
}

// NewToolError builds a descriptor from err. Code is a short machine-readable reason such
// as "UnknownTool" or "MissingLimit".
func NewToolError(kind ErrorKind, code string, err error) *ToolError {
	return &ToolError{
		Kind:    kind,
		Code:    code,
		Message: err.Error(),
		err:     err,
	}
}

// UnknownToolError is the descriptor for a call naming no registered tool.
func UnknownToolError(name string) *ToolError {
	return NewToolError(
		KindToolExecution,
		"UnknownTool",
		fmt.Errorf("%w: %s", ErrUnknownTool, name),
	)
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.err
}

// Is lets errors.Is match on the descriptor's kind sentinel even after it was decoded
// without the wrapped cause.
func (e *ToolError) Is(target error) bool {
	sentinel := e.Kind.Sentinel()
	return sentinel != nil && errors.Is(sentinel, target)
}
