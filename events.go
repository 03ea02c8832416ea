package analyst

import "time"

// BeforeModelCallEvent is fired right before a completion call.
type BeforeModelCallEvent struct {
	RunID     string
	Iteration int
	Request   *CompletionRequest
}

// AfterModelCallEvent is fired after a completion call returns, including the retries
// performed inside it.
type AfterModelCallEvent struct {
	RunID      string
	Iteration  int
	Completion *Completion
	Duration   time.Duration
	Err        error
}

// AfterToolCallEvent is fired once per dispatched tool call.
type AfterToolCallEvent struct {
	RunID    string
	Kind     ToolKind
	Request  ToolCallRequest
	Result   ToolCallResult
	Duration time.Duration
}

// RetryEvent is fired before the retry policy sleeps.
type RetryEvent struct {
	Attempt int
	Delay   time.Duration
	Err     error
}

// PruneEvent is fired when the conversation was shortened.
type PruneEvent struct {
	RunID      string
	Aggressive bool
	Before     int
	After      int
}

// AfterRunEvent is fired once per run with its final result.
type AfterRunEvent struct {
	Result *Result
}
