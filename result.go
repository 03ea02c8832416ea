package analyst

import "time"

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeFinal          Outcome = "final"
	OutcomeBudgetExceeded Outcome = "budget_exceeded"
	OutcomeFatal          Outcome = "fatal"
	OutcomeCanceled       Outcome = "canceled"
)

// Result is returned by every run. Callers switch on Outcome; they never need to inspect
// Message to tell budget exhaustion from a provider failure.
type Result struct {
	RunID   string
	Outcome Outcome

	// Answer is set only for OutcomeFinal.
	Answer *FinalAnswer

	// Kind and Err describe the failure for every other outcome.
	Kind    ErrorKind
	Err     error
	Message string

	Budget       Budget
	Conversation Conversation
	Duration     time.Duration
}

// OK reports whether the run produced a final answer.
func (r *Result) OK() bool {
	return r != nil && r.Outcome == OutcomeFinal
}
