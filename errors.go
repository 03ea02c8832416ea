package analyst

import (
	"context"
	"errors"
)

var (
	ErrSafetyViolation  = errors.New("query rejected by guard")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrToolExecution    = errors.New("tool execution failed")
	ErrTransient        = errors.New("transient provider error")
	ErrContextOverflow  = errors.New("context window exceeded")
	ErrParseFailure     = errors.New("final answer could not be parsed")
	ErrBudgetExceeded   = errors.New("budget exceeded")
	ErrFatalProvider    = errors.New("fatal provider error")
	ErrCanceled         = errors.New("run canceled")
)

// ErrorKind is the error taxonomy of a run. The first four kinds are recovered inside the
// loop; only BudgetExceeded, FatalProvider and Canceled end a run.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindSafetyViolation   ErrorKind = "SafetyViolation"
	KindTransientProvider ErrorKind = "TransientProviderError"
	KindContextOverflow   ErrorKind = "ContextOverflowError"
	KindToolExecution     ErrorKind = "ToolExecutionError"
	KindParseFailure      ErrorKind = "ParseFailure"
	KindBudgetExceeded    ErrorKind = "BudgetExceeded"
	KindFatalProvider     ErrorKind = "FatalProviderError"
	KindCanceled          ErrorKind = "Canceled"
)

// Sentinel returns the sentinel error associated with the kind, or nil for KindNone.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindSafetyViolation:
		return ErrSafetyViolation
	case KindTransientProvider:
		return ErrTransient
	case KindContextOverflow:
		return ErrContextOverflow
	case KindToolExecution:
		return ErrToolExecution
	case KindParseFailure:
		return ErrParseFailure
	case KindBudgetExceeded:
		return ErrBudgetExceeded
	case KindFatalProvider:
		return ErrFatalProvider
	case KindCanceled:
		return ErrCanceled
	default:
		return nil
	}
}

// KindOf maps err onto the taxonomy. Unrecognized errors are FatalProvider: anything the
// loop did not know how to recover from is terminal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrCanceled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrFatalProvider):
		return KindFatalProvider
	case errors.Is(err, ErrSafetyViolation):
		return KindSafetyViolation
	case errors.Is(err, ErrContextOverflow):
		return KindContextOverflow
	case errors.Is(err, ErrBudgetExceeded):
		return KindBudgetExceeded
	case errors.Is(err, ErrParseFailure):
		return KindParseFailure
	case errors.Is(err, ErrUnknownTool),
		errors.Is(err, ErrInvalidArguments),
		errors.Is(err, ErrToolExecution):
		return KindToolExecution
	case errors.Is(err, ErrTransient):
		return KindTransientProvider
	default:
		return KindFatalProvider
	}
}
