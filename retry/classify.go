package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

// Class is the retry classification of a completion error.
type Class int

const (
	// ClassFatal errors are propagated immediately.
	ClassFatal Class = iota

	// ClassRateLimited errors are retried with exponential backoff.
	ClassRateLimited

	// ClassContextOverflow errors are handed back to the caller to prune and retry once.
	ClassContextOverflow
)

// String returns the class name used in logs and metric labels.
func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassContextOverflow:
		return "context_overflow"
	default:
		return "fatal"
	}
}

// statusCoder is implemented by analyst.ProviderError and by SDK errors that expose the
// HTTP status of the failed request.
type statusCoder interface {
	StatusCode() int
}

type errorTyper interface {
	ErrorType() string
}

const statusOverloaded = 529

var (
	rateLimitTypes = map[string]bool{
		"rate_limit_error":    true,
		"rate_limit_exceeded": true,
		"overloaded_error":    true,
	}
	overflowTypes = map[string]bool{
		"context_length_exceeded": true,
		"request_too_large":       true,
	}

	rateLimitPhrases = []string{
		"rate limit",
		"rate_limit",
		"ratelimit",
		"too many requests",
		"overloaded",
		"429",
	}
	overflowPhrases = []string{
		"context_length_exceeded",
		"maximum context length",
		"context window",
		"prompt is too long",
		"too many tokens",
		"too long",
	}
)

// Classify maps a completion error onto a Class. Signals are checked from most to least
// reliable: context errors, the analyst sentinels, the HTTP status, the provider error
// type, and finally the message text.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassFatal
	}

	switch {
	case errors.Is(err, analyst.ErrContextOverflow):
		return ClassContextOverflow
	case errors.Is(err, analyst.ErrTransient):
		return ClassRateLimited
	case errors.Is(err, analyst.ErrFatalProvider):
		return ClassFatal
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() != 0 {
		return classifyStatus(sc.StatusCode(), err)
	}

	var et errorTyper
	if errors.As(err, &et) {
		t := et.ErrorType()
		if rateLimitTypes[t] {
			return ClassRateLimited
		}
		if overflowTypes[t] {
			return ClassContextOverflow
		}
	}

	return classifyText(err.Error())
}

func classifyStatus(status int, err error) Class {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, statusOverloaded:
		return ClassRateLimited
	case http.StatusRequestEntityTooLarge:
		return ClassContextOverflow
	case http.StatusBadRequest:
		if containsAny(strings.ToLower(err.Error()), overflowPhrases) {
			return ClassContextOverflow
		}
	}
	return ClassFatal
}

// classifyText is the last resort for errors that carry no status or type.
func classifyText(msg string) Class {
	msg = strings.ToLower(msg)
	switch {
	case containsAny(msg, overflowPhrases):
		return ClassContextOverflow
	case containsAny(msg, rateLimitPhrases):
		return ClassRateLimited
	default:
		return ClassFatal
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
