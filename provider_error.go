package analyst

import "fmt"

// ProviderError is a completion failure reported by a model provider. Model adapters
// convert their SDK errors into it so that retry classification can work on status codes
// and error types instead of message text.
type ProviderError struct {
	// Provider names the adapter, e.g. "anthropic" or "openai".
	Provider string

	// Status is the HTTP status code, 0 when the failure happened before a response.
	Status int

	// Type is the provider's error type, e.g. "rate_limit_error" or
	// "context_length_exceeded". Empty when the provider did not send one.
	Type string

	// Message is the provider's human-readable message.
	Message string

	// Err is the underlying SDK error.
	Err error
}

// Error implements error.
func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0 && e.Type != "":
		return fmt.Sprintf("%s: %d %s: %s", e.Provider, e.Status, e.Type, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: %d: %s", e.Provider, e.Status, e.Message)
	case e.Type != "":
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Type, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
}

// Unwrap returns the underlying SDK error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *ProviderError) StatusCode() int {
	return e.Status
}

// ErrorType returns the provider's error type string.
func (e *ProviderError) ErrorType() string {
	return e.Type
}
