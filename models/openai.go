package models

import (
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// OpenRouterBaseURL is the OpenAI-compatible endpoint of OpenRouter.
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	// DefaultOpenRouterTitle is sent as X-Title so requests are attributed in the
	// OpenRouter dashboard.
	DefaultOpenRouterTitle = "data-analyst"
)

// headerTransport injects fixed headers into every request. It satisfies the Doer
// interface of both langchaingo clients.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) Do(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// NewOpenAI creates an LCG backed by the OpenAI chat completions API. An empty baseURL
// uses the OpenAI default; any OpenAI-compatible gateway works.
//
// Additional openai.Option values are applied last and can override the defaults.
func NewOpenAI(model, token, baseURL string, opts ...openai.Option) (*LCG, error) {
	if token == "" {
		return nil, fmt.Errorf("openai token is required")
	}

	baseOpts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		baseOpts = append(baseOpts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return NewLCG(llm).WithProvider("openai").WithModelName(model), nil
}

// NewOpenRouter creates an LCG backed by OpenRouter. Model names use the
// vendor/model format, for example "anthropic/claude-sonnet-4".
//
// Example:
//
//	model, err := models.NewOpenRouter(
//	    "anthropic/claude-sonnet-4",
//	    os.Getenv("OPENROUTER_API_KEY"),
//	    "",
//	)
func NewOpenRouter(model, token, title string, opts ...openai.Option) (*LCG, error) {
	if token == "" {
		return nil, fmt.Errorf("openrouter token is required")
	}
	if title == "" {
		title = DefaultOpenRouterTitle
	}

	baseOpts := []openai.Option{
		openai.WithBaseURL(OpenRouterBaseURL),
		openai.WithToken(token),
		openai.WithModel(model),
		openai.WithHTTPClient(&headerTransport{
			base:    http.DefaultTransport,
			headers: map[string]string{"X-Title": title},
		}),
	}

	llm, err := openai.New(append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter client: %w", err)
	}
	return NewLCG(llm).WithProvider("openrouter").WithModelName(model), nil
}

// NewAnthropicLCG creates an LCG backed by langchaingo's Anthropic client. Use
// NewAnthropic for the native SDK adapter.
func NewAnthropicLCG(model, token, baseURL string, opts ...anthropic.Option) (*LCG, error) {
	if token == "" {
		return nil, fmt.Errorf("anthropic token is required")
	}

	baseOpts := []anthropic.Option{
		anthropic.WithToken(token),
		anthropic.WithModel(model),
	}
	if baseURL != "" {
		baseOpts = append(baseOpts, anthropic.WithBaseURL(baseURL))
	}

	llm, err := anthropic.New(append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
	}
	return NewLCG(llm).WithProvider("anthropic").WithModelName(model), nil
}
