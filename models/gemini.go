package models

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"
)

// NewGemini creates an LCG backed by the Google AI Gemini API. The returned model holds a
// client connection; release it with Close.
//
// Additional googleai.Option values are applied last and can override the defaults.
func NewGemini(ctx context.Context, model, token string, opts ...googleai.Option) (*LCG, error) {
	if token == "" {
		return nil, fmt.Errorf("gemini token is required")
	}

	baseOpts := []googleai.Option{
		googleai.WithAPIKey(token),
		googleai.WithDefaultModel(model),
	}

	llm, err := googleai.New(ctx, append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return NewLCG(llm).WithProvider("googleai").WithModelName(model), nil
}
