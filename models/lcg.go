package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/tmc/langchaingo/llms"
)

// LCG adapts a langchaingo llms.Model to analyst.Model. It converts the conversation to
// langchaingo messages, declares the tools, normalizes token usage across providers and
// turns provider failures into *analyst.ProviderError.
//
// Example usage:
//
//	llm, _ := openai.New(openai.WithToken(apiKey), openai.WithModel("gpt-4o"))
//	model := models.NewLCG(llm).WithProvider("openai")
type LCG struct {
	model     llms.Model
	provider  string
	modelName string
	errors    *llms.ErrorMapper
}

// NewLCG creates an LCG wrapping the given llms.Model.
func NewLCG(model llms.Model) *LCG {
	return &LCG{
		model:    model,
		provider: "langchaingo",
		errors:   llms.NewErrorMapper("langchaingo"),
	}
}

// WithProvider names the provider behind the model. "openai" and "anthropic" also select
// langchaingo's provider-specific error patterns.
func (m *LCG) WithProvider(name string) *LCG {
	m.provider = name
	switch name {
	case "openai", "openrouter":
		m.errors = llms.OpenAIErrorMapper()
	case "anthropic":
		m.errors = llms.AnthropicErrorMapper()
	default:
		m.errors = llms.NewErrorMapper(name)
	}
	return m
}

// Close releases the underlying client when it holds one.
func (m *LCG) Close() error {
	if c, ok := m.model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// WithModelName sets the model name passed with every call. Leave it empty when the
// underlying client was already created with a model.
func (m *LCG) WithModelName(name string) *LCG {
	m.modelName = name
	return m
}

// Unwrap returns the underlying llms.Model.
func (m *LCG) Unwrap() llms.Model {
	return m.model
}

// Complete implements analyst.Model.
func (m *LCG) Complete(ctx context.Context, req *analyst.CompletionRequest) (*analyst.Completion, error) {
	messages, err := toLCGMessages(req.System, req.Conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analyst.ErrFatalProvider, err)
	}

	opts := []llms.CallOption{llms.WithTools(toLCGTools(req.Tools))}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if m.modelName != "" {
		opts = append(opts, llms.WithModel(m.modelName))
	}

	start := time.Now()
	resp, err := m.model.GenerateContent(ctx, messages, opts...)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, m.providerError(err)
	}
	return fromLCGResponse(resp, duration)
}

// -----------------------------------------------------------------------------
// Request conversion
// -----------------------------------------------------------------------------

func toLCGMessages(system string, conv analyst.Conversation) ([]llms.MessageContent, error) {
	messages := make([]llms.MessageContent, 0, len(conv)+1)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}

	for _, turn := range conv {
		switch t := turn.(type) {
		case *analyst.UserTurn:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, t.Text))

		case *analyst.AssistantTurn:
			msg := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if t.Text != "" {
				msg.Parts = append(msg.Parts, llms.TextContent{Text: t.Text})
			}
			for _, call := range t.ToolCalls {
				args, err := json.Marshal(call.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encoding arguments of %s: %w", call.ID, err)
				}
				msg.Parts = append(msg.Parts, llms.ToolCall{
					ID:           call.ID,
					Type:         "function",
					FunctionCall: &llms.FunctionCall{Name: call.Name, Arguments: string(args)},
				})
			}
			messages = append(messages, msg)

		case *analyst.ToolResultTurn:
			// One message per result: the OpenAI client accepts a single response per
			// tool message.
			for _, r := range t.Results {
				content, err := EncodeResult(r)
				if err != nil {
					return nil, err
				}
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: r.CallID,
						Name:       r.Name,
						Content:    content,
					}},
				})
			}

		default:
			return nil, fmt.Errorf("unsupported turn type %T", turn)
		}
	}
	return messages, nil
}

func toLCGTools(decls []analyst.ToolDeclaration) []llms.Tool {
	tools := make([]llms.Tool, 0, len(decls))
	for _, d := range decls {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}

// EncodeResult renders a tool result as the text the model reads: the payload as JSON,
// or {"error": descriptor} for failed calls.
func EncodeResult(r analyst.ToolCallResult) (string, error) {
	var v any = r.Payload
	if r.IsError() {
		v = map[string]any{"error": r.Err}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding result of %s: %w", r.CallID, err)
	}
	return string(encoded), nil
}

// -----------------------------------------------------------------------------
// Response conversion
// -----------------------------------------------------------------------------

func fromLCGResponse(resp *llms.ContentResponse, duration time.Duration) (*analyst.Completion, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", analyst.ErrFatalProvider)
	}
	choice := resp.Choices[0]

	completion := &analyst.Completion{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
		Usage:        analyst.Usage{Duration: duration},
	}
	if info := choice.GenerationInfo; info != nil {
		completion.Usage.InputTokens = extractInputTokens(info)
		completion.Usage.OutputTokens = extractOutputTokens(info)
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				// Keep the call so the registry answers it with InvalidArguments.
				args = map[string]any{"_raw": tc.FunctionCall.Arguments}
			}
		}
		completion.ToolCalls = append(completion.ToolCalls, analyst.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: args,
		})
	}
	return completion, nil
}

// extractInputTokens extracts input/prompt token count from GenerationInfo.
// Handles different key names used by different providers.
func extractInputTokens(info map[string]any) int {
	// OpenAI / Ollama / Google (compat)
	if v := getIntFromMap(info, "PromptTokens"); v > 0 {
		return v
	}
	// Anthropic
	if v := getIntFromMap(info, "InputTokens"); v > 0 {
		return v
	}
	// Google / Bedrock
	return getIntFromMap(info, "input_tokens")
}

// extractOutputTokens extracts output/completion token count from GenerationInfo.
func extractOutputTokens(info map[string]any) int {
	if v := getIntFromMap(info, "CompletionTokens"); v > 0 {
		return v
	}
	if v := getIntFromMap(info, "OutputTokens"); v > 0 {
		return v
	}
	return getIntFromMap(info, "output_tokens")
}

// getIntFromMap extracts an int value from a map, handling various numeric types.
func getIntFromMap(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// statusInMessage matches the status langchaingo's HTTP clients put in error text.
var statusInMessage = regexp.MustCompile(`status code:? (\d{3})`)

var lcgErrorTypes = map[llms.ErrorCode]string{
	llms.ErrCodeRateLimit:           "rate_limit_error",
	llms.ErrCodeProviderUnavailable: "overloaded_error",
	llms.ErrCodeTokenLimit:          "context_length_exceeded",
	llms.ErrCodeAuthentication:      "authentication_error",
	llms.ErrCodeQuotaExceeded:       "insufficient_quota",
	llms.ErrCodeInvalidRequest:      "invalid_request_error",
}

func (m *LCG) providerError(err error) error {
	pe := &analyst.ProviderError{Provider: m.provider, Message: err.Error(), Err: err}

	var lcgErr *llms.Error
	if errors.As(m.errors.WrapError(err), &lcgErr) {
		pe.Type = lcgErrorTypes[lcgErr.Code]
		if lcgErr.Message != "" {
			pe.Message = lcgErr.Message
		}
	}
	if match := statusInMessage.FindStringSubmatch(err.Error()); match != nil {
		pe.Status, _ = strconv.Atoi(match[1])
	}
	return pe
}

var _ analyst.Model = (*LCG)(nil)
