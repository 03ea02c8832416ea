package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic implements analyst.Model on the native Anthropic SDK. The SDK's own retries
// are disabled; retry.Policy owns backoff.
type Anthropic struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic creates an Anthropic adapter. An empty baseURL uses the SDK default.
// Additional request options are applied last.
func NewAnthropic(model, apiKey, baseURL string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	baseOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		baseOpts = append(baseOpts, option.WithBaseURL(baseURL))
	}

	return &Anthropic{
		client: anthropic.NewClient(append(baseOpts, opts...)...),
		model:  anthropic.Model(model),
	}, nil
}

// Complete implements analyst.Model.
func (a *Anthropic) Complete(ctx context.Context, req *analyst.CompletionRequest) (*analyst.Completion, error) {
	messages, err := toAnthropicMessages(req.Conversation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analyst.ErrFatalProvider, err)
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
		Tools:     toAnthropicTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{
			Text:         req.System,
			CacheControl: anthropic.NewCacheControlEphemeralParam(),
		}}
	}

	start := time.Now()
	resp, err := a.client.Messages.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, anthropicError(err)
	}
	return fromAnthropicMessage(resp, duration)
}

func toAnthropicMessages(conv analyst.Conversation) ([]anthropic.MessageParam, error) {
	messages := make([]anthropic.MessageParam, 0, len(conv))

	// Adjacent turns of the same role are merged; the API expects alternation.
	push := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, turn := range conv {
		switch t := turn.(type) {
		case *analyst.UserTurn:
			push(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(t.Text))

		case *analyst.AssistantTurn:
			var blocks []anthropic.ContentBlockParamUnion
			if t.Text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(t.Text))
			}
			for _, call := range t.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
			push(anthropic.MessageParamRoleAssistant, blocks...)

		case *analyst.ToolResultTurn:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(t.Results))
			for _, r := range t.Results {
				content, err := EncodeResult(r)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(r.CallID, content, r.IsError()))
			}
			push(anthropic.MessageParamRoleUser, blocks...)

		default:
			return nil, fmt.Errorf("unsupported turn type %T", turn)
		}
	}
	return messages, nil
}

func toAnthropicTools(decls []analyst.ToolDeclaration) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, d := range decls {
		tool := anthropic.ToolParam{
			Name:        d.Name,
			Description: anthropic.String(d.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Parameters["properties"],
				Required:   requiredFields(d.Parameters["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out
}

func requiredFields(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, s := range r {
			if name, ok := s.(string); ok {
				out = append(out, name)
			}
		}
		return out
	default:
		return nil
	}
}

func fromAnthropicMessage(msg *anthropic.Message, duration time.Duration) (*analyst.Completion, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: empty response", analyst.ErrFatalProvider)
	}

	completion := &analyst.Completion{
		FinishReason: string(msg.StopReason),
		Usage: analyst.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			Duration:     duration,
		},
	}

	var text []byte
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if len(text) > 0 {
				text = append(text, '\n')
			}
			text = append(text, block.Text...)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{"_raw": string(block.Input)}
				}
			}
			completion.ToolCalls = append(completion.ToolCalls, analyst.ToolCallRequest{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	completion.Content = string(text)
	return completion, nil
}

// anthropicErrorBody is the error envelope the Messages API returns.
type anthropicErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// anthropicError converts SDK failures into *analyst.ProviderError. The SDK's Error()
// needs the originating request, so the message comes from the raw body instead.
func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &analyst.ProviderError{Provider: "anthropic", Message: err.Error(), Err: err}
	}

	pe := &analyst.ProviderError{
		Provider: "anthropic",
		Status:   apiErr.StatusCode,
		Message:  "request failed",
		Err:      err,
	}
	var body anthropicErrorBody
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &body) == nil {
		pe.Type = body.Error.Type
		if body.Error.Message != "" {
			pe.Message = body.Error.Message
		}
	}
	return pe
}

var _ analyst.Model = (*Anthropic)(nil)
