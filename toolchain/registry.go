package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/schema"
)

// Tool is implemented by [*QueryTool] and [*ExportTool].
type Tool interface {
	Kind() analyst.ToolKind
	Declaration() analyst.ToolDeclaration
	Schema() *schema.Schema
}

// Config configures a Registry.
type Config struct {
	Logger *slog.Logger
}

// Registry is a ToolRegistry. Register every tool before the first Dispatch; after that the
// registry is read-only and safe for concurrent use.
type Registry struct {
	tools map[string]Tool
	order []string
	log   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		tools: make(map[string]Tool),
		log:   log,
	}
}

// Register adds a tool. Panics if tool is nil or its name is already taken.
func (r *Registry) Register(tool Tool) *Registry {
	if tool == nil {
		panic("toolchain: Register called with nil tool")
	}
	name := tool.Declaration().Name
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("toolchain: tool %q already registered", name))
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return r
}

// Kind returns the class of the named tool, ToolKindUnknown if none is registered.
func (r *Registry) Kind(name string) analyst.ToolKind {
	if t, ok := r.tools[name]; ok {
		return t.Kind()
	}
	return analyst.ToolKindUnknown
}

// Declarations returns the tools in registration order, for the completion request.
func (r *Registry) Declarations() []analyst.ToolDeclaration {
	out := make([]analyst.ToolDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Declaration())
	}
	return out
}

// Dispatch executes one request and normalizes its outcome. It never panics and never
// returns an error: unknown tools, invalid arguments, guard rejections and executor
// failures all become the result's error descriptor.
func (r *Registry) Dispatch(
	ctx context.Context,
	req analyst.ToolCallRequest,
) (result analyst.ToolCallResult) {
	result = analyst.ToolCallResult{CallID: req.ID, Name: req.Name}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("toolchain: tool panicked", "tool", req.Name, "call_id", req.ID, "panic", p)
			result.Payload = nil
			result.Err = analyst.NewToolError(
				analyst.KindToolExecution,
				"ExecutionFailed",
				fmt.Errorf("%w: tool panicked: %v", analyst.ErrToolExecution, p),
			)
		}
	}()

	tool, ok := r.tools[req.Name]
	if !ok {
		r.log.Warn("toolchain: unknown tool", "tool", req.Name, "call_id", req.ID)
		result.Err = analyst.UnknownToolError(req.Name)
		return result
	}

	if err := tool.Schema().Validate(req.Arguments); err != nil {
		r.log.Debug("toolchain: invalid arguments", "tool", req.Name, "error", err)
		result.Err = invalidArguments(err)
		return result
	}

	switch t := tool.(type) {
	case *QueryTool:
		var args QueryArgs
		if err := decodeArgs(req.Arguments, &args); err != nil {
			result.Err = invalidArguments(err)
			return result
		}
		shaped, terr := t.Run(ctx, args)
		if terr != nil {
			result.Err = terr
			return result
		}
		result.Payload = shaped

	case *ExportTool:
		var args ExportArgs
		if err := decodeArgs(req.Arguments, &args); err != nil {
			result.Err = invalidArguments(err)
			return result
		}
		receipt, terr := t.Run(ctx, args)
		if terr != nil {
			result.Err = terr
			return result
		}
		result.Payload = receipt

	default:
		result.Err = analyst.UnknownToolError(req.Name)
	}

	return result
}

func invalidArguments(err error) *analyst.ToolError {
	return analyst.NewToolError(
		analyst.KindToolExecution,
		"InvalidArguments",
		fmt.Errorf("%w: %v", analyst.ErrInvalidArguments, err),
	)
}

func executionFailed(err error) *analyst.ToolError {
	return analyst.NewToolError(
		analyst.KindToolExecution,
		"ExecutionFailed",
		fmt.Errorf("%w: %v", analyst.ErrToolExecution, err),
	)
}

// decodeArgs converts the JSON-decoded argument map into a typed record.
func decodeArgs(args map[string]any, out any) error {
	encoded, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, out)
}
