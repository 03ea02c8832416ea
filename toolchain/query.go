package toolchain

import (
	"context"
	"fmt"
	"strings"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/guard"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/schema"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/shaper"
)

// DefaultQueryToolName is the name the model calls the query tool by.
const DefaultQueryToolName = "query_database"

// QueryArgs are the typed arguments of a query tool.
type QueryArgs struct {
	SQL         string `json:"sql"`
	Description string `json:"description"`
}

// QueryTool runs guarded read-only SQL and returns shaped rows.
type QueryTool struct {
	name        string
	description string
	guard       *guard.Guard
	executor    analyst.SQLExecutor
	shaper      *shaper.Shaper
	schema      *schema.Schema
	guardOpts   []guard.Option
}

// NewQueryTool creates the query tool. Panics if any dependency is nil.
func NewQueryTool(g *guard.Guard, exec analyst.SQLExecutor, s *shaper.Shaper) *QueryTool {
	if g == nil || exec == nil || s == nil {
		panic("toolchain: NewQueryTool requires a guard, an executor and a shaper")
	}
	t := &QueryTool{
		name:     DefaultQueryToolName,
		guard:    g,
		executor: exec,
		shaper:   s,
		schema: schema.MustCompile(schema.Object(map[string]*schema.Property{
			"sql": schema.String(
				"Read-only SQL. Must contain a LIMIT clause and name its columns explicitly.",
			).MinLength(1),
			"description": schema.String("One sentence on what this query is for."),
		}, "sql")),
	}
	t.description = defaultQueryDescription(g)
	return t
}

// WithName renames the tool, e.g. to expose several databases side by side.
func (t *QueryTool) WithName(name string) *QueryTool {
	t.name = name
	return t
}

// WithDescription replaces the generated description. Keep the LIMIT rules in it: the
// guard enforces them at dispatch, not at schema validation.
func (t *QueryTool) WithDescription(description string) *QueryTool {
	t.description = description
	return t
}

// AllowWrite passes write and DDL statements through the guard. Only for databases the
// model is meant to modify.
func (t *QueryTool) AllowWrite() *QueryTool {
	t.guardOpts = append(t.guardOpts, guard.AllowWrite())
	return t
}

// Kind implements Tool.
func (t *QueryTool) Kind() analyst.ToolKind {
	return analyst.ToolKindQuery
}

// Schema implements Tool.
func (t *QueryTool) Schema() *schema.Schema {
	return t.schema
}

// Declaration implements Tool.
func (t *QueryTool) Declaration() analyst.ToolDeclaration {
	return analyst.ToolDeclaration{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.schema.Raw(),
	}
}

// Run validates args.SQL, executes it and shapes the result.
func (t *QueryTool) Run(ctx context.Context, args QueryArgs) (*analyst.ShapedResult, *analyst.ToolError) {
	if err := t.guard.Validate(args.SQL, t.guardOpts...); err != nil {
		return nil, toToolError(err)
	}

	res, err := t.executor.Execute(ctx, args.SQL)
	if err != nil {
		return nil, executionFailed(err)
	}

	shaped := t.shaper.Shape(res)
	return &shaped, nil
}

// toToolError converts a guard error. Validate only returns *guard.Rejection, anything else
// is treated as an execution failure.
func toToolError(err error) *analyst.ToolError {
	if rej, ok := err.(*guard.Rejection); ok {
		return rej.ToolError()
	}
	return executionFailed(err)
}

func defaultQueryDescription(g *guard.Guard) string {
	var sb strings.Builder
	sb.WriteString("Execute a read-only SQL query against the analytics database. ")
	sb.WriteString("Every query MUST end with LIMIT n, where n is an integer literal; queries without one are rejected. ")
	sb.WriteString("SELECT * is rejected: name the columns you need. ")
	if cols := g.LargeColumns(); len(cols) > 0 {
		fmt.Fprintf(
			&sb,
			"Columns %s hold very large JSON payloads: select them only with LIMIT %d or less. ",
			strings.Join(cols, ", "), g.MaxLargeLimit(),
		)
	}
	sb.WriteString("Prefer COUNT and other aggregates over raw rows. ")
	fmt.Fprintf(&sb, "Results are truncated to %d rows; row_count always reports the full count.", shaper.DefaultMaxRows)
	return sb.String()
}
