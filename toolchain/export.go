package toolchain

import (
	"context"
	"fmt"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/guard"
	"github.com/IternalEngineering/CNZ-service23-data-analyst-v3/schema"
)

const (
	// DefaultExportToolName is the name the model calls the export tool by.
	DefaultExportToolName = "export_results"

	// DefaultMaxExportRows is the LIMIT ceiling for exported queries.
	DefaultMaxExportRows = 10000
)

// ExportArgs are the typed arguments of an export tool.
type ExportArgs struct {
	SQL         string               `json:"sql"`
	Format      analyst.ExportFormat `json:"format"`
	Description string               `json:"description"`
}

// ExportTool runs guarded SQL and hands the rows to a sink. Only the receipt goes back to
// the conversation.
type ExportTool struct {
	name    string
	guard   *guard.Guard
	exec    analyst.SQLExecutor
	sink    analyst.ExportSink
	maxRows int
	schema  *schema.Schema
}

// NewExportTool creates the export tool. Panics if any dependency is nil.
func NewExportTool(g *guard.Guard, exec analyst.SQLExecutor, sink analyst.ExportSink) *ExportTool {
	if g == nil || exec == nil || sink == nil {
		panic("toolchain: NewExportTool requires a guard, an executor and a sink")
	}
	return &ExportTool{
		name:    DefaultExportToolName,
		guard:   g,
		exec:    exec,
		sink:    sink,
		maxRows: DefaultMaxExportRows,
		schema: schema.MustCompile(schema.Object(map[string]*schema.Property{
			"sql": schema.String(
				"Read-only SQL selecting the rows to export. Must contain a LIMIT clause.",
			).MinLength(1),
			"format": schema.String("File format.").
				Enum(string(analyst.ExportCSV), string(analyst.ExportJSON), string(analyst.ExportXLSX)).
				Default(string(analyst.ExportCSV)),
			"description": schema.String("One sentence on what is being exported."),
		}, "sql")),
	}
}

// WithName renames the tool.
func (t *ExportTool) WithName(name string) *ExportTool {
	t.name = name
	return t
}

// WithMaxRows sets the LIMIT ceiling for exports. Panics if n < 1.
func (t *ExportTool) WithMaxRows(n int) *ExportTool {
	if n < 1 {
		panic("toolchain: ExportTool maxRows must be >= 1")
	}
	t.maxRows = n
	return t
}

// Kind implements Tool.
func (t *ExportTool) Kind() analyst.ToolKind {
	return analyst.ToolKindExport
}

// Schema implements Tool.
func (t *ExportTool) Schema() *schema.Schema {
	return t.schema
}

// Declaration implements Tool.
func (t *ExportTool) Declaration() analyst.ToolDeclaration {
	return analyst.ToolDeclaration{
		Name: t.name,
		Description: fmt.Sprintf(
			"Export query results to a file when they are too large to read in the conversation. "+
				"The query must include a LIMIT clause (max %d) and name its columns. "+
				"Returns only the file location and row count, never the rows.",
			t.maxRows,
		),
		Parameters: t.schema.Raw(),
	}
}

// Run validates, executes and exports. The rows never leave this method.
func (t *ExportTool) Run(ctx context.Context, args ExportArgs) (*analyst.ExportReceipt, *analyst.ToolError) {
	if args.Format == "" {
		args.Format = analyst.ExportCSV
	}
	if err := t.guard.Validate(args.SQL, guard.WithCeilings(t.maxRows, t.maxRows)); err != nil {
		return nil, toToolError(err)
	}

	res, err := t.exec.Execute(ctx, args.SQL)
	if err != nil {
		return nil, executionFailed(err)
	}

	receipt, err := t.sink.Export(ctx, analyst.ExportRequest{
		Columns: res.Columns,
		Rows:    res.Rows,
		Format:  args.Format,
	})
	if err != nil {
		return nil, analyst.NewToolError(
			analyst.KindToolExecution,
			"ExportFailed",
			fmt.Errorf("%w: %v", analyst.ErrToolExecution, err),
		)
	}
	return receipt, nil
}
