package analyst

import (
	"context"
	"time"
)

// SQLExecutor is the query capability. Implementations must be safe for concurrent use;
// the only state shared between runs is the executor's connection pool.
type SQLExecutor interface {
	Execute(ctx context.Context, sql string, params ...any) (*QueryResult, error)
}

// QueryResult is what an executor returns. RowCount is the number of rows the statement
// produced, which may exceed len(Rows) for executors that cap fetches.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ShapedResult is a QueryResult cut down to fit the per-result byte budget. RowCount is
// always the original count.
type ShapedResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Note     string           `json:"note,omitempty"`
}

// ExportFormat is a file format understood by export sinks.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

// ExportRequest is handed to an [ExportSink].
type ExportRequest struct {
	Columns []string
	Rows    []map[string]any
	Format  ExportFormat
}

// ExportReceipt is the only thing an export returns to the conversation.
type ExportReceipt struct {
	Destination string       `json:"destination"`
	RowCount    int          `json:"row_count"`
	Format      ExportFormat `json:"format"`
	ExportedAt  time.Time    `json:"exported_at"`
}

// ExportSink persists rows outside the conversation.
type ExportSink interface {
	Export(ctx context.Context, req ExportRequest) (*ExportReceipt, error)
}
