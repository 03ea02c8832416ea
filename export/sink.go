// Package export writes query results that are too large for the conversation to files.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
	"github.com/jonboulle/clockwork"
	"github.com/xuri/excelize/v2"
)

const (
	// DefaultDir is where FileSink writes when no directory is configured.
	DefaultDir = "results"

	// Threshold is the row count above which results belong in a file rather than the
	// conversation.
	Threshold = 50

	filePrefix      = "query_results_"
	timestampLayout = "20060102_150405"
	sheetName       = "Results"
)

// ErrUnsupportedFormat is returned for formats the sink cannot write.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// ShouldExport reports whether rowCount rows are too many to return inline.
func ShouldExport(rowCount int) bool {
	return rowCount > Threshold
}

// FileSink writes exports to files named query_results_YYYYMMDD_HHMMSS.<ext> in one
// directory. A second export within the same second gets a numeric suffix.
type FileSink struct {
	dir   string
	clock clockwork.Clock
	log   *slog.Logger
}

// Option configures a FileSink.
type Option func(*FileSink)

// WithClock sets the clock used for file names and metadata timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *FileSink) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *FileSink) { s.log = l }
}

// NewFileSink creates a sink writing to dir, creating it if needed.
func NewFileSink(dir string, opts ...Option) (*FileSink, error) {
	if dir == "" {
		dir = DefaultDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving export dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}

	s := &FileSink{
		dir:   abs,
		clock: clockwork.NewRealClock(),
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute export directory.
func (s *FileSink) Dir() string {
	return s.dir
}

// Export implements analyst.ExportSink.
func (s *FileSink) Export(ctx context.Context, req analyst.ExportRequest) (*analyst.ExportReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := req.Format
	if format == "" {
		format = analyst.ExportCSV
	}
	var write func(w io.Writer, req analyst.ExportRequest, at time.Time) error
	switch format {
	case analyst.ExportCSV:
		write = writeCSV
	case analyst.ExportJSON:
		write = writeJSON
	case analyst.ExportXLSX:
		write = writeXLSX
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	now := s.clock.Now()
	f, err := s.create(now, string(format))
	if err != nil {
		return nil, err
	}
	path := f.Name()

	if err := write(f, req, now); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing %s: %w", format, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}

	s.log.Info("export: wrote results", "path", path, "format", format, "rows", len(req.Rows))
	return &analyst.ExportReceipt{
		Destination: path,
		RowCount:    len(req.Rows),
		Format:      format,
		ExportedAt:  now,
	}, nil
}

// create opens a new file for the timestamp, never overwriting an existing export.
func (s *FileSink) create(at time.Time, ext string) (*os.File, error) {
	base := filePrefix + at.Format(timestampLayout)
	for i := 0; ; i++ {
		name := base + "." + ext
		if i > 0 {
			name = base + "_" + strconv.Itoa(i) + "." + ext
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating export file: %w", err)
		}
		return f, nil
	}
}

// -----------------------------------------------------------------------------
// Writers
// -----------------------------------------------------------------------------

func writeCSV(w io.Writer, req analyst.ExportRequest, _ time.Time) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(req.Columns); err != nil {
		return err
	}
	record := make([]string, len(req.Columns))
	for _, row := range req.Rows {
		for i, col := range req.Columns {
			record[i] = cellText(row[col])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonMetadata struct {
	ExportedAt  string   `json:"exported_at"`
	RowCount    int      `json:"row_count"`
	ColumnCount int      `json:"column_count"`
	Columns     []string `json:"columns"`
}

type jsonDocument struct {
	Metadata jsonMetadata     `json:"metadata"`
	Data     []map[string]any `json:"data"`
}

func writeJSON(w io.Writer, req analyst.ExportRequest, at time.Time) error {
	data := req.Rows
	if data == nil {
		data = []map[string]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonDocument{
		Metadata: jsonMetadata{
			ExportedAt:  at.Format(time.RFC3339),
			RowCount:    len(req.Rows),
			ColumnCount: len(req.Columns),
			Columns:     req.Columns,
		},
		Data: data,
	})
}

func writeXLSX(w io.Writer, req analyst.ExportRequest, _ time.Time) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	cells := make([]any, len(req.Columns))
	for i, col := range req.Columns {
		cells[i] = col
	}
	if err := sw.SetRow("A1", cells, excelize.RowOpts{StyleID: header}); err != nil {
		return err
	}

	for r, row := range req.Rows {
		values := make([]any, len(req.Columns))
		for i, col := range req.Columns {
			values[i] = cellValue(row[col])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

// cellText renders a value for CSV.
func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// cellValue keeps numbers and booleans typed for XLSX and renders everything else as text.
func cellValue(v any) any {
	switch v.(type) {
	case nil:
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return v
	default:
		return cellText(v)
	}
}

var _ analyst.ExportSink = (*FileSink)(nil)
