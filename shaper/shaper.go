// Package shaper keeps query results inside the per-result byte budget before they are
// handed back to the model.
//
//	s := shaper.New(shaper.Config{})
//	shaped := s.Shape(result)
//	// shaped.RowCount is always result.RowCount, even when rows were dropped.
package shaper

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

const (
	DefaultMaxRows      = 5
	DefaultFallbackRows = 2
	DefaultMaxBytes     = 3000
)

// Config holds the shaping limits. Zero values take the defaults.
type Config struct {
	// MaxRows is the first cap applied to every result.
	MaxRows int
	// FallbackRows is the floor the shaper reduces to when MaxRows still does not fit.
	FallbackRows int
	// MaxBytes is the ceiling on the serialized result.
	MaxBytes int
	// ExportHint is appended to truncation notes, e.g. to point the model at an export
	// tool. Empty means no hint.
	ExportHint string
}

// Shaper is a ResultShaper. It is stateless and safe for concurrent use.
type Shaper struct {
	maxRows      int
	fallbackRows int
	maxBytes     int
	exportHint   string
}

// New creates a Shaper, filling defaults. Panics if FallbackRows > MaxRows.
func New(cfg Config) *Shaper {
	s := &Shaper{
		maxRows:      cfg.MaxRows,
		fallbackRows: cfg.FallbackRows,
		maxBytes:     cfg.MaxBytes,
		exportHint:   cfg.ExportHint,
	}
	if s.maxRows <= 0 {
		s.maxRows = DefaultMaxRows
	}
	if s.fallbackRows <= 0 {
		s.fallbackRows = DefaultFallbackRows
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBytes
	}
	if s.fallbackRows > s.maxRows {
		panic("shaper: FallbackRows must be <= MaxRows")
	}
	return s
}

// MaxBytes returns the byte ceiling.
func (s *Shaper) MaxBytes() int {
	return s.maxBytes
}

// Shape caps rows to MaxRows, then keeps dropping rows while the serialized result is over
// MaxBytes, down to FallbackRows. If FallbackRows rows still do not fit, long string cells
// are clipped. Zero rows are returned unchanged.
func (s *Shaper) Shape(res *analyst.QueryResult) analyst.ShapedResult {
	if res == nil {
		return analyst.ShapedResult{}
	}

	total := res.RowCount
	if total < len(res.Rows) {
		total = len(res.Rows)
	}
	out := analyst.ShapedResult{
		Columns:  res.Columns,
		Rows:     res.Rows,
		RowCount: total,
	}
	if len(res.Rows) == 0 {
		return out
	}

	keep := min(len(res.Rows), s.maxRows)
	out.Rows = res.Rows[:keep]
	if keep < total {
		out.Note = s.note(fmt.Sprintf(
			"Result truncated to first %d rows (of %d total) to save context", keep, total,
		))
	}
	if s.fits(out) {
		return out
	}

	for keep > s.fallbackRows {
		keep--
		out.Rows = res.Rows[:keep]
		out.Note = s.note(fmt.Sprintf(
			"Result heavily truncated (showing %d of %d rows) due to size", keep, total,
		))
		if s.fits(out) {
			return out
		}
	}

	return s.clipCells(out)
}

func (s *Shaper) note(text string) string {
	if s.exportHint == "" {
		return text
	}
	return text + ". " + s.exportHint
}

func (s *Shaper) fits(r analyst.ShapedResult) bool {
	return Size(r) <= s.maxBytes
}

// clipCells shortens string cells until the result fits, halving the per-cell allowance
// each round. Rows are copied; the caller's maps are never modified.
func (s *Shaper) clipCells(r analyst.ShapedResult) analyst.ShapedResult {
	limit := s.maxBytes / max(1, len(r.Rows)*max(1, len(r.Columns)))
	used := limit
	src := r.Rows
	for limit >= 16 {
		rows := make([]map[string]any, len(src))
		for i, row := range src {
			rows[i] = clipRow(row, limit)
		}
		r.Rows = rows
		used = limit
		if s.fits(r) {
			break
		}
		limit /= 2
	}

	clip := fmt.Sprintf("long values clipped to %d bytes", used)
	if r.Note == "" {
		r.Note = clip
	} else {
		r.Note += "; " + clip
	}
	return r
}

func clipRow(row map[string]any, limit int) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case string:
			out[k] = clipString(val, limit)
		case []byte:
			out[k] = clipString(string(val), limit)
		case map[string]any, []any:
			b, err := json.Marshal(val)
			if err == nil && len(b) > limit {
				out[k] = clipString(string(b), limit)
			} else {
				out[k] = v
			}
		default:
			out[k] = v
		}
	}
	return out
}

func clipString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...[%d bytes clipped]", s[:cut], len(s)-cut)
}

// Size is the serialized size of r in bytes. Unserializable values count as over budget.
func Size(r analyst.ShapedResult) int {
	b, err := json.Marshal(r)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return len(b)
}
