// Package guard validates SQL text before it reaches an executor.
//
// Rules are applied in a fixed order and the first match wins:
//
//  1. WriteNotAllowed: the leading keyword is INSERT, UPDATE, DELETE, ALTER, CREATE, DROP or
//     TRUNCATE and the call did not pass [AllowWrite].
//  2. WildcardProjection: the text contains SELECT *.
//  3. MissingLimitOnLargeColumn: a large payload column is referenced and the outer query
//     has no usable row limit.
//  4. LimitTooHigh: a LIMIT bound exceeds the ceiling (MaxLargeLimit for queries touching
//     large columns, MaxLimit otherwise when set).
//  5. MissingLimit: the outer query has no usable row limit.
//
// A row limit is LIMIT n, LIMIT offset, n or FETCH FIRST n ROWS ONLY where n is a plain
// integer literal. LIMIT ALL, placeholders and expressions do not bound anything, so an outer
// clause using them leaves the query unlimited. A literal too large for an int is treated as
// above every ceiling. ClickHouse's LIMIT n BY bounds rows per group and is not a row limit.
//
// Comments and string literals are ignored, so "SELECT 'raw_data' ... -- LIMIT 5" neither
// references the column nor counts as limited. Quoted identifiers such as "limit" are never
// read as keywords.
package guard

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultMaxLargeLimit is the LIMIT ceiling for queries touching large columns.
	DefaultMaxLargeLimit = 10
)

// DefaultLargeColumns are the JSON payload columns that must never be read unbounded.
var DefaultLargeColumns = []string{"raw_data", "error_details"}

var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"ALTER":    true,
	"CREATE":   true,
	"DROP":     true,
	"TRUNCATE": true,
}

var (
	leadingWord = regexp.MustCompile(`^[A-Za-z]+`)
	wildcard    = regexp.MustCompile(`(?i)\bselect\s+(?:distinct\s+|all\s+)?\*`)
	limitWord   = regexp.MustCompile(`(?i)\blimit\b`)
	fetchWord   = regexp.MustCompile(`(?i)\bfetch\s+(?:first|next)\b`)
	// Arguments following LIMIT: n, or offset, n (MySQL).
	limitArgs = regexp.MustCompile(`^\s+(\d+)(?:\s*,\s*(\d+))?`)
	// Arguments following FETCH FIRST: [n] ROW[S] ONLY or WITH TIES.
	fetchArgs = regexp.MustCompile(`(?i)^(?:\s+(\d+))?\s+rows?\s+(?:only|with\s+ties)\b`)
	perGroup  = regexp.MustCompile(`(?i)^\s*by\b`)
)

// Config holds the guard policy.
type Config struct {
	// LargeColumns lists columns holding large unstructured payloads.
	// Defaults to DefaultLargeColumns when nil.
	LargeColumns []string

	// MaxLargeLimit is the LIMIT ceiling when a large column is referenced.
	// Defaults to DefaultMaxLargeLimit when zero.
	MaxLargeLimit int

	// MaxLimit is the LIMIT ceiling for every other query. Zero means no ceiling.
	MaxLimit int
}

// Guard is a QueryGuard. It holds no mutable state and is safe for concurrent use.
type Guard struct {
	largeColumns  []*regexp.Regexp
	columnNames   []string
	maxLargeLimit int
	maxLimit      int
}

// New creates a Guard from cfg, filling defaults.
func New(cfg Config) *Guard {
	cols := cfg.LargeColumns
	if cols == nil {
		cols = DefaultLargeColumns
	}
	g := &Guard{
		maxLargeLimit: cfg.MaxLargeLimit,
		maxLimit:      cfg.MaxLimit,
	}
	if g.maxLargeLimit <= 0 {
		g.maxLargeLimit = DefaultMaxLargeLimit
	}
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		g.columnNames = append(g.columnNames, c)
		g.largeColumns = append(
			g.largeColumns,
			regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(c)+`\b`),
		)
	}
	return g
}

// LargeColumns returns the configured large column names.
func (g *Guard) LargeColumns() []string {
	return g.columnNames
}

// MaxLargeLimit returns the LIMIT ceiling applied to large-column queries.
func (g *Guard) MaxLargeLimit() int {
	return g.maxLargeLimit
}

// Option adjusts a single Validate call.
type Option func(*options)

type options struct {
	allowWrite    bool
	maxLargeLimit int
	maxLimit      int
}

// AllowWrite lets write and DDL statements through. Row limit rules do not apply to them.
func AllowWrite() Option {
	return func(o *options) { o.allowWrite = true }
}

// WithCeilings overrides both LIMIT ceilings for one call. Export-class tools use this to
// pull more rows than the conversation could hold. A zero maxLimit disables the small
// column ceiling.
func WithCeilings(maxLargeLimit, maxLimit int) Option {
	return func(o *options) {
		o.maxLargeLimit = maxLargeLimit
		o.maxLimit = maxLimit
	}
}

// Validate returns nil when sql may be executed, or a *Rejection naming the first rule
// it violates.
func (g *Guard) Validate(sql string, opts ...Option) error {
	o := options{maxLargeLimit: g.maxLargeLimit, maxLimit: g.maxLimit}
	for _, opt := range opts {
		opt(&o)
	}

	text := stripCommentsAndLiterals(sql)
	reject := func(reason Reason) *Rejection {
		return &Rejection{Reason: reason, SQL: sql}
	}

	// 1. Write/DDL
	keyword := LeadingKeyword(text)
	isWrite := writeKeywords[keyword]
	if isWrite && !o.allowWrite {
		r := reject(ReasonWriteNotAllowed)
		r.Keyword = keyword
		return r
	}

	// 2. SELECT *
	if wildcard.MatchString(text) {
		return reject(ReasonWildcardProjection)
	}

	if isWrite {
		return nil
	}

	column := g.largeColumn(text)
	limits := rowLimits(text)
	limited, unusable := outerLimit(limits)

	// 3. Large column without a bound
	if column != "" && !limited {
		r := reject(ReasonMissingLimitOnLargeColumn)
		r.Column = column
		r.Ceiling = o.maxLargeLimit
		r.Clause = unusable
		return r
	}

	// 4. Bound above the ceiling
	if limited {
		ceiling := o.maxLimit
		if column != "" {
			ceiling = o.maxLargeLimit
		}
		if ceiling > 0 {
			for _, l := range limits {
				if l.valid && l.rows > ceiling {
					r := reject(ReasonLimitTooHigh)
					r.Column = column
					r.Limit = l.rows
					r.Ceiling = ceiling
					r.Clause = l.clause
					return r
				}
			}
		}
		return nil
	}

	// 5. No bound at all
	r := reject(ReasonMissingLimit)
	r.Clause = unusable
	return r
}

func (g *Guard) largeColumn(text string) string {
	for i, re := range g.largeColumns {
		if re.MatchString(text) {
			return g.columnNames[i]
		}
	}
	return ""
}

// LeadingKeyword returns the first keyword of sql in upper case, skipping whitespace,
// comments and opening parentheses.
func LeadingKeyword(sql string) string {
	text := strings.TrimLeft(stripCommentsAndLiterals(sql), " \t\r\n(")
	return strings.ToUpper(leadingWord.FindString(text))
}

// rowLimit is one LIMIT or FETCH FIRST clause.
type rowLimit struct {
	clause string
	// rows is math.MaxInt when the literal does not fit an int.
	rows  int
	valid bool
	outer bool
}

// rowLimits returns every row limiting clause in text, which must already be stripped of
// comments and literals.
func rowLimits(text string) []rowLimit {
	text = blankQuotedIdentifiers(text)
	depth := parenDepths(text)
	base := outerDepth(text, depth)

	var limits []rowLimit
	for _, loc := range limitWord.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		l := rowLimit{clause: clauseText(text[loc[0]:], 2), outer: depth[loc[0]] == base}
		if m := limitArgs.FindStringSubmatch(rest); m != nil && literalEnds(rest[len(m[0]):]) {
			if perGroup.MatchString(rest[len(m[0]):]) {
				continue
			}
			// With "LIMIT offset, count" the bound is the second number.
			raw := m[1]
			if m[2] != "" {
				raw = m[2]
			}
			l.clause = text[loc[0] : loc[1]+len(m[0])]
			l.rows, l.valid = parseRows(raw), true
		}
		limits = append(limits, l)
	}
	for _, loc := range fetchWord.FindAllStringIndex(text, -1) {
		rest := text[loc[1]:]
		l := rowLimit{clause: clauseText(text[loc[0]:], 3), outer: depth[loc[0]] == base}
		if m := fetchArgs.FindStringSubmatch(rest); m != nil {
			l.clause = text[loc[0] : loc[1]+len(m[0])]
			l.rows, l.valid = 1, true
			if m[1] != "" {
				l.rows = parseRows(m[1])
			}
		}
		limits = append(limits, l)
	}
	return limits
}

// outerLimit reports whether the outer query is bounded by a literal row limit. When it is
// not, unusable names the first outer clause that was present but could not be read.
func outerLimit(limits []rowLimit) (limited bool, unusable string) {
	for _, l := range limits {
		if !l.outer {
			continue
		}
		if !l.valid {
			if unusable == "" {
				unusable = l.clause
			}
			continue
		}
		limited = true
	}
	if unusable != "" {
		return false, unusable
	}
	return limited, ""
}

func parseRows(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return math.MaxInt
	}
	return n
}

// literalEnds reports whether an integer literal followed by rest ends cleanly, rejecting
// forms such as 1e9, 5.5, $1 and 5 + 1.
func literalEnds(rest string) bool {
	if rest == "" {
		return true
	}
	if c := rest[0]; c == '_' || c == '.' || c == '$' || c == '(' ||
		c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
		return false
	}
	next := strings.TrimLeft(rest, " \t\r\n")
	return next == "" || !strings.ContainsRune("+-*/%|^&", rune(next[0]))
}

// clauseText returns the first words of a clause, for error messages.
func clauseText(text string, words int) string {
	fields := strings.Fields(text)
	if len(fields) > words {
		fields = fields[:words]
	}
	return strings.Join(fields, " ")
}

// parenDepths returns the parenthesis nesting depth at every byte of text.
func parenDepths(text string) []int {
	depth := make([]int, len(text))
	d := 0
	for i := 0; i < len(text); i++ {
		if text[i] == ')' && d > 0 {
			d--
		}
		depth[i] = d
		if text[i] == '(' {
			d++
		}
	}
	return depth
}

// outerDepth is the shallowest depth holding statement text, so a statement wrapped in
// parentheses still has an outer query.
func outerDepth(text string, depth []int) int {
	base := -1
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\r', '\n', '(', ')', ';':
			continue
		}
		if base < 0 || depth[i] < base {
			base = depth[i]
		}
	}
	return max(base, 0)
}

// blankQuotedIdentifiers empties double-quoted and backquoted identifiers.
func blankQuotedIdentifiers(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '"' && c != '`' {
			sb.WriteByte(c)
			continue
		}
		end := strings.IndexByte(text[i+1:], c)
		if end < 0 {
			break
		}
		sb.WriteByte(c)
		sb.WriteByte(c)
		i += end + 1
	}
	return sb.String()
}

// stripCommentsAndLiterals blanks out comments and the contents of single-quoted string
// literals. Double-quoted identifiers are kept since they name columns.
func stripCommentsAndLiterals(sql string) string {
	var sb strings.Builder
	sb.Grow(len(sql))

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			sb.WriteByte(' ')
			if i < len(sql) {
				sb.WriteByte('\n')
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 3
			}
			sb.WriteByte(' ')
		case c == '\'':
			sb.WriteString("''")
			i++
			for i < len(sql) {
				if sql[i] == '\'' {
					// '' is an escaped quote inside the literal.
					if i+1 < len(sql) && sql[i+1] == '\'' {
						i += 2
						continue
					}
					break
				}
				i++
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
