package executor

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt describes the working rules every run shares. Domain schema hints
// belong in Config.SystemPrompt or the user message.
const DefaultSystemPrompt = `You are a data analyst with read-only SQL access to an analytics database.

Rules:
- Every query must end with LIMIT n, where n is an integer literal. Queries without one are rejected.
- Name the columns you need; SELECT * is rejected.
- Columns holding raw JSON payloads (raw_data, error_details) may only be selected with LIMIT 10 or less.
  Prefer JSON extraction functions and aggregates over selecting whole payloads.
- Query results are truncated to a few rows; row_count always reports the full count.
  Use the export tool when you need every row.
- A rejected query comes back as a tool error explaining what to fix. Correct it and try again.
- Be efficient: conclude as soon as you have enough evidence. Runs that exhaust their query
  or round budget fail without an answer.`

// Question is the run context the CLI collects before building the user message.
type Question struct {
	City            string
	CountryCode     string
	SuccessCriteria string

	// Focus is an optional free-form question. Without it the run asks for general
	// insights on the city.
	Focus string
}

// BuildQuestion renders q into the user message that starts a run.
func BuildQuestion(q Question) string {
	var sb strings.Builder

	switch {
	case q.City != "" && q.CountryCode != "":
		fmt.Fprintf(&sb, "Analyze %s, %s and provide insights.", q.City, strings.ToUpper(q.CountryCode))
	case q.City != "":
		fmt.Fprintf(&sb, "Analyze %s and provide insights.", q.City)
	default:
		sb.WriteString("Analyze the available data and provide insights.")
	}

	if q.Focus != "" {
		sb.WriteString("\n\nQuestion: ")
		sb.WriteString(q.Focus)
	}
	if q.SuccessCriteria != "" {
		sb.WriteString("\n\nSuccess criteria to evaluate against: ")
		sb.WriteString(q.SuccessCriteria)
	}

	sb.WriteString("\n\nQuery at most a handful of times, then conclude with your JSON analysis.")
	return sb.String()
}
