package termination

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

const (
	// FallbackSummaryRunes is the length of the summary cut from unparseable text.
	FallbackSummaryRunes = 200

	// FallbackConfidence is the confidence of a fallback answer, and of a parsed answer that
	// omitted confidence_score.
	FallbackConfidence = 0.5
)

var errNoAnswerFields = errors.New("record has neither insight_summary nor detailed_analysis")

// Parser turns the model's final text into an analyst.FinalAnswer. It is stateless and
// safe for concurrent use.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse never fails: text that holds no usable record becomes a fallback answer that
// wraps the raw text.
func (p *Parser) Parse(text string) analyst.FinalAnswer {
	answer, _ := p.ParseStrict(text)
	return answer
}

// ParseStrict is Parse that also reports why the text could not be decoded. The returned
// answer is always usable; on error it is the fallback answer and the error wraps
// analyst.ErrParseFailure.
func (p *Parser) ParseStrict(text string) (analyst.FinalAnswer, error) {
	var lastErr error
	for _, candidate := range candidates(text) {
		answer, err := decode(candidate)
		if err == nil {
			return answer, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no JSON object found")
	}
	return fallback(text), fmt.Errorf("%w: %v", analyst.ErrParseFailure, lastErr)
}

// wireAnswer mirrors FinalAnswer with a nullable confidence so a missing score can be
// told apart from zero.
type wireAnswer struct {
	Summary         string   `json:"insight_summary"`
	Detail          string   `json:"detailed_analysis"`
	SourcesUsed     []string `json:"data_sources_used"`
	Confidence      *float64 `json:"confidence_score"`
	Recommendations []string `json:"recommendations"`
}

func decode(candidate string) (analyst.FinalAnswer, error) {
	var w wireAnswer
	if err := json.Unmarshal([]byte(candidate), &w); err != nil {
		return analyst.FinalAnswer{}, err
	}
	if strings.TrimSpace(w.Summary) == "" && strings.TrimSpace(w.Detail) == "" {
		return analyst.FinalAnswer{}, errNoAnswerFields
	}

	confidence := FallbackConfidence
	if w.Confidence != nil {
		confidence = clamp(*w.Confidence)
	}
	return analyst.FinalAnswer{
		Summary:         w.Summary,
		Detail:          w.Detail,
		SourcesUsed:     dedupe(w.SourcesUsed),
		Confidence:      confidence,
		Recommendations: nonNil(w.Recommendations),
	}, nil
}

func fallback(text string) analyst.FinalAnswer {
	summary := text
	if r := []rune(text); len(r) > FallbackSummaryRunes {
		summary = string(r[:FallbackSummaryRunes])
	}
	return analyst.FinalAnswer{
		Summary:         summary,
		Detail:          text,
		SourcesUsed:     []string{},
		Confidence:      FallbackConfidence,
		Recommendations: []string{},
		Fallback:        true,
	}
}

// candidates returns the substrings worth decoding, most specific first: a ```json fence,
// any other fence, then the span from the first '{' to the last '}'.
func candidates(text string) []string {
	var out []string
	for _, marker := range []string{"```json", "```JSON"} {
		if c, ok := fenced(text, marker); ok {
			out = append(out, c)
			break
		}
	}
	if c, ok := fenced(text, "```"); ok && strings.HasPrefix(c, "{") {
		out = append(out, c)
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		out = append(out, text[start:end+1])
	}
	return out
}

// fenced returns the body of the first code fence opened by marker. The rest of the
// opening line, e.g. a language tag, is skipped.
func fenced(text, marker string) (string, bool) {
	i := strings.Index(text, marker)
	if i < 0 {
		return "", false
	}
	body := text[i+len(marker):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return strings.TrimSpace(body), true
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// dedupe trims entries and drops blanks and repeats, keeping first-seen order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// Guidance returns the system prompt paragraph that describes the final answer format.
func Guidance() string {
	var sb strings.Builder
	sb.WriteString("When you have enough information, stop calling tools and respond with ")
	sb.WriteString("a single JSON object in a ```json code block matching this schema:\n")

	if encoded, err := json.MarshalIndent(answerSchema(), "", "  "); err == nil {
		sb.Write(encoded)
	}

	sb.WriteString("\n\nExample:\n")
	example := analyst.FinalAnswer{
		Summary:         "Brief 1-2 sentence summary",
		Detail:          "Analysis connecting the data sources",
		SourcesUsed:     []string{"table1", "table2"},
		Confidence:      0.85,
		Recommendations: []string{"Recommendation 1", "Recommendation 2"},
	}
	if encoded, err := json.MarshalIndent(example, "", "  "); err == nil {
		sb.Write(encoded)
	}
	return sb.String()
}
