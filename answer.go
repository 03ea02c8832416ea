package analyst

// FinalAnswer is the structured result of a successful run. The JSON names are what the
// model is asked to produce.
type FinalAnswer struct {
	Summary         string   `json:"insight_summary"`
	Detail          string   `json:"detailed_analysis"`
	SourcesUsed     []string `json:"data_sources_used"`
	Confidence      float64  `json:"confidence_score"`
	Recommendations []string `json:"recommendations"`

	// Fallback is true when the answer wraps raw text because the model did not emit a
	// well-formed record.
	Fallback bool `json:"-"`
}
