package termination

import "github.com/IternalEngineering/CNZ-service23-data-analyst-v3/schema"

// answerSchema is the JSON Schema of the final answer record shown to the model. The
// property names match the json tags of analyst.FinalAnswer.
func answerSchema() map[string]any {
	return schema.Object(map[string]*schema.Property{
		"insight_summary":   schema.String("Brief 1-2 sentence summary"),
		"detailed_analysis": schema.String("Analysis connecting the queried data sources"),
		"data_sources_used": schema.Array("Tables or sources the analysis relied on", schema.String("")),
		"confidence_score":  schema.Number("Confidence in the analysis").Range(0, 1),
		"recommendations":   schema.Array("Concrete next steps", schema.String("")),
	}, "insight_summary", "detailed_analysis", "data_sources_used", "confidence_score", "recommendations")
}
