// Package termination turns the model's final message into an [analyst.FinalAnswer].
//
// A run ends when the model replies without tool calls. That reply is expected to hold a
// JSON record with the FinalAnswer fields, usually in a ```json block. Models drift, so
// [Parser] tries several candidates in order and takes the first that decodes:
//
//  1. the body of a ```json fence
//  2. the body of any other fence that opens with '{'
//  3. the span from the first '{' to the last '}'
//
// A candidate is accepted when it decodes and carries insight_summary or
// detailed_analysis. Confidence is clamped to [0, 1] and defaults to 0.5 when missing.
//
// Parsing is total. When no candidate decodes, the answer wraps the raw text with
// Fallback set and confidence 0.5:
//
//	answer := termination.NewParser().Parse(completion.Content)
//	if answer.Fallback {
//	    // store it, but don't announce it
//	}
//
// [Guidance] renders the paragraph of the system prompt that asks for this format,
// including the JSON Schema of the record.
package termination
