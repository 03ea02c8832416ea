package guard

import (
	"fmt"

	analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"
)

// Reason is why a statement was rejected.
type Reason int

const (
	ReasonWriteNotAllowed Reason = iota + 1
	ReasonWildcardProjection
	ReasonMissingLimitOnLargeColumn
	ReasonLimitTooHigh
	ReasonMissingLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonWriteNotAllowed:
		return "WriteNotAllowed"
	case ReasonWildcardProjection:
		return "WildcardProjection"
	case ReasonMissingLimitOnLargeColumn:
		return fmt.Sprintf(
			"queries selecting %s must include LIMIT (max %d) because the column holds large payloads%s",
			r.Column, r.Ceiling, r.unusableClause(),
		)
	case ReasonLimitTooHigh:
		bound := r.Clause
		if bound == "" {
			bound = fmt.Sprintf("LIMIT %d", r.Limit)
		}
		if r.Column != "" {
			return fmt.Sprintf(
				"%s is too high for queries selecting %s; use LIMIT %d or less",
				bound, r.Column, r.Ceiling,
			)
		}
		return fmt.Sprintf("%s is too high; use LIMIT %d or less", bound, r.Ceiling)
	case ReasonMissingLimit:
		return "query must include a LIMIT clause; aggregate where possible and add LIMIT" + r.unusableClause()
	default:
		return "query rejected"
	}
}

func (r *Rejection) unusableClause() string {
	if r.Clause == "" {
		return ""
	}
	return fmt.Sprintf(" (%s does not bound the rows; use an integer literal)", r.Clause)
}

// Unwrap makes every rejection match analyst.ErrSafetyViolation.
func (r *Rejection) Unwrap() error {
	return analyst.ErrSafetyViolation
}

// ToolError converts the rejection into the descriptor returned to the model.
func (r *Rejection) ToolError() *analyst.ToolError {
	return analyst.NewToolError(analyst.KindSafetyViolation, r.Reason.String(), r)
}
