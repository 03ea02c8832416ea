package analyst

const (
	DefaultIterationsMax = 10
	DefaultQueriesMax    = 8
)

// Budget bounds one run. A fresh Budget is created for every run and discarded when it
// ends; it is never shared between runs.
//
// Exhausting either counter ends the run with [OutcomeBudgetExceeded]:
//
//	b := analyst.NewBudget(12, 5)
//	for !b.Exhausted() {
//	    b.IterationsUsed++
//	    ...
//	}
type Budget struct {
	IterationsUsed int `json:"iterations_used"`
	IterationsMax  int `json:"iterations_max"`
	QueriesUsed    int `json:"queries_used"`
	QueriesMax     int `json:"queries_max"`
}

// NewBudget returns a budget with the given ceilings. Values < 1 fall back to
// DefaultIterationsMax and DefaultQueriesMax.
func NewBudget(iterationsMax, queriesMax int) Budget {
	if iterationsMax < 1 {
		iterationsMax = DefaultIterationsMax
	}
	if queriesMax < 1 {
		queriesMax = DefaultQueriesMax
	}
	return Budget{IterationsMax: iterationsMax, QueriesMax: queriesMax}
}

// IterationsExhausted reports whether another completion call would exceed the ceiling.
func (b Budget) IterationsExhausted() bool {
	return b.IterationsUsed >= b.IterationsMax
}

// QueriesExhausted reports whether another query-class dispatch would exceed the ceiling.
func (b Budget) QueriesExhausted() bool {
	return b.QueriesUsed >= b.QueriesMax
}

// Exhausted reports whether either counter has reached its ceiling.
func (b Budget) Exhausted() bool {
	return b.IterationsExhausted() || b.QueriesExhausted()
}
