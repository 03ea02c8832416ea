package compaction

import analyst "github.com/IternalEngineering/CNZ-service23-data-analyst-v3"

// DefaultMaxTurns is the window used when none is configured.
const DefaultMaxTurns = 8

// Pruner keeps the turn that started the run plus the most recent turns, never separating
// an AssistantTurn from the ToolResultTurn that answers it.
//
// Example:
//
//	// Keep the question plus the last 8 turns
//	pruner := compaction.NewPruner(8)
//	conv = pruner.Prune(conv)
type Pruner struct {
	maxTurns int
}

// NewPruner creates a Pruner that keeps maxTurns turns after the first UserTurn.
// Panics if maxTurns < 1.
func NewPruner(maxTurns int) *Pruner {
	if maxTurns < 1 {
		panic("compaction: Pruner maxTurns must be >= 1")
	}
	return &Pruner{maxTurns: maxTurns}
}

// MaxTurns returns the window size.
func (p *Pruner) MaxTurns() int {
	return p.maxTurns
}

// Prune returns conv bounded to the first UserTurn plus the last MaxTurns turns. When the
// tail would start on a ToolResultTurn the window grows by one so the AssistantTurn that
// requested it is kept. conv itself is never modified.
func (p *Pruner) Prune(conv analyst.Conversation) analyst.Conversation {
	head, rest := split(conv)
	if len(rest) <= p.maxTurns {
		return join(head, rest)
	}

	start := len(rest) - p.maxTurns
	if _, ok := rest[start].(*analyst.ToolResultTurn); ok {
		start--
	}
	return join(head, rest[start:])
}

// PruneAggressive keeps only the first UserTurn and the last completed exchange (an
// AssistantTurn with tool calls and its ToolResultTurn). Used after the provider reports
// a context overflow.
func (p *Pruner) PruneAggressive(conv analyst.Conversation) analyst.Conversation {
	head, rest := split(conv)
	for i := len(rest) - 1; i > 0; i-- {
		if _, ok := rest[i].(*analyst.ToolResultTurn); !ok {
			continue
		}
		if a, ok := rest[i-1].(*analyst.AssistantTurn); ok && a.HasToolCalls() {
			return join(head, rest[i-1:i+1])
		}
	}
	return join(head, nil)
}

// split separates the first UserTurn from the turns after it. Turns before the first
// UserTurn are dropped; they cannot be answered by anything the model sees.
func split(conv analyst.Conversation) (analyst.Turn, analyst.Conversation) {
	idx := conv.FirstUser()
	if idx < 0 {
		return nil, conv
	}
	return conv[idx], conv[idx+1:]
}

func join(head analyst.Turn, tail analyst.Conversation) analyst.Conversation {
	out := make(analyst.Conversation, 0, len(tail)+1)
	if head != nil {
		out = append(out, head)
	}
	return append(out, tail...)
}
