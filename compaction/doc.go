// Package compaction bounds the conversation transcript so it stays inside the model's
// context window.
//
// [Pruner.Prune] runs after every tool exchange. [Pruner.PruneAggressive] is the recovery
// path after a context overflow and keeps only the question and the last exchange.
//
// Both preserve the pairing invariant: a pruned conversation never contains an
// AssistantTurn with tool calls that is not immediately followed by its ToolResultTurn.
package compaction
