// Package agent provides the turn orchestrator.
//
// Contains the outcome types returned for each turn.
package agent

import (
	"github.com/richinex/murmur/conversation"
	"github.com/richinex/murmur/model"
)

// ToolCall is an alias for model.ToolCall for tool call metadata.
type ToolCall = model.ToolCall

// TurnOutcome indicates how a turn ended.
type TurnOutcome int

const (
	// TurnFinal means the model produced a final answer.
	TurnFinal TurnOutcome = iota
	// TurnToolLoopExceeded means the model asked for another tool round
	// after MaxToolRounds was reached.
	TurnToolLoopExceeded
)

// String returns the outcome name.
func (o TurnOutcome) String() string {
	switch o {
	case TurnFinal:
		return "final"
	case TurnToolLoopExceeded:
		return "tool_loop_exceeded"
	default:
		return "unknown"
	}
}

// TurnResult describes a completed turn.
type TurnResult struct {
	Outcome TurnOutcome
	// Content is the final answer, or the text of the last model step when
	// the tool loop was cut off.
	Content string
	// Rounds is the number of tool rounds dispatched.
	Rounds    int
	ToolCalls []ToolCall
	// ModelCalls is the number of model steps in this turn.
	ModelCalls      int
	ExecutionTimeMs uint64
	// Usage is the cumulative conversation usage after the turn.
	Usage conversation.Usage
}

// IsFinal checks if the turn reached a final answer.
func (r TurnResult) IsFinal() bool {
	return r.Outcome == TurnFinal
}
