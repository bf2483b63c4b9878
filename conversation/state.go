package conversation

import "github.com/richinex/murmur/llm"

// Usage holds cumulative token counters. Reporting only.
type Usage struct {
	PromptCacheHitTokens  uint64
	PromptCacheMissTokens uint64
	PromptTokens          uint64
	CompletionTokens      uint64
	ModelCalls            int
}

// State is the conversation owned by one orchestrator: the log, the prompt
// size reported by the latest model call, and cumulative usage.
type State struct {
	History *History

	// LatestPromptTokens is the prompt size of the most recent model
	// response. It is overwritten on every call and drives compaction.
	LatestPromptTokens int

	Usage Usage
}

// NewState creates a state seeded with messages.
func NewState(messages ...llm.ChatMessage) *State {
	return &State{History: NewHistory(messages...)}
}

// RecordUsage applies the usage reported by one model call.
// A nil usage leaves every counter untouched.
func (s *State) RecordUsage(u *llm.TokenUsage) {
	s.Usage.ModelCalls++
	if u == nil {
		return
	}
	s.LatestPromptTokens = int(u.PromptTokens)
	s.Usage.PromptCacheHitTokens += uint64(u.PromptCacheHitTokens)
	s.Usage.PromptCacheMissTokens += uint64(u.PromptCacheMissTokens)
	s.Usage.PromptTokens += uint64(u.PromptTokens)
	s.Usage.CompletionTokens += uint64(u.CompletionTokens)
}
