// Package conversation holds the live conversation log and its usage counters.
//
// Information Hiding:
// - Storage of the ordered message log
// - Defensive copies on read and replace
// - Usage accounting across model calls
package conversation

import "github.com/richinex/murmur/llm"

// History is the ordered conversation log. It grows by Append and is
// replaced wholesale by compaction. It is not safe for concurrent use;
// a single owner mutates it.
type History struct {
	messages []llm.ChatMessage
}

// NewHistory creates a history seeded with the given messages.
func NewHistory(messages ...llm.ChatMessage) *History {
	h := &History{}
	h.messages = append(h.messages, messages...)
	return h
}

// Append adds messages to the end of the log.
func (h *History) Append(messages ...llm.ChatMessage) {
	h.messages = append(h.messages, messages...)
}

// Messages returns a copy of the log.
func (h *History) Messages() []llm.ChatMessage {
	out := make([]llm.ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// Replace swaps the whole log, as compaction does.
func (h *History) Replace(messages []llm.ChatMessage) {
	h.messages = append([]llm.ChatMessage(nil), messages...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Last returns the most recent message.
func (h *History) Last() (llm.ChatMessage, bool) {
	if len(h.messages) == 0 {
		return llm.ChatMessage{}, false
	}
	return h.messages[len(h.messages)-1], true
}

// Truncate drops messages past n. Used to roll back a failed turn.
func (h *History) Truncate(n int) {
	if n >= 0 && n < len(h.messages) {
		h.messages = h.messages[:n]
	}
}
