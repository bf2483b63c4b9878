// Summary log storage.
//
// Every compaction leaves an entry behind so the summaries a session went
// through can be inspected after the live history has been replaced.

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MemoryType represents the kind of logged summary.
type MemoryType string

const (
	// MemorySummary is the summary of old chat rounds.
	MemorySummary MemoryType = "summary"
	// MemoryMergedSummary is the merge of accumulated system summaries.
	MemoryMergedSummary MemoryType = "merged_summary"
)

// String returns the string representation of the memory type.
func (m MemoryType) String() string {
	return string(m)
}

// ParseMemoryType parses a string into a MemoryType.
func ParseMemoryType(s string) (MemoryType, error) {
	switch strings.ToLower(s) {
	case "summary":
		return MemorySummary, nil
	case "merged_summary", "merged":
		return MemoryMergedSummary, nil
	default:
		return "", fmt.Errorf("unknown memory type: %s", s)
	}
}

// MemoryEntry is one logged summary.
type MemoryEntry struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Type      MemoryType `json:"memory_type"`
	Content   string     `json:"content"`
	// CreatedAt is a Unix timestamp in nanoseconds, so entries written in
	// the same second keep their order.
	CreatedAt int64 `json:"created_at"`
	// Metadata is optional JSON (empty if none).
	Metadata string `json:"metadata,omitempty"`
}

// NewMemoryEntry creates a new memory entry with defaults.
func NewMemoryEntry(sessionID string, memoryType MemoryType, content string) MemoryEntry {
	return MemoryEntry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Type:      memoryType,
		Content:   content,
		CreatedAt: time.Now().UnixNano(),
	}
}

// WithMetadata sets metadata as JSON string.
func (m MemoryEntry) WithMetadata(metadata string) MemoryEntry {
	m.Metadata = metadata
	return m
}

// Time returns CreatedAt as a time.
func (m MemoryEntry) Time() time.Time {
	return time.Unix(0, m.CreatedAt)
}

// MemoryStorage stores the summary log next to the conversation.
type MemoryStorage interface {
	// StoreMemory stores a memory entry.
	StoreMemory(ctx context.Context, entry MemoryEntry) error

	// QueryMemories returns the newest entries first, optionally filtered by type.
	QueryMemories(ctx context.Context, sessionID string, memoryType *MemoryType, limit int) ([]MemoryEntry, error)

	// DeleteSessionMemories deletes all memories for a session.
	DeleteSessionMemories(ctx context.Context, sessionID string) error
}

// Store is a backend that holds both histories and the summary log.
type Store interface {
	ConversationStorage
	MemoryStorage
	Close() error
}
