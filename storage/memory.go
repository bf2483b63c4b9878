// Package storage provides in-memory conversation storage.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/richinex/murmur/llm"
)

// InMemoryStorage implements Store using in-memory maps.
// Data is lost when process terminates.
type InMemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string][]llm.ChatMessage
	memories map[string][]MemoryEntry
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		sessions: make(map[string][]llm.ChatMessage),
		memories: make(map[string][]MemoryEntry),
	}
}

// Save saves conversation history for a session.
func (s *InMemoryStorage) Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = copyMessages(history)
	return nil
}

// Load loads conversation history for a session.
// Returns empty slice if session doesn't exist.
func (s *InMemoryStorage) Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return []llm.ChatMessage{}, nil
	}
	return copyMessages(history), nil
}

// Delete deletes conversation history and summaries for a session.
func (s *InMemoryStorage) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.memories, sessionID)
	return nil
}

// ListSessions lists all session IDs in sorted order.
func (s *InMemoryStorage) ListSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.sessions))
	for sessionID := range s.sessions {
		sessions = append(sessions, sessionID)
	}
	sort.Strings(sessions)
	return sessions, nil
}

// Exists checks if a session exists.
func (s *InMemoryStorage) Exists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

// StoreMemory appends a summary entry.
func (s *InMemoryStorage) StoreMemory(ctx context.Context, entry MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.memories[entry.SessionID] = append(s.memories[entry.SessionID], entry)
	return nil
}

// QueryMemories returns the newest entries first.
func (s *InMemoryStorage) QueryMemories(ctx context.Context, sessionID string, memoryType *MemoryType, limit int) ([]MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.memories[sessionID]
	result := []MemoryEntry{}
	for i := len(entries) - 1; i >= 0; i-- {
		if memoryType != nil && entries[i].Type != *memoryType {
			continue
		}
		result = append(result, entries[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// DeleteSessionMemories deletes all memories for a session.
func (s *InMemoryStorage) DeleteSessionMemories(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.memories, sessionID)
	return nil
}

// Close is a no-op.
func (s *InMemoryStorage) Close() error {
	return nil
}

// copyMessages copies the slice and each message's tool calls.
func copyMessages(history []llm.ChatMessage) []llm.ChatMessage {
	copied := make([]llm.ChatMessage, len(history))
	for i, msg := range history {
		if msg.ToolCalls != nil {
			msg.ToolCalls = append([]llm.ToolCall(nil), msg.ToolCalls...)
		}
		copied[i] = msg
	}
	return copied
}

// Verify InMemoryStorage implements Store
var _ Store = (*InMemoryStorage)(nil)
