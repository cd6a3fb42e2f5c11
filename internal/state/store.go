// Package state persists per-conversation bot state between turns.
package state

import (
	"context"
	"errors"
	"sync"

	"github.com/capitalize-ai/chopibot/internal/model"
)

// ErrConflict is returned by Save when the stored revision moved since Load.
var ErrConflict = errors.New("state: revision conflict")

// Store loads and commits conversation state. Load returns the zero state and
// revision 0 for a conversation that was never saved.
type Store interface {
	Load(ctx context.Context, conversationID string) (model.ConversationState, uint64, error)
	Save(ctx context.Context, conversationID string, st model.ConversationState, revision uint64) (uint64, error)
	Name() string
}

type memoryEntry struct {
	state    model.ConversationState
	revision uint64
}

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Name returns the store name.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Load returns the state for a conversation.
func (s *MemoryStore) Load(_ context.Context, conversationID string) (model.ConversationState, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.entries[conversationID]
	return e.state, e.revision, nil
}

// Save commits the state if revision matches the stored one.
func (s *MemoryStore) Save(_ context.Context, conversationID string, st model.ConversationState, revision uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[conversationID]
	if e.revision != revision {
		return 0, ErrConflict
	}
	next := revision + 1
	s.entries[conversationID] = memoryEntry{state: st, revision: next}
	return next, nil
}
