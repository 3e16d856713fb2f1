package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

// HistoryStore is an in-memory conversation.HistoryStore. Histories are
// cloned on the way in and out so callers never share state with the store.
type HistoryStore struct {
	histories map[string]*conversation.Memory
	mu        sync.RWMutex
}

// NewHistoryStore creates an empty history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{histories: make(map[string]*conversation.Memory)}
}

// Save stores a history.
func (s *HistoryStore) Save(ctx context.Context, id string, m *conversation.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return conversation.ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[id] = m.Clone()
	return nil
}

// Load retrieves a history.
func (s *HistoryStore) Load(ctx context.Context, id string) (*conversation.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.histories[id]
	if !ok {
		return nil, conversation.ErrConversationNotFound
	}
	return m.Clone(), nil
}

// Delete removes a history.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[id]; !ok {
		return conversation.ErrConversationNotFound
	}
	delete(s.histories, id)
	return nil
}

// List returns the stored conversation IDs in lexical order.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.histories))
	for id := range s.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
