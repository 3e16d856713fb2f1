// Package filesystem provides a directory-backed conversation history store.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

const fileSuffix = ".json"

// HistoryStore implements conversation.HistoryStore with one JSON file per
// conversation. Writes go through a temporary file and a rename, so a
// reader never sees a partial history.
type HistoryStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewHistoryStore creates a history store rooted at basePath, creating the
// directory when needed.
func NewHistoryStore(basePath string) (*HistoryStore, error) {
	if basePath == "" {
		return nil, errors.New("history directory is required")
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return &HistoryStore{basePath: basePath}, nil
}

// Save stores the full history, replacing any previous version.
func (s *HistoryStore) Save(ctx context.Context, id string, m *conversation.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return conversation.ErrConversationNotFound
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, ".history-*")
	if err != nil {
		return fmt.Errorf("failed to create history file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()           // #nosec G104 -- best-effort cleanup in error path
		os.Remove(tmp.Name()) // #nosec G104 -- best-effort cleanup in error path
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) // #nosec G104 -- best-effort cleanup in error path
		return fmt.Errorf("failed to close history file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(id)); err != nil {
		os.Remove(tmp.Name()) // #nosec G104 -- best-effort cleanup in error path
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}

// Load retrieves a history.
func (s *HistoryStore) Load(ctx context.Context, id string) (*conversation.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(s.path(id))
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, conversation.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var m conversation.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %w", id, err)
	}
	return &m, nil
}

// Delete removes a history.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return conversation.ErrConversationNotFound
		}
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// List returns the stored conversation IDs in lexical order.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries, err := os.ReadDir(s.basePath)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// path maps an ID to its file. Escaping keeps separators out of file names.
func (s *HistoryStore) path(id string) string {
	return filepath.Join(s.basePath, url.PathEscape(id)+fileSuffix)
}

var _ conversation.HistoryStore = (*HistoryStore)(nil)
