package conversation

import "context"

// HistoryStore persists conversation histories by ID.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Save stores the full history, replacing any previous version.
	Save(ctx context.Context, id string, m *Memory) error

	// Load retrieves a history.
	Load(ctx context.Context, id string) (*Memory, error)

	// Delete removes a history.
	Delete(ctx context.Context, id string) error

	// List returns the stored conversation IDs in lexical order.
	List(ctx context.Context) ([]string, error)
}
