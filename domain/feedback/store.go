package feedback

import "context"

// Store ranks stored exemplars by similarity to a query.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add stores an exemplar, assigning ID and CreatedAt when empty.
	Add(ctx context.Context, fb Feedback) (Feedback, error)

	// Search returns up to q.TopK exemplars carrying every tag in q.Tags,
	// most similar first.
	Search(ctx context.Context, q Query) ([]Feedback, error)

	// Get retrieves an exemplar by ID.
	Get(ctx context.Context, id string) (Feedback, error)

	// Delete removes an exemplar by ID.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored exemplars.
	Count(ctx context.Context) (int64, error)
}

// Embedder turns text into a dense vector for similarity ranking.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
