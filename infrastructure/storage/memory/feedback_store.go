package memory

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
)

// FeedbackStore is an in-memory feedback.Store ranking by cosine similarity.
type FeedbackStore struct {
	embedder feedback.Embedder
	items    map[string]embedding.Candidate
	mu       sync.RWMutex
}

// NewFeedbackStore creates a store. A nil embedder ranks by recency only.
func NewFeedbackStore(embedder feedback.Embedder) *FeedbackStore {
	return &FeedbackStore{
		embedder: embedder,
		items:    make(map[string]embedding.Candidate),
	}
}

// Add stores an exemplar.
func (s *FeedbackStore) Add(ctx context.Context, fb feedback.Feedback) (feedback.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return feedback.Feedback{}, err
	}
	if err := fb.Validate(); err != nil {
		return feedback.Feedback{}, err
	}
	fb = fb.WithDefaults(time.Now())

	vec, err := embedding.EmbedFeedback(ctx, s.embedder, fb)
	if err != nil {
		return feedback.Feedback{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[fb.ID] = embedding.Candidate{Feedback: fb, Vector: vec}
	return fb, nil
}

// Search returns up to q.TopK exemplars carrying every tag in q.Tags.
func (s *FeedbackStore) Search(ctx context.Context, q feedback.Query) ([]feedback.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.TopK <= 0 {
		return []feedback.Feedback{}, nil
	}
	filter, err := feedback.FilterFromTags(q.Tags)
	if err != nil {
		return nil, err
	}
	query, err := embedding.EmbedQuery(ctx, s.embedder, q.Text)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	candidates := make([]embedding.Candidate, 0, len(s.items))
	for _, c := range s.items {
		if filter.Match(c.Feedback) {
			candidates = append(candidates, c)
		}
	}
	s.mu.RUnlock()

	return embedding.Rank(query, candidates, q.TopK), nil
}

// Get retrieves an exemplar by ID.
func (s *FeedbackStore) Get(ctx context.Context, id string) (feedback.Feedback, error) {
	if err := ctx.Err(); err != nil {
		return feedback.Feedback{}, err
	}
	if id == "" {
		return feedback.Feedback{}, feedback.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return feedback.Feedback{}, feedback.ErrNotFound
	}
	return c.Feedback, nil
}

// Delete removes an exemplar by ID.
func (s *FeedbackStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return feedback.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return feedback.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// Count returns the number of stored exemplars.
func (s *FeedbackStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items)), nil
}
