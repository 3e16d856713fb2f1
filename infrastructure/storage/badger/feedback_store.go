package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
)

// FeedbackStore is a BadgerDB-backed implementation of feedback.Store.
// Exemplars live under {prefix}feedback:{id} as JSON records.
type FeedbackStore struct {
	db        *badger.DB
	keyPrefix string
	embedder  feedback.Embedder
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
	closeOnce sync.Once
}

type record struct {
	Feedback feedback.Feedback `json:"feedback"`
	Vector   []float32         `json:"vector,omitempty"`
}

// NewFeedbackStore opens the database and creates a feedback store.
func NewFeedbackStore(cfg Config, embedder feedback.Embedder, opts ...Option) (*FeedbackStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := NewFeedbackStoreFromDB(db, cfg.KeyPrefix, embedder)
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// NewFeedbackStoreFromDB creates a feedback store from an existing database.
func NewFeedbackStoreFromDB(db *badger.DB, keyPrefix string, embedder feedback.Embedder) *FeedbackStore {
	return &FeedbackStore{
		db:        db,
		keyPrefix: keyPrefix,
		embedder:  embedder,
		gcStop:    make(chan struct{}),
	}
}

func (s *FeedbackStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcStop:
				return
			case <-ticker.C:
				for s.db.RunValueLogGC(discardRatio) == nil {
				}
			}
		}
	}()
}

func (s *FeedbackStore) prefix() []byte {
	return []byte(s.keyPrefix + "feedback:")
}

func (s *FeedbackStore) key(id string) []byte {
	return []byte(s.keyPrefix + "feedback:" + id)
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
	data, err := json.Marshal(record{Feedback: fb, Vector: vec})
	if err != nil {
		return feedback.Feedback{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(fb.ID), data)
	})
	if err != nil {
		return feedback.Feedback{}, err
	}
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

	var candidates []embedding.Candidate
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = s.prefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				return err
			}
			if !filter.Match(r.Feedback) {
				continue
			}
			candidates = append(candidates, embedding.Candidate{Feedback: r.Feedback, Vector: r.Vector})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

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

	var r record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return feedback.Feedback{}, feedback.ErrNotFound
	}
	if err != nil {
		return feedback.Feedback{}, err
	}
	return r.Feedback, nil
}

// Delete removes an exemplar by ID.
func (s *FeedbackStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return feedback.ErrInvalidID
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(s.key(id)); err != nil {
			return err
		}
		return txn.Delete(s.key(id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return feedback.ErrNotFound
	}
	return err
}

// Count returns the number of stored exemplars.
func (s *FeedbackStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = s.prefix()

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close stops background GC and closes the database.
func (s *FeedbackStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.gcStop)
		s.gcWg.Wait()
		err = s.db.Close()
	})
	return err
}

// DB returns the underlying BadgerDB database.
func (s *FeedbackStore) DB() *badger.DB {
	return s.db
}
