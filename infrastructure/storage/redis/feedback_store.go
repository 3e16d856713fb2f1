package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
	"github.com/redis/go-redis/v9"
)

// FeedbackStore is a Redis-backed implementation of feedback.Store.
//
// Each exemplar is a JSON string at {prefix}feedback:{id}. Every tag owns a
// set of IDs at {prefix}feedback:tag:{tag}, so a tag filter is one SINTER.
type FeedbackStore struct {
	client    *redis.Client
	keyPrefix string
	embedder  feedback.Embedder
}

type record struct {
	Feedback feedback.Feedback `json:"feedback"`
	Vector   []float32         `json:"vector,omitempty"`
}

// NewFeedbackStore connects to Redis and creates a feedback store.
func NewFeedbackStore(cfg Config, embedder feedback.Embedder, opts ...ConfigOption) (*FeedbackStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts, err := cfg.clientOptions()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(clientOpts)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(feedback.ErrConnectionFailed, err)
	}

	return NewFeedbackStoreFromClient(client, cfg.KeyPrefix, embedder), nil
}

// NewFeedbackStoreFromClient creates a feedback store from an existing client.
func NewFeedbackStoreFromClient(client *redis.Client, keyPrefix string, embedder feedback.Embedder) *FeedbackStore {
	return &FeedbackStore{
		client:    client,
		keyPrefix: keyPrefix,
		embedder:  embedder,
	}
}

func (s *FeedbackStore) recordKey(id string) string {
	return s.keyPrefix + "feedback:" + id
}

func (s *FeedbackStore) indexKey() string {
	return s.keyPrefix + "feedback:ids"
}

func (s *FeedbackStore) tagKey(tag string) string {
	return s.keyPrefix + "feedback:tag:" + tag
}

// Add stores an exemplar and indexes its tags.
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

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(fb.ID), data, 0)
		pipe.SAdd(ctx, s.indexKey(), fb.ID)
		for _, tag := range fb.Tags() {
			pipe.SAdd(ctx, s.tagKey(tag), fb.ID)
		}
		return nil
	})
	if err != nil {
		return feedback.Feedback{}, s.wrapError(err)
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
	if _, err := feedback.FilterFromTags(q.Tags); err != nil {
		return nil, err
	}
	query, err := embedding.EmbedQuery(ctx, s.embedder, q.Text)
	if err != nil {
		return nil, err
	}

	var ids []string
	if len(q.Tags) == 0 {
		ids, err = s.client.SMembers(ctx, s.indexKey()).Result()
	} else {
		keys := make([]string, len(q.Tags))
		for i, tag := range q.Tags {
			keys[i] = s.tagKey(tag)
		}
		ids, err = s.client.SInter(ctx, keys...).Result()
	}
	if err != nil {
		return nil, s.wrapError(err)
	}
	if len(ids) == 0 {
		return []feedback.Feedback{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, s.wrapError(err)
	}

	candidates := make([]embedding.Candidate, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // removed between SINTER and MGET
		}
		var r record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, err
		}
		candidates = append(candidates, embedding.Candidate{Feedback: r.Feedback, Vector: r.Vector})
	}

	return embedding.Rank(query, candidates, q.TopK), nil
}

// Get retrieves an exemplar by ID.
func (s *FeedbackStore) Get(ctx context.Context, id string) (feedback.Feedback, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return feedback.Feedback{}, err
	}
	return r.Feedback, nil
}

func (s *FeedbackStore) load(ctx context.Context, id string) (record, error) {
	if err := ctx.Err(); err != nil {
		return record{}, err
	}
	if id == "" {
		return record{}, feedback.ErrInvalidID
	}

	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return record{}, feedback.ErrNotFound
		}
		return record{}, s.wrapError(err)
	}

	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return record{}, err
	}
	return r, nil
}

// Delete removes an exemplar and its tag index entries.
func (s *FeedbackStore) Delete(ctx context.Context, id string) error {
	r, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.recordKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		for _, tag := range r.Feedback.Tags() {
			pipe.SRem(ctx, s.tagKey(tag), id)
		}
		return nil
	})
	return s.wrapError(err)
}

// Count returns the number of stored exemplars.
func (s *FeedbackStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := s.client.SCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, s.wrapError(err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (s *FeedbackStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client.
func (s *FeedbackStore) Client() *redis.Client {
	return s.client
}

func (s *FeedbackStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, redis.ErrClosed) {
		return errors.Join(feedback.ErrConnectionFailed, err)
	}
	return err
}
