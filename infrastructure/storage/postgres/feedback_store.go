package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedbackStore is a PostgreSQL-backed implementation of feedback.Store.
// Tag filtering runs in SQL; vectors are stored as real[] and ranked in
// process.
type FeedbackStore struct {
	pool     *pgxpool.Pool
	schema   string
	embedder feedback.Embedder
}

// NewFeedbackStore creates a feedback store on an existing pool.
func NewFeedbackStore(pool *pgxpool.Pool, schema string, embedder feedback.Embedder) *FeedbackStore {
	if schema == "" {
		schema = "public"
	}
	return &FeedbackStore{
		pool:     pool,
		schema:   schema,
		embedder: embedder,
	}
}

func (s *FeedbackStore) tableName() string {
	return fmt.Sprintf("%s.feedback", s.schema)
}

// Migrate creates the feedback table and its tag index.
func (s *FeedbackStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			state_name TEXT NOT NULL,
			observation_name TEXT NOT NULL,
			observation_content TEXT NOT NULL,
			action_name TEXT NOT NULL,
			action_content TEXT NOT NULL,
			embedding REAL[],
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS feedback_tags_idx ON %[1]s (state_name, observation_name);
	`, s.tableName())

	_, err := s.pool.Exec(ctx, ddl)
	return s.wrapError(err)
}

// Add stores an exemplar.
func (s *FeedbackStore) Add(ctx context.Context, fb feedback.Feedback) (feedback.Feedback, error) {
	if err := fb.Validate(); err != nil {
		return feedback.Feedback{}, err
	}
	fb = fb.WithDefaults(time.Now())

	vec, err := embedding.EmbedFeedback(ctx, s.embedder, fb)
	if err != nil {
		return feedback.Feedback{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, state_name, observation_name, observation_content, action_name, action_content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query,
		fb.ID,
		fb.StateName,
		fb.ObservationName,
		fb.ObservationContent,
		fb.ActionName,
		fb.ActionContent,
		vec,
		fb.CreatedAt,
	)
	if err != nil {
		return feedback.Feedback{}, s.wrapError(err)
	}
	return fb, nil
}

// searchQuery builds the filtered SELECT for a tag filter.
func (s *FeedbackStore) searchQuery(filter feedback.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.HasState {
		args = append(args, filter.StateName)
		where = append(where, fmt.Sprintf("state_name = $%d", len(args)))
	}
	if filter.HasObservation {
		args = append(args, filter.ObservationName)
		where = append(where, fmt.Sprintf("observation_name = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s`, selectColumns, s.tableName())
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	return query, args
}

const selectColumns = "id, state_name, observation_name, observation_content, action_name, action_content, embedding, created_at"

// Search returns up to q.TopK exemplars carrying every tag in q.Tags.
func (s *FeedbackStore) Search(ctx context.Context, q feedback.Query) ([]feedback.Feedback, error) {
	if q.TopK <= 0 {
		return []feedback.Feedback{}, nil
	}
	filter, err := feedback.FilterFromTags(q.Tags)
	if err != nil {
		return nil, err
	}
	vec, err := embedding.EmbedQuery(ctx, s.embedder, q.Text)
	if err != nil {
		return nil, err
	}

	query, args := s.searchQuery(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()

	var candidates []embedding.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, s.wrapError(err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapError(err)
	}

	return embedding.Rank(vec, candidates, q.TopK), nil
}

// Get retrieves an exemplar by ID.
func (s *FeedbackStore) Get(ctx context.Context, id string) (feedback.Feedback, error) {
	if id == "" {
		return feedback.Feedback{}, feedback.ErrInvalidID
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.tableName())
	c, err := scanCandidate(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return feedback.Feedback{}, feedback.ErrNotFound
		}
		return feedback.Feedback{}, s.wrapError(err)
	}
	return c.Feedback, nil
}

// Delete removes an exemplar by ID.
func (s *FeedbackStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return feedback.ErrInvalidID
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName())
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return s.wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return feedback.ErrNotFound
	}
	return nil
}

// Count returns the number of stored exemplars.
func (s *FeedbackStore) Count(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.tableName())
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, s.wrapError(err)
	}
	return n, nil
}

// Close closes the pool.
func (s *FeedbackStore) Close() error {
	s.pool.Close()
	return nil
}

func scanCandidate(row pgx.Row) (embedding.Candidate, error) {
	var c embedding.Candidate
	fb := &c.Feedback
	err := row.Scan(
		&fb.ID,
		&fb.StateName,
		&fb.ObservationName,
		&fb.ObservationContent,
		&fb.ActionName,
		&fb.ActionContent,
		&c.Vector,
		&fb.CreatedAt,
	)
	if err != nil {
		return embedding.Candidate{}, err
	}
	fb.CreatedAt = fb.CreatedAt.UTC()
	return c, nil
}

// wrapError wraps database errors with domain errors.
func (s *FeedbackStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(feedback.ErrConnectionFailed, err)
}

var _ feedback.Store = (*FeedbackStore)(nil)
