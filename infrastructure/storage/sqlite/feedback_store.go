package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
)

// FeedbackStore is a SQLite-backed implementation of feedback.Store.
// Tags are stored as state and observation columns; ranking happens in
// process over the filtered rows.
type FeedbackStore struct {
	db       *sql.DB
	table    string
	embedder feedback.Embedder
}

// NewFeedbackStore opens the database and creates a feedback store.
func NewFeedbackStore(cfg Config, embedder feedback.Embedder, opts ...Option) (*FeedbackStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg, feedback.ErrConnectionFailed)
	if err != nil {
		return nil, err
	}

	s := &FeedbackStore{db: db, table: cfg.TablePrefix + "feedback", embedder: embedder}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewFeedbackStoreFromDB creates a feedback store from an existing connection.
func NewFeedbackStoreFromDB(db *sql.DB, embedder feedback.Embedder) (*FeedbackStore, error) {
	s := &FeedbackStore{db: db, table: "feedback", embedder: embedder}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FeedbackStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id TEXT PRIMARY KEY,
			state_name TEXT NOT NULL,
			observation_name TEXT NOT NULL,
			observation_content TEXT NOT NULL,
			action_name TEXT NOT NULL,
			action_content TEXT NOT NULL,
			embedding TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_` + s.table + `_tags ON ` + s.table + `(state_name, observation_name);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
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
	var encoded sql.NullString
	if vec != nil {
		data, err := json.Marshal(vec)
		if err != nil {
			return feedback.Feedback{}, err
		}
		encoded = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (id, state_name, observation_name, observation_content, action_name, action_content, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ID, fb.StateName, fb.ObservationName, fb.ObservationContent, fb.ActionName, fb.ActionContent,
		encoded, fb.CreatedAt.UnixNano(),
	)
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

	var (
		where []string
		args  []any
	)
	if filter.HasState {
		where = append(where, "state_name = ?")
		args = append(args, filter.StateName)
	}
	if filter.HasObservation {
		where = append(where, "observation_name = ?")
		args = append(args, filter.ObservationName)
	}
	stmt := `SELECT id, state_name, observation_name, observation_content, action_name, action_content, embedding, created_at FROM ` + s.table
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []embedding.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
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

	row := s.db.QueryRowContext(ctx,
		`SELECT id, state_name, observation_name, observation_content, action_name, action_content, embedding, created_at
		 FROM `+s.table+` WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Feedback{}, feedback.ErrNotFound
	}
	if err != nil {
		return feedback.Feedback{}, err
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

	result, err := s.db.ExecContext(ctx, `DELETE FROM `+s.table+` WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return feedback.ErrNotFound
	}
	return nil
}

// Count returns the number of stored exemplars.
func (s *FeedbackStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *FeedbackStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row scanner) (embedding.Candidate, error) {
	var (
		fb        feedback.Feedback
		encoded   sql.NullString
		createdAt int64
	)
	if err := row.Scan(&fb.ID, &fb.StateName, &fb.ObservationName, &fb.ObservationContent,
		&fb.ActionName, &fb.ActionContent, &encoded, &createdAt); err != nil {
		return embedding.Candidate{}, err
	}
	fb.CreatedAt = time.Unix(0, createdAt).UTC()

	c := embedding.Candidate{Feedback: fb}
	if encoded.Valid {
		if err := json.Unmarshal([]byte(encoded.String), &c.Vector); err != nil {
			return embedding.Candidate{}, err
		}
	}
	return c, nil
}
