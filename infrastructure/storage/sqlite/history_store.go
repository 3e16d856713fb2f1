package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

// HistoryStore is a SQLite-backed implementation of conversation.HistoryStore.
// Each conversation is one row holding the JSON-encoded history.
type HistoryStore struct {
	db    *sql.DB
	table string
}

// NewHistoryStore opens the database and creates a history store.
func NewHistoryStore(cfg Config, opts ...Option) (*HistoryStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg, conversation.ErrConnectionFailed)
	if err != nil {
		return nil, err
	}

	s := &HistoryStore{db: db, table: cfg.TablePrefix + "conversations"}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *HistoryStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS ` + s.table + ` (
			id TEXT PRIMARY KEY,
			steps INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
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
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+s.table+` (id, steps, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET steps = excluded.steps, data = excluded.data, updated_at = excluded.updated_at`,
		id, m.Len(), data, time.Now().Unix(),
	)
	return err
}

// Load retrieves a history.
func (s *HistoryStore) Load(ctx context.Context, id string) (*conversation.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM `+s.table+` WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	var m conversation.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete removes a history.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
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
		return conversation.ErrConversationNotFound
	}
	return nil
}

// List returns the stored conversation IDs in lexical order.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM `+s.table+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the database connection.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}
