// Package sqlite persists exemplars and conversation histories in SQLite.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Config configures a SQLite database.
type Config struct {
	// DSN is a file path or a file: URI such as "file:agent.db?mode=rwc".
	DSN string

	// MaxOpenConns caps open connections. In-memory databases are limited
	// to one connection so every query sees the same data.
	MaxOpenConns int

	// AutoMigrate creates missing tables on open.
	AutoMigrate bool

	// JournalMode sets the journal mode, for example WAL.
	JournalMode string

	// BusyTimeout is how long a writer waits for a lock, in milliseconds.
	BusyTimeout int

	// TablePrefix namespaces the tables of one agent.
	TablePrefix string
}

// Option configures a SQLite database.
type Option func(*Config)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(c *Config) {
		c.DSN = dsn
	}
}

// WithTablePrefix sets the table prefix.
func WithTablePrefix(prefix string) Option {
	return func(c *Config) {
		c.TablePrefix = prefix
	}
}

// WithJournalMode sets the journal mode.
func WithJournalMode(mode string) Option {
	return func(c *Config) {
		c.JournalMode = mode
	}
}

// DefaultConfig returns the configuration used by the builder.
func DefaultConfig() Config {
	return Config{
		DSN:          "file:agentfsm.db?mode=rwc",
		MaxOpenConns: 4,
		AutoMigrate:  true,
		JournalMode:  "WAL",
		BusyTimeout:  5000,
	}
}

// ErrMigrationFailed indicates the schema could not be created.
var ErrMigrationFailed = errors.New("sqlite: migration failed")

// openDB opens the database and applies pragmas. Connection failures are
// joined with connErr so callers see their own domain error.
func openDB(cfg Config, connErr error) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, errors.Join(connErr, err)
	}

	maxOpen := cfg.MaxOpenConns
	if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}

	var pragmas []string
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode="+cfg.JournalMode)
	}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Join(connErr, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(connErr, err)
	}
	return db, nil
}
