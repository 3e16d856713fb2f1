// Package badger provides a BadgerDB-backed feedback store.
package badger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// Config configures the exemplar database.
type Config struct {
	// Dir holds the database files. Ignored when InMemory is set.
	Dir string

	// InMemory keeps exemplars in memory only.
	InMemory bool

	// SyncWrites fsyncs every Add and Delete.
	SyncWrites bool

	// KeyPrefix namespaces the keys of one agent.
	KeyPrefix string

	// GCInterval is the period of value log collection. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the share of stale data that triggers a rewrite.
	GCDiscardRatio float64
}

// Option configures the exemplar database.
type Option func(*Config)

// WithDir sets the data directory.
func WithDir(dir string) Option {
	return func(c *Config) {
		c.Dir = dir
	}
}

// WithInMemory keeps exemplars in memory.
func WithInMemory() Option {
	return func(c *Config) {
		c.InMemory = true
	}
}

// WithSyncWrites enables synchronous writes.
func WithSyncWrites() Option {
	return func(c *Config) {
		c.SyncWrites = true
	}
}

// WithKeyPrefix sets the key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithGC sets the value log collection period and discard ratio.
func WithGC(interval time.Duration, discardRatio float64) Option {
	return func(c *Config) {
		c.GCInterval = interval
		c.GCDiscardRatio = discardRatio
	}
}

// DefaultConfig returns the configuration used by the builder.
func DefaultConfig() Config {
	return Config{
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Exemplar records are small, so a 64MB value log keeps files few without
// holding much garbage between collections.
const valueLogFileSize = 64 << 20

func openDB(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithValueLogFileSize(valueLogFileSize).
		WithLogger(dbLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Join(feedback.ErrConnectionFailed, err)
	}
	return db, nil
}

// dbLogger forwards database warnings and errors to the structured logger.
// Info and debug chatter from compactions is dropped.
type dbLogger struct{}

func (dbLogger) Errorf(format string, args ...any) {
	logging.Error().Add(logging.Backend("badger")).Msg(dbMessage(format, args))
}

func (dbLogger) Warningf(format string, args ...any) {
	logging.Warn().Add(logging.Backend("badger")).Msg(dbMessage(format, args))
}

func (dbLogger) Infof(string, ...any) {}

func (dbLogger) Debugf(string, ...any) {}

func dbMessage(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
