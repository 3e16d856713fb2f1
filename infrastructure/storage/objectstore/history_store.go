// Package objectstore persists conversation histories as one JSON object per
// conversation in a bucket. Cloud backends supply a Client.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
)

const objectSuffix = ".json"

// ErrObjectNotFound is returned by a Client when an object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Client defines the object operations the history store needs.
// This allows for in-memory implementations in testing.
type Client interface {
	// Upload writes content to an object, replacing it.
	Upload(ctx context.Context, bucket, object string, content io.Reader) error

	// Download opens an object for reading.
	Download(ctx context.Context, bucket, object string) (io.ReadCloser, error)

	// Delete deletes an object.
	Delete(ctx context.Context, bucket, object string) error

	// List returns the names of the objects under prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Config holds configuration for the object history store.
type Config struct {
	// Client is the object storage client to use.
	Client Client

	// Bucket is the bucket or container name.
	Bucket string

	// Prefix is an optional prefix for all objects.
	Prefix string
}

// HistoryStore implements conversation.HistoryStore with one JSON object per
// conversation.
type HistoryStore struct {
	client Client
	bucket string
	prefix string
}

// NewHistoryStore creates a new object history store.
func NewHistoryStore(cfg Config) (*HistoryStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("object storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	return &HistoryStore{
		client: cfg.Client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Save stores the full history, replacing any previous version.
func (s *HistoryStore) Save(ctx context.Context, id string, m *conversation.Memory) error {
	if id == "" {
		return conversation.ErrConversationNotFound
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := s.client.Upload(ctx, s.bucket, s.objectName(id), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload history: %w", err)
	}
	return nil
}

// Load retrieves a history.
func (s *HistoryStore) Load(ctx context.Context, id string) (*conversation.Memory, error) {
	reader, err := s.client.Download(ctx, s.bucket, s.objectName(id))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, conversation.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to download history: %w", err)
	}
	defer reader.Close()

	var m conversation.Memory
	if err := json.NewDecoder(reader).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode history %s: %w", id, err)
	}
	return &m, nil
}

// Delete removes a history.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, s.bucket, s.objectName(id)); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return conversation.ErrConversationNotFound
		}
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// List returns the stored conversation IDs in lexical order.
func (s *HistoryStore) List(ctx context.Context) ([]string, error) {
	dir := s.dir()
	names, err := s.client.List(ctx, s.bucket, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		rest := strings.TrimPrefix(name, dir)
		if strings.Contains(rest, "/") || !strings.HasSuffix(rest, objectSuffix) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(rest, objectSuffix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the client when it holds resources.
func (s *HistoryStore) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *HistoryStore) dir() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

// objectName escapes the ID so it stays a single path segment.
func (s *HistoryStore) objectName(id string) string {
	return s.dir() + url.PathEscape(id) + objectSuffix
}

var _ conversation.HistoryStore = (*HistoryStore)(nil)
