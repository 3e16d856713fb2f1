// Package gcs adapts Google Cloud Storage to the object history store.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/objectstore"
)

// StorageClient implements objectstore.Client with the Cloud Storage SDK.
type StorageClient struct {
	client *storage.Client
}

// NewStorageClient creates a Cloud Storage client using application default
// credentials. A non-empty endpoint is treated as an emulator and used
// without authentication.
func NewStorageClient(ctx context.Context, endpoint string) (*StorageClient, error) {
	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Join(conversation.ErrConnectionFailed, err)
	}
	return &StorageClient{client: client}, nil
}

// Upload implements objectstore.Client.
func (c *StorageClient) Upload(ctx context.Context, bucket, object string, content io.Reader) error {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := io.Copy(w, content); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", object, err)
	}
	return nil
}

// Download implements objectstore.Client.
func (c *StorageClient) Download(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, objectstore.ErrObjectNotFound
	}
	return r, err
}

// Delete implements objectstore.Client.
func (c *StorageClient) Delete(ctx context.Context, bucket, object string) error {
	err := c.client.Bucket(bucket).Object(object).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return objectstore.ErrObjectNotFound
	}
	return err
}

// List implements objectstore.Client.
func (c *StorageClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
}

// Close closes the underlying client.
func (c *StorageClient) Close() error {
	return c.client.Close()
}

var _ objectstore.Client = (*StorageClient)(nil)
