// Package azureblob adapts Azure Blob Storage to the object history store.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/objectstore"
)

// Config configures the Azure Blob client. A connection string wins over the
// account name, which authenticates with the default Azure credential chain.
type Config struct {
	// AccountName is the storage account name.
	AccountName string
	// ConnectionString is a full storage connection string.
	ConnectionString string
	// Endpoint overrides the service URL derived from AccountName.
	Endpoint string
}

// Client implements objectstore.Client with the Azure SDK.
type Client struct {
	client *azblob.Client
}

// NewClient creates an Azure Blob client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.AccountName == "" && cfg.ConnectionString == "" {
		return nil, errors.New("account name or connection string is required")
	}

	if cfg.ConnectionString != "" {
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create client from connection string: %w", err)
		}
		return &Client{client: client}, nil
	}

	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default credential: %w", err)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create client with default credential: %w", err)
	}
	return &Client{client: client}, nil
}

// Upload implements objectstore.Client.
func (c *Client) Upload(ctx context.Context, container, name string, content io.Reader) error {
	contentType := "application/json"
	_, err := c.client.UploadStream(ctx, container, name, content, &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	return nil
}

// Download implements objectstore.Client.
func (c *Client) Download(ctx context.Context, container, name string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, objectstore.ErrObjectNotFound
		}
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	return resp.Body, nil
}

// Delete implements objectstore.Client.
func (c *Client) Delete(ctx context.Context, container, name string) error {
	if _, err := c.client.DeleteBlob(ctx, container, name, nil); err != nil {
		if isNotFound(err) {
			return objectstore.ErrObjectNotFound
		}
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// List implements objectstore.Client.
func (c *Client) List(ctx context.Context, container, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var names []string
	pager := c.client.NewListBlobsFlatPager(container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func isNotFound(err error) bool {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return true
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound && respErr.ErrorCode != string(bloberror.ContainerNotFound)
}

var _ objectstore.Client = (*Client)(nil)
