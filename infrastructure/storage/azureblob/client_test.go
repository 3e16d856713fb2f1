package azureblob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/objectstore"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/storetest"
)

// azuriteAccount is the well-known development storage account.
const (
	azuriteAccount = "devstoreaccount1"
	azuriteKey     = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error without account or connection string")
	}
	if _, err := NewClient(Config{ConnectionString: "not a connection string"}); err == nil {
		t.Error("expected error for malformed connection string")
	}

	conn := fmt.Sprintf("DefaultEndpointsProtocol=http;AccountName=%s;AccountKey=%s;BlobEndpoint=http://127.0.0.1:10000/%s;",
		azuriteAccount, azuriteKey, azuriteAccount)
	if _, err := NewClient(Config{ConnectionString: conn}); err != nil {
		t.Errorf("NewClient() error = %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"blob missing", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "BlobNotFound"}, true},
		{"bare 404", &azcore.ResponseError{StatusCode: http.StatusNotFound}, true},
		{"container missing", &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: "ContainerNotFound"}, false},
		{"forbidden", &azcore.ResponseError{StatusCode: http.StatusForbidden, ErrorCode: "AuthorizationFailure"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_DownloadMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-error-code", "BlobNotFound")
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><Error><Code>BlobNotFound</Code><Message>The specified blob does not exist.</Message></Error>`))
	}))
	t.Cleanup(srv.Close)

	conn := fmt.Sprintf("DefaultEndpointsProtocol=http;AccountName=%s;AccountKey=%s;BlobEndpoint=%s/%s;",
		azuriteAccount, azuriteKey, srv.URL, azuriteAccount)
	client, err := NewClient(Config{ConnectionString: conn})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx := context.Background()
	if _, err := client.Download(ctx, "histories", "missing.json"); !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Errorf("Download() error = %v, want ErrObjectNotFound", err)
	}
	if err := client.Delete(ctx, "histories", "missing.json"); !errors.Is(err, objectstore.ErrObjectNotFound) {
		t.Errorf("Delete() error = %v, want ErrObjectNotFound", err)
	}
}

// TestClient_Contract runs against Azurite or a real account. The container
// must exist.
func TestClient_Contract(t *testing.T) {
	conn := os.Getenv("AGENTFSM_AZURE_CONNECTION_STRING")
	container := os.Getenv("AGENTFSM_AZURE_CONTAINER")
	if conn == "" || container == "" {
		t.Skip("AGENTFSM_AZURE_CONNECTION_STRING and AGENTFSM_AZURE_CONTAINER not set")
	}

	client, err := NewClient(Config{ConnectionString: conn})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	store, err := objectstore.NewHistoryStore(objectstore.Config{
		Client: client,
		Bucket: container,
		Prefix: fmt.Sprintf("test-%d", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	storetest.HistoryStore(t, store)
}
