package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/storetest"
)

func TestHistoryStore_Contract(t *testing.T) {
	t.Parallel()

	store, err := NewHistoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewHistoryStore() error = %v", err)
	}
	storetest.HistoryStore(t, store)
}

func TestNewHistoryStore(t *testing.T) {
	t.Parallel()

	t.Run("creates directory if not exists", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "new", "nested")
		if _, err := NewHistoryStore(dir); err != nil {
			t.Fatalf("NewHistoryStore() error = %v", err)
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("directory not created: %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		t.Parallel()

		if _, err := NewHistoryStore(""); err == nil {
			t.Error("expected error for empty path")
		}
	})
}

func TestHistoryStore_EscapesIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, _ := NewHistoryStore(dir)
	ctx := context.Background()

	id := "../tenant/a b"
	m := &conversation.Memory{}
	m.Append(conversation.Step{StateName: "greet"})
	if err := store.Save(ctx, id, m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want 1", len(entries))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "tenant")); !os.IsNotExist(err) {
		t.Error("history escaped the store directory")
	}

	ids, err := store.List(ctx)
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Errorf("List() = %v, %v; want [%s]", ids, err, id)
	}
	loaded, err := store.Load(ctx, id)
	if err != nil || loaded.Steps[0].StateName != "greet" {
		t.Errorf("Load() = %+v, %v", loaded, err)
	}
}

func TestHistoryStore_IgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, _ := NewHistoryStore(dir)
	for _, name := range []string{"notes.txt", ".history-123", "bad%zz.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.json"), 0750); err != nil {
		t.Fatal(err)
	}

	ids, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() = %v, want none", ids)
	}
}

func TestHistoryStore_CorruptFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, _ := NewHistoryStore(dir)
	if err := os.WriteFile(filepath.Join(dir, "c1.json"), []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), "c1"); err == nil {
		t.Error("expected decode error")
	}
}
