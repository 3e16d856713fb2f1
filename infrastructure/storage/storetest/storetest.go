// Package storetest holds behavioral checks shared by every feedback and
// history store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
)

// FeedbackStore exercises a fresh, empty feedback store. The store must use
// an embedder that places texts with shared words closer than unrelated ones,
// such as embedding.NewHashingEmbedder.
func FeedbackStore(t *testing.T, s feedback.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []feedback.Feedback{
		{
			StateName: "greeting", ObservationName: "send_message", ObservationContent: "where is my order",
			ActionName: "lookup_order", ActionContent: `{"order_id":"1"}`, CreatedAt: base,
		},
		{
			StateName: "greeting", ObservationName: "send_message", ObservationContent: "cancel my subscription",
			ActionName: "cancel", ActionContent: `{}`, CreatedAt: base.Add(time.Minute),
		},
		{
			StateName: "resolve", ObservationName: "send_message", ObservationContent: "where is my order now",
			ActionName: "lookup_order", ActionContent: `{}`, CreatedAt: base.Add(2 * time.Minute),
		},
		{
			StateName: "greeting", ObservationName: "lookup_order", ObservationContent: "shipped",
			ActionName: "send_message", ActionContent: `{"message":"It shipped."}`, CreatedAt: base.Add(3 * time.Minute),
		},
	}

	ids := make([]string, len(seed))
	for i, fb := range seed {
		stored, err := s.Add(ctx, fb)
		if err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
		if stored.ID == "" {
			t.Fatalf("Add(%d) did not assign an ID", i)
		}
		ids[i] = stored.ID
	}

	if _, err := s.Add(ctx, feedback.Feedback{StateName: "x"}); !errors.Is(err, feedback.ErrInvalidFeedback) {
		t.Errorf("Add(invalid) error = %v, want ErrInvalidFeedback", err)
	}

	count, err := s.Count(ctx)
	if err != nil || count != int64(len(seed)) {
		t.Errorf("Count() = %d, %v, want %d", count, err, len(seed))
	}

	got, err := s.Get(ctx, ids[0])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ActionName != "lookup_order" || got.ObservationContent != "where is my order" || !got.CreatedAt.Equal(base) {
		t.Errorf("Get() = %+v", got)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, feedback.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	t.Run("tags restrict results", func(t *testing.T) {
		results, err := s.Search(ctx, feedback.Query{
			Text: "where is my order",
			Tags: []string{feedback.StateTag("greeting"), feedback.ObservationTag("send_message")},
			TopK: 10,
		})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Search() returned %d results, want 2: %+v", len(results), results)
		}
		for _, r := range results {
			if r.StateName != "greeting" || r.ObservationName != "send_message" {
				t.Errorf("result %+v does not carry the query tags", r)
			}
		}
		if results[0].ActionName != "lookup_order" {
			t.Errorf("most similar result = %s, want lookup_order", results[0].ActionName)
		}
	})

	t.Run("observation tag only", func(t *testing.T) {
		results, err := s.Search(ctx, feedback.Query{Tags: []string{feedback.ObservationTag("lookup_order")}, TopK: 10})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 1 || results[0].ActionName != "send_message" {
			t.Errorf("Search() = %+v", results)
		}
	})

	t.Run("top k limits and recency breaks ties", func(t *testing.T) {
		results, err := s.Search(ctx, feedback.Query{TopK: 2})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Search() returned %d results, want 2", len(results))
		}
		if results[0].ID != ids[3] || results[1].ID != ids[2] {
			t.Errorf("Search() without text should be newest first, got %s, %s", results[0].ID, results[1].ID)
		}
	})

	t.Run("zero top k", func(t *testing.T) {
		results, err := s.Search(ctx, feedback.Query{Text: "order", TopK: 0})
		if err != nil || len(results) != 0 {
			t.Errorf("Search(TopK=0) = %v, %v", results, err)
		}
	})

	t.Run("invalid tag", func(t *testing.T) {
		if _, err := s.Search(ctx, feedback.Query{Tags: []string{"topic:x"}, TopK: 1}); !errors.Is(err, feedback.ErrInvalidTag) {
			t.Errorf("Search(bad tag) error = %v, want ErrInvalidTag", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, ids[1]); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, ids[1]); !errors.Is(err, feedback.ErrNotFound) {
			t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, ids[1]); !errors.Is(err, feedback.ErrNotFound) {
			t.Errorf("Delete(deleted) error = %v, want ErrNotFound", err)
		}
		count, _ := s.Count(ctx)
		if count != int64(len(seed)-1) {
			t.Errorf("Count() after delete = %d", count)
		}
	})
}

// HistoryStore exercises a fresh, empty history store.
func HistoryStore(t *testing.T, s conversation.HistoryStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "c1"); !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrConversationNotFound", err)
	}

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	m := &conversation.Memory{}
	m.Append(conversation.Step{
		StateName: "greeting",
		Actions: []conversation.Action{{
			Name:      "send_message",
			Arguments: map[string]any{"message": "hi"},
			Result:    map[string]any{"user_input": "where is my order"},
		}},
		Timestamp: &ts,
	})

	if err := s.Save(ctx, "c1", m); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "c0", &conversation.Memory{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := s.Load(ctx, "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != 1 || loaded.Steps[0].Actions[0].Result["user_input"] != "where is my order" {
		t.Errorf("Load() = %+v", loaded)
	}
	if loaded.Steps[0].Timestamp == nil || !loaded.Steps[0].Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", loaded.Steps[0].Timestamp, ts)
	}

	m.Append(conversation.Step{StateName: "resolve"})
	if err := s.Save(ctx, "c1", m); err != nil {
		t.Fatalf("Save(overwrite) error = %v", err)
	}
	loaded, _ = s.Load(ctx, "c1")
	if loaded.Len() != 2 {
		t.Errorf("Load() after overwrite has %d steps, want 2", loaded.Len())
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "c0" || ids[1] != "c1" {
		t.Errorf("List() = %v, want [c0 c1]", ids)
	}

	if err := s.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "c1"); !errors.Is(err, conversation.ErrConversationNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrConversationNotFound", err)
	}
}
