package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/storetest"
)

func TestFeedbackStore_Conformance(t *testing.T) {
	t.Parallel()

	storetest.FeedbackStore(t, NewFeedbackStore(embedding.NewHashingEmbedder(0)))
}

func TestFeedbackStore_NilEmbedder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewFeedbackStore(nil)
	if _, err := s.Add(ctx, feedback.Feedback{ObservationName: "a", ActionName: "b"}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	results, err := s.Search(ctx, feedback.Query{Text: "anything", TopK: 5})
	if err != nil || len(results) != 1 {
		t.Errorf("Search() = %v, %v", results, err)
	}
}

func TestFeedbackStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewFeedbackStore(nil)
	if _, err := s.Search(ctx, feedback.Query{TopK: 1}); !errors.Is(err, context.Canceled) {
		t.Errorf("Search() error = %v, want context.Canceled", err)
	}
	if err := s.Delete(context.Background(), ""); !errors.Is(err, feedback.ErrInvalidID) {
		t.Errorf("Delete(\"\") error = %v, want ErrInvalidID", err)
	}
}
