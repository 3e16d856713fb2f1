package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
	agentredis "github.com/felixgeelhaar/agent-fsm/infrastructure/storage/redis"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/storetest"
)

func newTestStore(t *testing.T) (*agentredis.FeedbackStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	store, err := agentredis.NewFeedbackStore(
		agentredis.DefaultConfig(),
		embedding.NewHashingEmbedder(0),
		agentredis.WithAddress(mr.Addr()),
		agentredis.WithKeyPrefix("test:"),
	)
	if err != nil {
		t.Fatalf("NewFeedbackStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestFeedbackStore_Conformance(t *testing.T) {
	store, _ := newTestStore(t)
	storetest.FeedbackStore(t, store)
}

func TestFeedbackStore_TagIndex(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	fb, err := store.Add(ctx, feedback.New("greeting", "user_message", "hi", "send_message", "hello"))
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	members, err := mr.SMembers("test:feedback:tag:" + feedback.StateTag("greeting"))
	if err != nil {
		t.Fatalf("SMembers failed: %v", err)
	}
	if len(members) != 1 || members[0] != fb.ID {
		t.Errorf("state tag members = %v, want [%s]", members, fb.ID)
	}

	if err := store.Delete(ctx, fb.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists("test:feedback:" + fb.ID) {
		t.Error("record key still present after delete")
	}
	if ok, _ := mr.SIsMember("test:feedback:tag:"+feedback.ObservationTag("user_message"), fb.ID); ok {
		t.Error("observation tag still references deleted exemplar")
	}
}

func TestNewFeedbackStore_ConnectionFailed(t *testing.T) {
	t.Parallel()

	_, err := agentredis.NewFeedbackStore(
		agentredis.DefaultConfig(),
		nil,
		agentredis.WithAddress("127.0.0.1:1"),
		agentredis.WithTimeouts(100*time.Millisecond, 100*time.Millisecond, 100*time.Millisecond),
	)
	if !errors.Is(err, feedback.ErrConnectionFailed) {
		t.Errorf("error = %v, want ErrConnectionFailed", err)
	}
}

func TestNewFeedbackStore_URL(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store, err := agentredis.NewFeedbackStore(agentredis.DefaultConfig(), nil,
		agentredis.WithAddress("127.0.0.1:1"),
		agentredis.WithURL("redis://"+mr.Addr()+"/3"),
	)
	if err != nil {
		t.Fatalf("NewFeedbackStore() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Add(context.Background(), feedback.New("s", "obs", "x", "act", "y")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if len(mr.DB(3).Keys()) == 0 {
		t.Error("nothing written to database 3")
	}

	_, err = agentredis.NewFeedbackStore(agentredis.DefaultConfig(), nil, agentredis.WithURL("http://nope"))
	if err == nil {
		t.Error("expected invalid url error")
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opt   agentredis.ConfigOption
		check func(agentredis.Config) bool
	}{
		{"address", agentredis.WithAddress("redis:6380"), func(c agentredis.Config) bool { return c.Address == "redis:6380" }},
		{"password", agentredis.WithPassword("s3cret"), func(c agentredis.Config) bool { return c.Password == "s3cret" }},
		{"db", agentredis.WithDB(4), func(c agentredis.Config) bool { return c.DB == 4 }},
		{"prefix", agentredis.WithKeyPrefix("tenant:"), func(c agentredis.Config) bool { return c.KeyPrefix == "tenant:" }},
		{"pool", agentredis.WithPoolSize(32), func(c agentredis.Config) bool { return c.PoolSize == 32 }},
		{"url", agentredis.WithURL("redis://cache:6379/2"), func(c agentredis.Config) bool { return c.URL == "redis://cache:6379/2" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := agentredis.DefaultConfig()
			tt.opt(&cfg)
			if !tt.check(cfg) {
				t.Errorf("option %s not applied: %+v", tt.name, cfg)
			}
		})
	}

	if got := agentredis.DefaultConfig().KeyPrefix; got != "agentfsm:" {
		t.Errorf("default KeyPrefix = %q, want agentfsm:", got)
	}
}
