package middleware_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	domainmw "github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	mw "github.com/felixgeelhaar/agent-fsm/infrastructure/middleware"
)

type orderArgs struct {
	OrderID string `json:"order_id"`
}

func lookupTool() tool.Tool {
	return tool.NewBuilder("lookup_order").
		WithInputSchema(tool.MustSchemaFor[orderArgs]()).
		ReadOnly().
		WithHandler(func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"status": "shipped", "order_id": args["order_id"]}, nil
		}).
		MustBuild()
}

func invocation(args map[string]any) *domainmw.Invocation {
	return &domainmw.Invocation{
		ConversationID: "c-1",
		State:          "greeting",
		Turn:           2,
		Tool:           lookupTool(),
		Args:           args,
	}
}

func failingHandler(err error) domainmw.Handler {
	return func(context.Context, *domainmw.Invocation) (map[string]any, error) {
		return nil, err
	}
}

func TestLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler domainmw.Handler
		wantErr bool
	}{
		{"success", domainmw.Invoke, false},
		{"failure", failingHandler(errors.New("boom")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := mw.Logging(mw.LoggingConfig{LogArgs: true, LogResult: true})(tt.handler)
			_, err := h(context.Background(), invocation(map[string]any{"order_id": "A-1"}))
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracing(t *testing.T) {
	t.Parallel()

	cfg := mw.DefaultTracingConfig()
	cfg.Tracer = noop.NewTracerProvider().Tracer("test")
	cfg.RecordArgs = true

	result, err := mw.Tracing(cfg)(domainmw.Invoke)(context.Background(), invocation(map[string]any{"order_id": "A-1"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["status"] != "shipped" {
		t.Errorf("result = %v", result)
	}

	boom := errors.New("boom")
	if _, err := mw.Tracing(cfg)(failingHandler(boom))(context.Background(), invocation(nil)); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}

type recordedInvocation struct {
	tool, state string
	err         error
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recordedInvocation
}

func (r *fakeRecorder) RecordInvocation(_ context.Context, toolName, state string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, recordedInvocation{toolName, state, err})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	rec := &fakeRecorder{}
	boom := errors.New("boom")

	_, _ = mw.Metrics(rec)(domainmw.Invoke)(context.Background(), invocation(map[string]any{"order_id": "A-1"}))
	_, _ = mw.Metrics(rec)(failingHandler(boom))(context.Background(), invocation(nil))

	if len(rec.seen) != 2 {
		t.Fatalf("recorded %d invocations, want 2", len(rec.seen))
	}
	if rec.seen[0].tool != "lookup_order" || rec.seen[0].state != "greeting" || rec.seen[0].err != nil {
		t.Errorf("first record = %+v", rec.seen[0])
	}
	if !errors.Is(rec.seen[1].err, boom) {
		t.Errorf("second record err = %v, want boom", rec.seen[1].err)
	}

	// nil recorder is a pass-through
	if _, err := mw.Metrics(nil)(domainmw.Invoke)(context.Background(), invocation(map[string]any{"order_id": "A-1"})); err != nil {
		t.Errorf("nil recorder error = %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	var limited int
	h := mw.RateLimit(mw.RateLimitConfig{
		Rate:            1,
		Burst:           2,
		Scope:           mw.ScopePerConversation,
		OnLimitExceeded: func(context.Context, *domainmw.Invocation) { limited++ },
	})(domainmw.Invoke)

	ctx := context.Background()
	args := map[string]any{"order_id": "A-1"}
	for i := range 2 {
		if _, err := h(ctx, invocation(args)); err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if _, err := h(ctx, invocation(args)); !errors.Is(err, domainmw.ErrRateLimitExceeded) {
		t.Errorf("third call error = %v, want ErrRateLimitExceeded", err)
	}
	if limited != 1 {
		t.Errorf("OnLimitExceeded called %d times, want 1", limited)
	}

	other := invocation(args)
	other.ConversationID = "c-2"
	if _, err := h(ctx, other); err != nil {
		t.Errorf("other conversation limited: %v", err)
	}
}

func TestPerToolRateLimit(t *testing.T) {
	t.Parallel()

	var rejected []string
	h := mw.PerToolRateLimit(mw.PerToolRateLimitConfig{
		DefaultRate: 100,
		ToolRates:   map[string]mw.RateLimitConfig{"lookup_order": {Rate: 1, Burst: 1}},
		OnLimitExceeded: func(_ context.Context, inv *domainmw.Invocation) {
			rejected = append(rejected, inv.Tool.Name())
		},
	})(domainmw.Invoke)

	ctx := context.Background()
	args := map[string]any{"order_id": "A-1"}
	if _, err := h(ctx, invocation(args)); err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if _, err := h(ctx, invocation(args)); !errors.Is(err, domainmw.ErrRateLimitExceeded) {
		t.Errorf("second call error = %v, want ErrRateLimitExceeded", err)
	}
	if len(rejected) != 1 || rejected[0] != "lookup_order" {
		t.Errorf("rejected = %v", rejected)
	}
}

func TestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    map[string]any
		wantErr error
	}{
		{"valid", map[string]any{"order_id": "A-1"}, nil},
		{"missing required", map[string]any{}, tool.ErrInvalidInput},
		{"wrong type", map[string]any{"order_id": 7.0}, tool.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := mw.Validation()(domainmw.Invoke)(context.Background(), invocation(tt.args))
			if tt.wantErr == nil && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
