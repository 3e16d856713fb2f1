package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/fortify/ferrors"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

func countingTool(name string, idempotent bool, calls *atomic.Int32, fn tool.Handler) tool.Tool {
	b := tool.NewBuilder(name).WithHandler(func(ctx context.Context, args map[string]any) (map[string]any, error) {
		calls.Add(1)
		return fn(ctx, args)
	})
	if idempotent {
		b = b.Idempotent()
	}
	return b.MustBuild()
}

func fastConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           4,
		CircuitBreakerThreshold: 3,
		CircuitBreakerTimeout:   time.Minute,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       time.Millisecond,
		RetryBackoffMultiplier:  1.5,
		DefaultTimeout:          time.Second,
	}
}

func TestDefaultExecutorConfig(t *testing.T) {
	t.Parallel()

	config := DefaultExecutorConfig()
	if config.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", config.MaxConcurrent)
	}
	if config.CircuitBreakerThreshold != 5 {
		t.Errorf("CircuitBreakerThreshold = %d, want 5", config.CircuitBreakerThreshold)
	}
	if config.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", config.DefaultTimeout)
	}
}

func TestExecutor_Execute_Success(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	echo := countingTool("echo", false, &calls, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return map[string]any{"echo": args["text"]}, nil
	})

	got, err := NewExecutor(fastConfig()).Execute(context.Background(), echo, map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got["echo"] != "hi" {
		t.Errorf("Execute() = %v", got)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecutor_RetryOnlyIdempotent(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("flaky")
	}

	tests := []struct {
		name       string
		idempotent bool
		minCalls   int32
		maxCalls   int32
	}{
		{"side-effecting tool runs once", false, 1, 1},
		{"idempotent tool is retried", true, 2, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := fastConfig()
			cfg.CircuitBreakerThreshold = 0

			var calls atomic.Int32
			tl := countingTool("t", tt.idempotent, &calls, failing)
			if _, err := NewExecutor(cfg).Execute(context.Background(), tl, nil); err == nil {
				t.Fatal("Execute() should fail")
			}
			if n := calls.Load(); n < tt.minCalls || n > tt.maxCalls {
				t.Errorf("calls = %d, want %d..%d", n, tt.minCalls, tt.maxCalls)
			}
		})
	}
}

func TestExecutor_Timeout(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	slow := tool.NewBuilder("slow").
		WithTimeout(20 * time.Millisecond).
		WithHandler(func(ctx context.Context, _ map[string]any) (map[string]any, error) {
			calls.Add(1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return map[string]any{}, nil
			}
		}).
		MustBuild()

	start := time.Now()
	_, err := NewExecutor(fastConfig()).Execute(context.Background(), slow, nil)
	if err == nil {
		t.Fatal("Execute() should time out")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("tool timeout not applied, took %v", elapsed)
	}
}

func TestExecutor_CircuitBreakerPerTool(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	e := NewExecutor(cfg)
	ctx := context.Background()

	var badCalls, goodCalls atomic.Int32
	bad := countingTool("bad", false, &badCalls, func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("down")
	})
	good := countingTool("good", false, &goodCalls, func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	if got := e.CircuitBreakerState("bad"); got != "closed" {
		t.Errorf("initial state = %s, want closed", got)
	}

	for range 5 {
		_, _ = e.Execute(ctx, bad, nil)
	}
	if badCalls.Load() != 3 {
		t.Errorf("bad calls = %d, want 3 before the circuit opens", badCalls.Load())
	}
	if got := e.CircuitBreakerState("bad"); got == "closed" {
		t.Errorf("state = %s, want the circuit to be open", got)
	}

	if _, err := e.Execute(ctx, good, nil); err != nil {
		t.Errorf("other tool affected by open circuit: %v", err)
	}
	if goodCalls.Load() != 1 {
		t.Errorf("good calls = %d, want 1", goodCalls.Load())
	}
}

func TestExecutor_Disabled(t *testing.T) {
	t.Parallel()

	e := NewExecutor(ExecutorConfig{MaxConcurrent: -1, CircuitBreakerThreshold: -1})

	var calls atomic.Int32
	tl := countingTool("t", true, &calls, func(context.Context, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	if _, err := e.Execute(context.Background(), tl, nil); err == nil {
		t.Fatal("Execute() should fail")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 with retries disabled", calls.Load())
	}
	if got := e.CircuitBreakerState("t"); got != "closed" {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestExecutor_Middleware(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	tl := countingTool("t", false, &calls, func(_ context.Context, args map[string]any) (map[string]any, error) {
		return args, nil
	})

	handler := NewExecutorWithOptions(WithTimeout(time.Second)).Middleware()(middleware.Invoke)
	got, err := handler(context.Background(), &middleware.Invocation{Tool: tl, Args: map[string]any{"a": 1}})
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got["a"] != 1 {
		t.Errorf("result = %v", got)
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()

	cfg := DefaultExecutorConfig()
	for _, opt := range []Option{
		WithMaxConcurrent(2),
		WithCircuitBreaker(7, time.Second),
		WithRetry(4, time.Millisecond, 3),
		WithTimeout(time.Minute),
		WithQueue(5, time.Second),
	} {
		opt(&cfg)
	}

	if cfg.MaxConcurrent != 2 || cfg.CircuitBreakerThreshold != 7 || cfg.CircuitBreakerTimeout != time.Second {
		t.Errorf("bulkhead/breaker options not applied: %+v", cfg)
	}
	if cfg.RetryMaxAttempts != 4 || cfg.RetryInitialDelay != time.Millisecond || cfg.RetryBackoffMultiplier != 3 {
		t.Errorf("retry options not applied: %+v", cfg)
	}
	if cfg.DefaultTimeout != time.Minute {
		t.Errorf("DefaultTimeout = %v", cfg.DefaultTimeout)
	}
	if cfg.MaxQueue != 5 || cfg.QueueTimeout != time.Second {
		t.Errorf("queue options not applied: %+v", cfg)
	}
}

func TestExecutor_BulkheadQueuesOverflow(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxConcurrent = 2
	cfg.MaxQueue = 16
	cfg.QueueTimeout = 5 * time.Second
	e := NewExecutor(cfg)
	defer func() { _ = e.Close() }()

	var calls, running, peak atomic.Int32
	slow := countingTool("slow", false, &calls, func(context.Context, map[string]any) (map[string]any, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return map[string]any{"ok": true}, nil
	})

	const callers = 12
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Execute(context.Background(), slow, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("call %d error = %v", i, err)
		}
	}
	if calls.Load() != callers {
		t.Errorf("calls = %d, want %d", calls.Load(), callers)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestExecutor_BulkheadWithoutQueueRejects(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.MaxConcurrent = 1
	cfg.MaxQueue = 0
	e := NewExecutor(cfg)
	defer func() { _ = e.Close() }()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	blocking := countingTool("blocking", false, &calls, func(context.Context, map[string]any) (map[string]any, error) {
		close(started)
		<-release
		return map[string]any{}, nil
	})
	quick := countingTool("quick", false, &calls, func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), blocking, nil)
		done <- err
	}()
	<-started

	if _, err := e.Execute(context.Background(), quick, nil); !errors.Is(err, ferrors.ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("blocking call error = %v", err)
	}
}

func TestExecutor_Close(t *testing.T) {
	t.Parallel()

	e := NewExecutorWithOptions(WithMaxConcurrent(1), WithQueue(4, time.Second))
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	var calls atomic.Int32
	tl := countingTool("t", false, &calls, func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})
	if _, err := e.Execute(context.Background(), tl, nil); !errors.Is(err, ferrors.ErrBulkheadFull) {
		t.Errorf("Execute() after Close error = %v, want ErrBulkheadFull", err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}

	if err := NewExecutor(ExecutorConfig{}).Close(); err != nil {
		t.Errorf("Close() without bulkhead error = %v", err)
	}
}
