// Package resilience wraps capability invocations with fortify bulkhead,
// timeout, circuit breaker and retry patterns.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

type result = map[string]any

// Executor provides resilient tool execution. Each tool gets its own circuit
// breaker so one failing capability cannot open the circuit for the others.
type Executor struct {
	config   ExecutorConfig
	bulkhead bulkhead.Bulkhead[result]
	retry    retry.Retry[result]
	breakers sync.Map // tool name -> circuitbreaker.CircuitBreaker[result]
}

// ExecutorConfig configures the resilient executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent tool executions. Zero disables the bulkhead.
	MaxConcurrent int

	// MaxQueue is how many calls may wait for a free slot once MaxConcurrent
	// are running. Calls beyond it fail with bulkhead full. Zero rejects
	// every call over the limit.
	MaxQueue int

	// QueueTimeout bounds the wait for a slot. Zero waits until the call's
	// context is done.
	QueueTimeout time.Duration

	// CircuitBreakerThreshold is the number of consecutive failures before
	// opening. Zero disables the breaker.
	CircuitBreakerThreshold int

	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration

	// RetryMaxAttempts is the maximum number of attempts for idempotent
	// tools. One or less disables retries.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// DefaultTimeout bounds tools without their own timeout annotation.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:           10,
		MaxQueue:                256,
		QueueTimeout:            30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		RetryMaxAttempts:        3,
		RetryInitialDelay:       100 * time.Millisecond,
		RetryBackoffMultiplier:  2.0,
		DefaultTimeout:          30 * time.Second,
	}
}

// NewExecutor creates a new resilient executor.
func NewExecutor(config ExecutorConfig) *Executor {
	if config.MaxConcurrent < 0 {
		config.MaxConcurrent = 0
	}
	if config.MaxQueue < 0 {
		config.MaxQueue = 0
	}
	if config.CircuitBreakerThreshold < 0 {
		config.CircuitBreakerThreshold = 0
	}
	if config.RetryBackoffMultiplier <= 0 {
		config.RetryBackoffMultiplier = 2.0
	}

	e := &Executor{config: config}
	if config.MaxConcurrent > 0 {
		e.bulkhead = bulkhead.New[result](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
			MaxQueue:      config.MaxQueue,
			QueueTimeout:  config.QueueTimeout,
		})
	}
	if config.RetryMaxAttempts > 1 {
		e.retry = retry.New[result](retry.Config{
			MaxAttempts:        config.RetryMaxAttempts,
			InitialDelay:       config.RetryInitialDelay,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         config.RetryBackoffMultiplier,
			NonRetryableErrors: []error{tool.ErrInvalidInput, tool.ErrNoHandler, context.Canceled},
		})
	}
	return e
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

// Execute runs a tool with resilience patterns applied.
// Composition order: Bulkhead → Timeout → Circuit Breaker → Retry (idempotent only).
func (e *Executor) Execute(ctx context.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	run := func(ctx context.Context) (result, error) {
		timeout := e.config.DefaultTimeout
		if d := t.Annotations().Timeout; d > 0 {
			timeout = d
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		call := func(ctx context.Context) (result, error) {
			if e.retry != nil && t.Annotations().Idempotent {
				return e.retry.Do(ctx, func(ctx context.Context) (result, error) {
					return t.Execute(ctx, args)
				})
			}
			return t.Execute(ctx, args)
		}

		if breaker := e.breaker(t.Name()); breaker != nil {
			return breaker.Execute(ctx, call)
		}
		return call(ctx)
	}

	if e.bulkhead != nil {
		return e.bulkhead.Execute(ctx, run)
	}
	return run(ctx)
}

// Close stops the bulkhead queue. Calls made after Close fail with bulkhead
// full. It is safe to call more than once.
func (e *Executor) Close() error {
	if e.bulkhead == nil {
		return nil
	}
	return e.bulkhead.Close()
}

// Middleware returns the executor as the innermost invocation middleware.
func (e *Executor) Middleware() middleware.Middleware {
	return func(middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			return e.Execute(ctx, inv.Tool, inv.Args)
		}
	}
}

func (e *Executor) breaker(name string) circuitbreaker.CircuitBreaker[result] {
	if e.config.CircuitBreakerThreshold == 0 {
		return nil
	}
	if cb, ok := e.breakers.Load(name); ok {
		return cb.(circuitbreaker.CircuitBreaker[result])
	}

	threshold := uint32(e.config.CircuitBreakerThreshold) // #nosec G115 -- non-negative, checked in NewExecutor
	cb := circuitbreaker.New[result](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    e.config.CircuitBreakerTimeout,
		Timeout:     e.config.CircuitBreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	actual, _ := e.breakers.LoadOrStore(name, cb)
	return actual.(circuitbreaker.CircuitBreaker[result])
}

// CircuitBreakerState returns the breaker state name for a tool
// ("closed", "open" or "half-open"). A disabled breaker reports closed.
func (e *Executor) CircuitBreakerState(name string) string {
	cb := e.breaker(name)
	if cb == nil {
		return "closed"
	}
	return cb.State().String()
}
