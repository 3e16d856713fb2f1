package resilience

import "time"

// Option configures the executor.
type Option func(*ExecutorConfig)

// WithMaxConcurrent sets the maximum concurrent executions.
func WithMaxConcurrent(n int) Option {
	return func(c *ExecutorConfig) {
		c.MaxConcurrent = n
	}
}

// WithQueue sets how many calls may wait for a slot and for how long.
func WithQueue(maxQueue int, timeout time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.MaxQueue = maxQueue
		c.QueueTimeout = timeout
	}
}

// WithCircuitBreaker sets the failure threshold and open duration.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.CircuitBreakerThreshold = threshold
		c.CircuitBreakerTimeout = timeout
	}
}

// WithRetry sets the retry policy for idempotent tools.
func WithRetry(maxAttempts int, initialDelay time.Duration, multiplier float64) Option {
	return func(c *ExecutorConfig) {
		c.RetryMaxAttempts = maxAttempts
		c.RetryInitialDelay = initialDelay
		c.RetryBackoffMultiplier = multiplier
	}
}

// WithTimeout sets the default execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ExecutorConfig) {
		c.DefaultTimeout = d
	}
}

// NewExecutorWithOptions creates an executor from defaults plus options.
func NewExecutorWithOptions(opts ...Option) *Executor {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return NewExecutor(config)
}
