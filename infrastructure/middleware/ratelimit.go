package middleware

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// RateLimitScope defines the scope for rate limiting.
type RateLimitScope string

const (
	// ScopeGlobal applies one bucket to every invocation.
	ScopeGlobal RateLimitScope = "global"
	// ScopePerConversation applies one bucket per conversation.
	ScopePerConversation RateLimitScope = "per_conversation"
	// ScopePerTool applies one bucket per tool name.
	ScopePerTool RateLimitScope = "per_tool"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// Limiter is the rate limiter to use. If nil, one is built from Rate and Burst.
	Limiter ratelimit.RateLimiter

	// Scope determines how rate limiting keys are generated. Default ScopeGlobal.
	Scope RateLimitScope

	// Rate is the number of tokens added per interval.
	Rate int

	// Burst is the bucket capacity.
	Burst int

	// Wait blocks until a token is available instead of rejecting.
	Wait bool

	// OnLimitExceeded is called when an invocation is rejected.
	OnLimitExceeded func(ctx context.Context, inv *middleware.Invocation)
}

// DefaultRateLimitConfig returns a sensible default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Scope: ScopeGlobal,
		Rate:  100,
		Burst: 100,
	}
}

func newLimiter(rate, burst int) ratelimit.RateLimiter {
	if rate <= 0 {
		rate = 100
	}
	if burst <= 0 {
		burst = rate
	}
	return ratelimit.New(&ratelimit.Config{
		Rate:  rate,
		Burst: burst,
	})
}

// RateLimit returns middleware that enforces a token bucket on invocations.
// Rejected invocations fail with middleware.ErrRateLimitExceeded, which the
// executor records as the action's error result.
func RateLimit(cfg RateLimitConfig) middleware.Middleware {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = newLimiter(cfg.Rate, cfg.Burst)
	}
	scope := cfg.Scope
	if scope == "" {
		scope = ScopeGlobal
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			key := rateLimitKey(scope, inv)

			if cfg.Wait {
				if err := limiter.Wait(ctx, key); err != nil {
					return nil, fmt.Errorf("%w: %v", middleware.ErrRateLimitExceeded, err)
				}
				return next(ctx, inv)
			}

			if !limiter.Allow(ctx, key) {
				logging.Warn().
					Add(logging.ConversationID(inv.ConversationID)).
					Add(logging.ToolName(inv.Tool.Name())).
					Add(logging.Str("scope", string(scope))).
					Msg("rate limit exceeded")

				if cfg.OnLimitExceeded != nil {
					cfg.OnLimitExceeded(ctx, inv)
				}
				return nil, middleware.ErrRateLimitExceeded
			}

			return next(ctx, inv)
		}
	}
}

func rateLimitKey(scope RateLimitScope, inv *middleware.Invocation) string {
	switch scope {
	case ScopePerConversation:
		return inv.ConversationID
	case ScopePerTool:
		return inv.Tool.Name()
	default:
		return "global"
	}
}

// PerToolRateLimitConfig configures per-tool rate limiting.
type PerToolRateLimitConfig struct {
	// DefaultRate and DefaultBurst apply to tools without their own entry.
	DefaultRate  int
	DefaultBurst int
	// ToolRates maps tool names to their own rate and burst.
	ToolRates map[string]RateLimitConfig
	// OnLimitExceeded is called when an invocation is rejected.
	OnLimitExceeded func(ctx context.Context, inv *middleware.Invocation)
}

// PerToolRateLimit returns middleware with a separate bucket per tool.
func PerToolRateLimit(cfg PerToolRateLimitConfig) middleware.Middleware {
	var mu sync.Mutex
	limiters := make(map[string]ratelimit.RateLimiter, len(cfg.ToolRates))
	for name, tc := range cfg.ToolRates {
		rate := tc.Rate
		if rate <= 0 {
			rate = cfg.DefaultRate
		}
		limiters[name] = newLimiter(rate, tc.Burst)
	}

	limiterFor := func(name string) ratelimit.RateLimiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[name]
		if !ok {
			l = newLimiter(cfg.DefaultRate, cfg.DefaultBurst)
			limiters[name] = l
		}
		return l
	}

	return func(next middleware.Handler) middleware.Handler {
		return func(ctx context.Context, inv *middleware.Invocation) (map[string]any, error) {
			name := inv.Tool.Name()
			if !limiterFor(name).Allow(ctx, name) {
				logging.Warn().
					Add(logging.ConversationID(inv.ConversationID)).
					Add(logging.ToolName(name)).
					Msg("per-tool rate limit exceeded")
				if cfg.OnLimitExceeded != nil {
					cfg.OnLimitExceeded(ctx, inv)
				}
				return nil, middleware.ErrRateLimitExceeded
			}
			return next(ctx, inv)
		}
	}
}
