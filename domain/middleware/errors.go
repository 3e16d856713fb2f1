package middleware

import "errors"

// ErrRateLimitExceeded is returned when an invocation is rejected by a rate limiter.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")
