package inference

import "errors"

// Errors returned by providers and the client.
var (
	// ErrNoChoices indicates the provider returned no completion.
	ErrNoChoices = errors.New("no choices in response")

	// ErrRejected indicates the provider refused the request. Rejections are
	// not retried.
	ErrRejected = errors.New("request rejected by provider")

	// ErrUnavailable indicates a transient provider failure.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrScriptExhausted indicates a scripted provider has no replies left.
	ErrScriptExhausted = errors.New("script exhausted")
)
