package inference

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// Recorder observes completed provider calls. telemetry.Metrics satisfies it.
type Recorder interface {
	RecordInference(ctx context.Context, provider, kind string, d time.Duration, usage Usage, err error)
}

// Counters is a snapshot of a client's accumulated usage.
type Counters struct {
	Calls        int64 `json:"calls"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add returns the element-wise sum of two snapshots.
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Calls:        c.Calls + o.Calls,
		InputTokens:  c.InputTokens + o.InputTokens,
		OutputTokens: c.OutputTokens + o.OutputTokens,
	}
}

// Sub returns the usage accumulated since an earlier snapshot.
func (c Counters) Sub(o Counters) Counters {
	return Counters{
		Calls:        c.Calls - o.Calls,
		InputTokens:  c.InputTokens - o.InputTokens,
		OutputTokens: c.OutputTokens - o.OutputTokens,
	}
}

// Tally accumulates the usage of the calls made with one context, so a
// turn can report its own usage while the client is shared.
type Tally struct {
	calls        atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// Counters returns a snapshot of the tally.
func (t *Tally) Counters() Counters {
	if t == nil {
		return Counters{}
	}
	return Counters{
		Calls:        t.calls.Load(),
		InputTokens:  t.inputTokens.Load(),
		OutputTokens: t.outputTokens.Load(),
	}
}

type tallyKey struct{}

// WithTally returns a context whose client calls are also counted on the
// returned tally.
func WithTally(ctx context.Context) (context.Context, *Tally) {
	t := &Tally{}
	return context.WithValue(ctx, tallyKey{}, t), t
}

func tallyFrom(ctx context.Context) *Tally {
	t, _ := ctx.Value(tallyKey{}).(*Tally)
	return t
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Model overrides the provider's default model.
	Model string
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens bounds each reply.
	MaxTokens int
	// RetryMaxAttempts is the number of attempts per call. Values below 2
	// disable retries.
	RetryMaxAttempts int
	// RetryInitialDelay is the first backoff delay.
	RetryInitialDelay time.Duration
	// RetryMultiplier is the exponential backoff multiplier.
	RetryMultiplier float64
}

// DefaultClientConfig returns a configuration with sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetryMaxAttempts:  3,
		RetryInitialDelay: 500 * time.Millisecond,
		RetryMultiplier:   2.0,
	}
}

// ClientOption configures a Client.
type ClientOption func(*ClientConfig)

// WithModel sets the model.
func WithModel(model string) ClientOption {
	return func(c *ClientConfig) { c.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *ClientConfig) { c.Temperature = t }
}

// WithMaxTokens sets the reply length bound.
func WithMaxTokens(n int) ClientOption {
	return func(c *ClientConfig) { c.MaxTokens = n }
}

// WithRetry sets the retry policy for transport failures.
func WithRetry(maxAttempts int, initialDelay time.Duration, multiplier float64) ClientOption {
	return func(c *ClientConfig) {
		c.RetryMaxAttempts = maxAttempts
		c.RetryInitialDelay = initialDelay
		c.RetryMultiplier = multiplier
	}
}

// Client wraps a Provider with retries and usage accounting. It is safe for
// concurrent use.
type Client struct {
	provider Provider
	config   ClientConfig
	retry    retry.Retry[CompletionResponse]
	recorder Recorder

	calls        atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64
}

// NewClient creates a client over a provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	config := DefaultClientConfig()
	for _, opt := range opts {
		opt(&config)
	}

	c := &Client{provider: provider, config: config}
	if config.RetryMaxAttempts > 1 {
		multiplier := config.RetryMultiplier
		if multiplier < 1 {
			multiplier = 2.0
		}
		c.retry = retry.New[CompletionResponse](retry.Config{
			MaxAttempts:   config.RetryMaxAttempts,
			InitialDelay:  config.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    multiplier,
			// Rejections and cancellations will not succeed on a second try.
			NonRetryableErrors: []error{ErrRejected, ErrScriptExhausted, context.Canceled, context.DeadlineExceeded},
		})
	}
	return c
}

// SetRecorder attaches a metrics recorder.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// Usage returns a snapshot of the accumulated counters.
func (c *Client) Usage() Counters {
	return Counters{
		Calls:        c.calls.Load(),
		InputTokens:  c.inputTokens.Load(),
		OutputTokens: c.outputTokens.Load(),
	}
}

// Reset zeroes the counters.
func (c *Client) Reset() {
	c.calls.Store(0)
	c.inputTokens.Store(0)
	c.outputTokens.Store(0)
}

// Complete sends a request, retrying transient failures. Every logical call
// counts once; tokens come from the successful attempt.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return c.complete(ctx, "complete", req)
}

func (c *Client) complete(ctx context.Context, kind string, req CompletionRequest) (CompletionResponse, error) {
	if req.Model == "" {
		req.Model = c.config.Model
	}
	if req.Temperature == 0 {
		req.Temperature = c.config.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.config.MaxTokens
	}

	start := time.Now()
	c.calls.Add(1)
	tally := tallyFrom(ctx)
	if tally != nil {
		tally.calls.Add(1)
	}

	var (
		resp CompletionResponse
		err  error
	)
	if c.retry != nil {
		attempt := 0
		resp, err = c.retry.Do(ctx, func(ctx context.Context) (CompletionResponse, error) {
			attempt++
			if attempt > 1 {
				logging.Debug().
					Add(logging.Provider(c.provider.Name())).
					Add(logging.Attempt(attempt)).
					Msg("retrying inference call")
			}
			return c.provider.Complete(ctx, req)
		})
	} else {
		resp, err = c.provider.Complete(ctx, req)
	}

	elapsed := time.Since(start)
	if c.recorder != nil {
		c.recorder.RecordInference(ctx, c.provider.Name(), kind, elapsed, resp.Usage, err)
	}

	if err != nil {
		logging.Warn().
			Add(logging.Provider(c.provider.Name())).
			Add(logging.Operation(kind)).
			Add(logging.Duration(elapsed)).
			Add(logging.ErrorField(err)).
			Msg("inference call failed")
		return CompletionResponse{}, err
	}

	c.inputTokens.Add(resp.Usage.InputTokens)
	c.outputTokens.Add(resp.Usage.OutputTokens)
	if tally != nil {
		tally.inputTokens.Add(resp.Usage.InputTokens)
		tally.outputTokens.Add(resp.Usage.OutputTokens)
	}

	logging.Debug().
		Add(logging.Provider(c.provider.Name())).
		Add(logging.Operation(kind)).
		Add(logging.Duration(elapsed)).
		Add(logging.Tokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)).
		Msg("inference call completed")

	return resp, nil
}

// Generate returns a free-form reply.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.complete(ctx, "generate", CompletionRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// Choose asks the model for an index and returns the first integer in the
// reply, or 0 when there is none. Range checking is left to the caller.
func (c *Client) Choose(ctx context.Context, messages []Message) (int, error) {
	resp, err := c.complete(ctx, "choose", CompletionRequest{Messages: messages})
	if err != nil {
		return 0, err
	}
	n, ok := FirstInt(resp.Message.Content)
	if !ok {
		logging.Debug().
			Add(logging.Reason("no integer in reply")).
			Msg("choice defaulted to 0")
		return 0, nil
	}
	return n, nil
}

// SelectTools forces the model to call at least one of the given tools and
// returns the calls. Providers without forced choice may return none.
func (c *Client) SelectTools(ctx context.Context, messages []Message, tools []ToolSpec) ([]ToolCall, error) {
	if len(tools) == 0 {
		return nil, errors.New("select tools: no tools offered")
	}
	resp, err := c.complete(ctx, "select_tools", CompletionRequest{
		Messages:   messages,
		Tools:      tools,
		ToolChoice: ToolChoiceRequired,
	})
	if err != nil {
		return nil, err
	}
	return resp.Message.ToolCalls, nil
}
