package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/agent-fsm/application"
	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/domain/middleware"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/embedding"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
	inframw "github.com/felixgeelhaar/agent-fsm/infrastructure/middleware"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/resilience"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/azureblob"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/badger"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/dynamodb"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/gcs"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/memory"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/mongodb"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/objectstore"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/postgres"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/redis"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/s3"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/telemetry"
	httppack "github.com/felixgeelhaar/agent-fsm/pack/http"
	"github.com/felixgeelhaar/agent-fsm/pack/messaging"
)

// DefaultHashingDimensions is the vector size of the default embedder.
const DefaultHashingDimensions = 256

// Builder assembles an agent and its collaborators from configuration.
type Builder struct {
	config     *domainconfig.AgentConfig
	relay      messaging.Relay
	metrics    telemetry.Metrics
	httpClient *http.Client
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRelay sets where send_message delivers messages. Without it the
// builder creates a Mailbox.
func WithRelay(r messaging.Relay) BuilderOption {
	return func(b *Builder) {
		b.relay = r
	}
}

// WithMetrics records turns, inference calls and invocations.
func WithMetrics(m telemetry.Metrics) BuilderOption {
	return func(b *Builder) {
		b.metrics = m
	}
}

// WithHTTPClient sets the client used by HTTP tools.
func WithHTTPClient(c *http.Client) BuilderOption {
	return func(b *Builder) {
		b.httpClient = c
	}
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.AgentConfig, opts ...BuilderOption) *Builder {
	b := &Builder{config: config}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildResult holds the agent and the resources built for it.
type BuildResult struct {
	Agent    *application.Agent
	Client   *inference.Client
	Embedder feedback.Embedder
	// Feedback is nil when no backend is configured.
	Feedback feedback.Store
	History  conversation.HistoryStore
	// Mailbox is the default relay; nil when WithRelay was used.
	Mailbox *messaging.Mailbox

	closers []io.Closer
}

// Close releases the storage connections and stops the executor queue.
func (r *BuildResult) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build validates the configuration and builds the agent. Storage opened
// before a failure is closed again.
func (b *Builder) Build(ctx context.Context) (result *BuildResult, err error) {
	if errs := domainconfig.NewValidator().Validate(b.config); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %v", domainconfig.ErrValidationFailed, errs)
	}

	result = &BuildResult{}
	defer func() {
		if err != nil {
			_ = result.Close()
			result = nil
			err = fmt.Errorf("%w: %w", domainconfig.ErrBuildFailed, err)
		}
	}()

	machine, err := Machine(b.config)
	if err != nil {
		return result, err
	}
	if result.Client, err = b.client(); err != nil {
		return result, err
	}
	result.Embedder = b.embedder()
	if result.Feedback, err = b.feedbackStore(ctx, result.Embedder, result); err != nil {
		return result, err
	}
	if result.History, err = b.historyStore(ctx, result); err != nil {
		return result, err
	}

	relay := b.relay
	if relay == nil {
		result.Mailbox = messaging.NewMailbox()
		relay = result.Mailbox
	}
	tools, err := b.tools(relay)
	if err != nil {
		return result, err
	}

	result.Agent, err = application.NewAgent(application.AgentConfig{
		Name:       b.config.Name,
		Machine:    machine,
		Tools:      tools,
		Client:     result.Client,
		Feedback:   result.Feedback,
		Middleware: b.middleware(result),
		Prompter:   application.DefaultPrompter{Persona: b.config.Agent.Persona},
		Metrics:    b.metrics,
		TopK:       b.config.Agent.TopK,
	})
	if err != nil {
		return result, err
	}

	logging.Info().
		Add(logging.Agent(b.config.Name)).
		Add(logging.Provider(b.config.Inference.Provider)).
		Add(logging.Int("states", len(b.config.Machine.States))).
		Add(logging.Int("tools", tools.Len())).
		Add(logging.Backend(backendName(b.config.Feedback.Backend))).
		Msg("agent built")
	return result, nil
}

// Machine builds the declared state machine. It returns nil when the
// configuration declares none.
func Machine(cfg *domainconfig.AgentConfig) (*conversation.Machine, error) {
	m := cfg.Machine
	if m.Initial == "" && len(m.States) == 0 {
		return nil, nil
	}
	states := make([]conversation.State, len(m.States))
	for i, s := range m.States {
		states[i] = conversation.State{Name: s.Name, Scenario: s.Scenario, Instruction: s.Instruction}
	}
	return conversation.NewMachine(m.Initial, states, m.Transitions)
}

func (b *Builder) client() (*inference.Client, error) {
	inf := b.config.Inference
	timeout := inf.Timeout.Duration()

	var provider inference.Provider
	switch inf.Provider {
	case "openai":
		provider = inference.NewOpenAIProvider(inference.OpenAIConfig{
			APIKey: inf.APIKey, BaseURL: inf.BaseURL, Model: inf.Model, Timeout: timeout,
		})
	case "anthropic":
		provider = inference.NewAnthropicProvider(inference.AnthropicConfig{
			APIKey: inf.APIKey, BaseURL: inf.BaseURL, Model: inf.Model, MaxTokens: inf.MaxTokens, Timeout: timeout,
		})
	case "ollama":
		provider = inference.NewOllamaProvider(inference.OllamaConfig{
			BaseURL: inf.BaseURL, Model: inf.Model, Timeout: timeout,
		})
	case "scripted":
		scripted := inference.NewScriptedProvider(scriptResponses(inf.Script)...)
		if inf.Loop {
			scripted.Loop()
		}
		provider = scripted
	default:
		return nil, fmt.Errorf("unknown inference provider: %s", inf.Provider)
	}

	opts := []inference.ClientOption{
		inference.WithModel(inf.Model),
		inference.WithTemperature(inf.Temperature),
		inference.WithMaxTokens(inf.MaxTokens),
	}
	if inf.Retry.Enabled {
		opts = append(opts, inference.WithRetry(inf.Retry.MaxAttempts, inf.Retry.InitialDelay.Duration(), inf.Retry.Multiplier))
	} else if inf.Provider == "scripted" {
		opts = append(opts, inference.WithRetry(1, 0, 0))
	}

	client := inference.NewClient(provider, opts...)
	if b.metrics != nil {
		client.SetRecorder(b.metrics)
	}
	return client, nil
}

func scriptResponses(script []domainconfig.ScriptReply) []inference.CompletionResponse {
	out := make([]inference.CompletionResponse, 0, len(script))
	for _, reply := range script {
		if len(reply.ToolCalls) == 0 {
			out = append(out, inference.TextReply(reply.Text, inference.Usage{}))
			continue
		}
		calls := make([]inference.ToolCall, len(reply.ToolCalls))
		for i, c := range reply.ToolCalls {
			calls[i] = inference.ToolCall{ID: fmt.Sprintf("call_%d", i), Name: c.Name, Arguments: c.Arguments}
		}
		out = append(out, inference.ToolReply(inference.Usage{}, calls...))
	}
	return out
}

func (b *Builder) embedder() feedback.Embedder {
	e := b.config.Embedding
	if e.Provider == "openai" {
		return embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey: e.APIKey, BaseURL: e.BaseURL, Model: e.Model,
		})
	}
	dims := e.Dimensions
	if dims == 0 {
		dims = DefaultHashingDimensions
	}
	return embedding.NewHashingEmbedder(dims)
}

func (b *Builder) feedbackStore(ctx context.Context, embedder feedback.Embedder, result *BuildResult) (feedback.Store, error) {
	fb := b.config.Feedback
	switch fb.Backend {
	case "":
		return nil, nil
	case "memory":
		return memory.NewFeedbackStore(embedder), nil
	case "sqlite":
		s, err := sqlite.NewFeedbackStore(sqlite.DefaultConfig(), embedder, sqlite.WithDSN(fb.DSN))
		if err != nil {
			return nil, err
		}
		result.closers = append(result.closers, s)
		return s, nil
	case "redis":
		opts := []redis.ConfigOption{redis.WithAddress(fb.Address), redis.WithPassword(fb.Password), redis.WithDB(fb.DB)}
		if fb.DSN != "" {
			opts = append(opts, redis.WithURL(fb.DSN))
		}
		if fb.Prefix != "" {
			opts = append(opts, redis.WithKeyPrefix(fb.Prefix))
		}
		s, err := redis.NewFeedbackStore(redis.DefaultConfig(), embedder, opts...)
		if err != nil {
			return nil, err
		}
		result.closers = append(result.closers, s)
		return s, nil
	case "badger":
		opts := []badger.Option{badger.WithInMemory()}
		if fb.Path != "" {
			opts = []badger.Option{badger.WithDir(fb.Path)}
		}
		if fb.Prefix != "" {
			opts = append(opts, badger.WithKeyPrefix(fb.Prefix))
		}
		s, err := badger.NewFeedbackStore(badger.DefaultConfig(), embedder, opts...)
		if err != nil {
			return nil, err
		}
		result.closers = append(result.closers, s)
		return s, nil
	case "postgres":
		cfg := postgres.DefaultConfig()
		cfg.DSN = fb.DSN
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s := postgres.NewFeedbackStore(pool, cfg.Schema, embedder)
		result.closers = append(result.closers, s)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown feedback backend: %s", fb.Backend)
	}
}

func (b *Builder) historyStore(ctx context.Context, result *BuildResult) (conversation.HistoryStore, error) {
	h := b.config.History
	switch h.Backend {
	case "", "memory":
		return memory.NewHistoryStore(), nil
	case "sqlite":
		s, err := sqlite.NewHistoryStore(sqlite.DefaultConfig(), sqlite.WithDSN(h.DSN))
		if err != nil {
			return nil, err
		}
		result.closers = append(result.closers, s)
		return s, nil
	case "filesystem":
		return filesystem.NewHistoryStore(h.Path)
	case "mongodb":
		opts := []mongodb.ConfigOption{mongodb.WithURI(h.DSN)}
		if h.Database != "" {
			opts = append(opts, mongodb.WithDatabase(h.Database))
		}
		if h.Table != "" {
			opts = append(opts, mongodb.WithCollection(h.Table))
		}
		client, err := mongodb.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		s := mongodb.NewHistoryStore(client)
		result.closers = append(result.closers, s)
		return s, nil
	case "dynamodb":
		var opts []dynamodb.ConfigOption
		if h.Region != "" {
			opts = append(opts, dynamodb.WithRegion(h.Region))
		}
		if h.Endpoint != "" {
			opts = append(opts, dynamodb.WithEndpoint(h.Endpoint))
		}
		if h.Table != "" {
			opts = append(opts, dynamodb.WithTableName(h.Table))
		}
		client, err := dynamodb.NewClient(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewHistoryStore(client), nil
	case "gcs":
		client, err := gcs.NewStorageClient(ctx, h.Endpoint)
		if err != nil {
			return nil, err
		}
		return b.objectStore(client, result)
	case "s3":
		client, err := s3.NewClient(ctx, s3.Config{Region: h.Region, Endpoint: h.Endpoint})
		if err != nil {
			return nil, err
		}
		return b.objectStore(client, result)
	case "azblob":
		client, err := azureblob.NewClient(azureblob.Config{
			AccountName:      h.Account,
			ConnectionString: h.DSN,
			Endpoint:         h.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return b.objectStore(client, result)
	default:
		return nil, fmt.Errorf("unknown history backend: %s", h.Backend)
	}
}

// objectStore lays histories out in the configured bucket. The store owns
// the client once created.
func (b *Builder) objectStore(client objectstore.Client, result *BuildResult) (conversation.HistoryStore, error) {
	h := b.config.History
	s, err := objectstore.NewHistoryStore(objectstore.Config{Client: client, Bucket: h.Bucket, Prefix: h.Prefix})
	if err != nil {
		if c, ok := client.(io.Closer); ok {
			_ = c.Close()
		}
		return nil, err
	}
	result.closers = append(result.closers, s)
	return s, nil
}

// tools registers send_message and the inline tools. A configured tool
// named send_message replaces the built-in one.
func (b *Builder) tools(relay messaging.Relay) (*tool.Set, error) {
	registry := memory.NewToolRegistry()

	var opts []func(*httppack.Options)
	if b.httpClient != nil {
		opts = append(opts, func(o *httppack.Options) { o.Client = b.httpClient })
	}

	if err := registry.Register(messaging.New(relay)); err != nil {
		return nil, err
	}

	for _, def := range b.config.Tools.Inline {
		schema, err := inputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		t, err := httppack.NewTool(httppack.Endpoint{
			Name:        def.Name,
			Description: def.Description,
			URL:         def.Handler.URL,
			Method:      strings.ToUpper(def.Handler.Method),
			Headers:     def.Handler.Headers,
			InputSchema: schema,
			Annotations: tool.Annotations{
				ReadOnly:   def.Annotations.ReadOnly,
				Idempotent: def.Annotations.Idempotent,
				Timeout:    def.Annotations.Timeout.Duration(),
				Tags:       def.Annotations.Tags,
			},
		}, opts...)
		if err != nil {
			return nil, err
		}
		register := registry.Register
		if def.Name == tool.SendMessageName {
			register = registry.Replace
		}
		if err := register(t); err != nil {
			return nil, err
		}
	}

	return tool.FromRegistry(registry)
}

func inputSchema(m map[string]any) (tool.Schema, error) {
	if len(m) == 0 {
		return tool.EmptySchema(), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return tool.Schema{}, fmt.Errorf("encode input schema: %w", err)
	}
	return tool.NewSchema(raw), nil
}

// middleware orders the invocation chain outermost first: tracing, logging,
// metrics, rate limiting, argument validation, then the resilient executor.
func (b *Builder) middleware(result *BuildResult) *middleware.Registry {
	chain := middleware.NewRegistry().Use(
		inframw.Tracing(inframw.DefaultTracingConfig()),
		inframw.Logging(inframw.LoggingConfig{}),
	)
	if b.metrics != nil {
		chain.Use(inframw.Metrics(b.metrics))
	}
	if rl := b.config.Tools.RateLimit; rl.Enabled {
		var onLimit func(context.Context, *middleware.Invocation)
		if m := b.metrics; m != nil {
			onLimit = func(ctx context.Context, inv *middleware.Invocation) {
				m.RecordRateLimitHit(ctx, inv.Tool.Name())
			}
		}
		if len(rl.PerTool) > 0 {
			cfg := inframw.PerToolRateLimitConfig{
				DefaultRate:     rl.Rate,
				DefaultBurst:    rl.Burst,
				ToolRates:       make(map[string]inframw.RateLimitConfig, len(rl.PerTool)),
				OnLimitExceeded: onLimit,
			}
			for name, tl := range rl.PerTool {
				cfg.ToolRates[name] = inframw.RateLimitConfig{Rate: tl.Rate, Burst: tl.Burst}
			}
			chain.Use(inframw.PerToolRateLimit(cfg))
		} else {
			cfg := inframw.DefaultRateLimitConfig()
			cfg.Rate, cfg.Burst = rl.Rate, rl.Burst
			cfg.OnLimitExceeded = onLimit
			chain.Use(inframw.RateLimit(cfg))
		}
	}
	chain.Use(inframw.Validation())

	executor := resilience.NewExecutor(b.executorConfig())
	result.closers = append(result.closers, executor)
	return chain.Use(executor.Middleware())
}

func (b *Builder) executorConfig() resilience.ExecutorConfig {
	r := b.config.Resilience
	cfg := resilience.ExecutorConfig{DefaultTimeout: r.Timeout.Duration()}
	if r.Bulkhead.Enabled {
		cfg.MaxConcurrent = r.Bulkhead.MaxConcurrent
		cfg.MaxQueue = r.Bulkhead.MaxQueue
		cfg.QueueTimeout = r.Bulkhead.QueueTimeout.Duration()
	}
	if r.CircuitBreaker.Enabled {
		cfg.CircuitBreakerThreshold = r.CircuitBreaker.Threshold
		cfg.CircuitBreakerTimeout = r.CircuitBreaker.Timeout.Duration()
		if cfg.CircuitBreakerTimeout == 0 {
			cfg.CircuitBreakerTimeout = 30 * time.Second
		}
	}
	if r.Retry.Enabled {
		cfg.RetryMaxAttempts = r.Retry.MaxAttempts
		cfg.RetryInitialDelay = r.Retry.InitialDelay.Duration()
		cfg.RetryBackoffMultiplier = r.Retry.Multiplier
	}
	return cfg
}

// LoggingConfig maps the logging section onto the logger configuration.
func LoggingConfig(cfg *domainconfig.AgentConfig) logging.Config {
	out := logging.DefaultConfig()
	if cfg.Logging.Level != "" {
		out.Level = strings.ToLower(cfg.Logging.Level)
	}
	if cfg.Logging.Format != "" {
		out.Format = strings.ToLower(cfg.Logging.Format)
	}
	return out
}

func backendName(b string) string {
	if b == "" {
		return "none"
	}
	return b
}

// DefaultConfig returns a minimal configuration: a free-form agent on a
// local Ollama model with in-memory stores.
func DefaultConfig() *domainconfig.AgentConfig {
	return &domainconfig.AgentConfig{
		Name:    "agent",
		Version: "1",
		Agent:   domainconfig.AgentSettings{TopK: application.DefaultTopK},
		Inference: domainconfig.InferenceConfig{
			Provider: "ollama",
			Model:    "llama3.1",
			Timeout:  domainconfig.Duration(120 * time.Second),
			Retry: domainconfig.RetryConfig{
				Enabled:      true,
				MaxAttempts:  3,
				InitialDelay: domainconfig.Duration(500 * time.Millisecond),
				Multiplier:   2.0,
			},
		},
		Feedback: domainconfig.StoreConfig{Backend: "memory"},
		History:  domainconfig.StoreConfig{Backend: "memory"},
		Resilience: domainconfig.ResilienceConfig{
			Timeout: domainconfig.Duration(30 * time.Second),
			CircuitBreaker: domainconfig.CircuitBreakerConfig{
				Enabled:   true,
				Threshold: 5,
				Timeout:   domainconfig.Duration(30 * time.Second),
			},
		},
	}
}
