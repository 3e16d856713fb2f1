// Package config provides domain models for agent configuration.
package config

import "time"

// AgentConfig represents the complete agent configuration.
type AgentConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`
	// Description describes the agent's purpose.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Agent contains core agent settings.
	Agent AgentSettings `json:"agent" yaml:"agent"`
	// Machine declares the conversation state machine. Optional.
	Machine MachineConfig `json:"machine,omitempty" yaml:"machine,omitempty"`
	// Tools contains tool configurations.
	Tools ToolsConfig `json:"tools,omitempty" yaml:"tools,omitempty"`
	// Inference configures the language-model provider.
	Inference InferenceConfig `json:"inference" yaml:"inference"`
	// Embedding configures the embedder used to rank feedback.
	Embedding EmbeddingConfig `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	// Feedback configures the exemplar store.
	Feedback StoreConfig `json:"feedback,omitempty" yaml:"feedback,omitempty"`
	// History configures where conversations are persisted.
	History StoreConfig `json:"history,omitempty" yaml:"history,omitempty"`
	// Resilience contains resilience settings for tool invocations.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	// Logging configures the structured logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
	// Telemetry configures trace export.
	Telemetry TelemetryConfig `json:"telemetry,omitempty" yaml:"telemetry,omitempty"`
}

// AgentSettings contains core agent behavior settings.
type AgentSettings struct {
	// TopK is the number of exemplars retrieved per decision (default 5).
	TopK int `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	// Persona is prepended to every prompt.
	Persona string `json:"persona,omitempty" yaml:"persona,omitempty"`
}

// MachineConfig declares states and transitions.
type MachineConfig struct {
	// Initial names the first state. Empty disables the machine.
	Initial string `json:"initial,omitempty" yaml:"initial,omitempty"`
	// States lists every state.
	States []StateConfig `json:"states,omitempty" yaml:"states,omitempty"`
	// Transitions maps a state to the states it may move to.
	Transitions map[string][]string `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// StateConfig declares one state.
type StateConfig struct {
	Name        string `json:"name" yaml:"name"`
	Scenario    string `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
}

// ToolsConfig contains tool-related configuration.
type ToolsConfig struct {
	// Inline contains inline tool definitions.
	Inline []InlineToolConfig `json:"inline,omitempty" yaml:"inline,omitempty"`
	// RateLimit throttles invocations across all tools.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// InlineToolConfig defines an inline tool.
type InlineToolConfig struct {
	// Name is the tool identifier.
	Name string `json:"name" yaml:"name"`
	// Description describes the tool.
	Description string `json:"description" yaml:"description"`
	// Annotations configure tool behavior.
	Annotations ToolAnnotationsConfig `json:"annotations,omitempty" yaml:"annotations,omitempty"`
	// InputSchema is the JSON schema of the arguments.
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	// Handler specifies how to execute the tool.
	Handler ToolHandlerConfig `json:"handler" yaml:"handler"`
}

// ToolAnnotationsConfig configures tool annotations.
type ToolAnnotationsConfig struct {
	// ReadOnly indicates the tool doesn't modify state.
	ReadOnly bool `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	// Idempotent indicates repeated calls produce the same result.
	Idempotent bool `json:"idempotent,omitempty" yaml:"idempotent,omitempty"`
	// Timeout bounds one invocation.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Tags are recorded on invocation spans.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// ToolHandlerConfig specifies how to execute a tool.
type ToolHandlerConfig struct {
	// Type is the handler type (http).
	Type string `json:"type" yaml:"type"`
	// URL is the endpoint for HTTP handlers.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// Method is the HTTP method (default: POST).
	Method string `json:"method,omitempty" yaml:"method,omitempty"`
	// Headers are additional HTTP headers.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// RateLimitConfig configures rate limiting.
type RateLimitConfig struct {
	// Enabled enables rate limiting.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Rate is the tokens per second.
	Rate int `json:"rate,omitempty" yaml:"rate,omitempty"`
	// Burst is the maximum burst size.
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
	// PerTool gives the named tools their own bucket. Other tools share
	// buckets sized by Rate and Burst, one per tool.
	PerTool map[string]ToolRateLimit `json:"per_tool,omitempty" yaml:"per_tool,omitempty"`
}

// ToolRateLimit is the bucket of one tool.
type ToolRateLimit struct {
	Rate  int `json:"rate,omitempty" yaml:"rate,omitempty"`
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// InferenceConfig configures the language-model provider.
type InferenceConfig struct {
	// Provider is one of openai, anthropic, ollama or scripted.
	Provider string `json:"provider" yaml:"provider"`
	// Model is the model identifier.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// Temperature is the sampling temperature.
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	// MaxTokens bounds the reply length.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// Timeout bounds one provider request.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry configures client-side retries of transport failures.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// Script holds canned replies for the scripted provider.
	Script []ScriptReply `json:"script,omitempty" yaml:"script,omitempty"`
	// Loop restarts the script when it runs out.
	Loop bool `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// ScriptReply is one canned reply: plain text or tool calls.
type ScriptReply struct {
	Text      string             `json:"text,omitempty" yaml:"text,omitempty"`
	ToolCalls []ScriptedToolCall `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
}

// ScriptedToolCall is a tool call of a canned reply. Arguments is raw JSON.
type ScriptedToolCall struct {
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// EmbeddingConfig configures the feedback embedder.
type EmbeddingConfig struct {
	// Provider is openai or hashing (default hashing).
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	// Model is the embedding model.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// Dimensions sets the vector size of the hashing embedder.
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Backend names the store. Feedback accepts memory, sqlite, redis,
	// badger and postgres. History accepts memory, sqlite, filesystem,
	// mongodb, dynamodb, gcs, s3 and azblob.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// DSN is the SQLite or Postgres connection string, a redis:// URL, the
	// MongoDB URI or the Azure storage connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	// Address is the Redis host:port.
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
	// Password authenticates against Redis.
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// DB is the Redis database number.
	DB int `json:"db,omitempty" yaml:"db,omitempty"`
	// Path is the Badger data directory or the filesystem history root.
	// An empty Badger path runs in memory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Prefix namespaces keys in key-value backends and objects in buckets.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	// Database is the MongoDB database name.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	// Table is the MongoDB collection or DynamoDB table name.
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	// Bucket is the GCS or S3 bucket, or the Azure container.
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	// Account is the Azure storage account used when DSN is empty.
	Account string `json:"account,omitempty" yaml:"account,omitempty"`
	// Region is the AWS region of the DynamoDB table or S3 bucket.
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
	// Endpoint overrides the service endpoint of a cloud backend, usually
	// to reach a local emulator.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// ResilienceConfig contains resilience settings.
type ResilienceConfig struct {
	// Timeout is the default tool timeout.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Retry configures retries of idempotent tools.
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`
	// CircuitBreaker configures circuit breaker behavior.
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// Bulkhead configures bulkhead behavior.
	Bulkhead BulkheadConfig `json:"bulkhead,omitempty" yaml:"bulkhead,omitempty"`
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// Enabled enables retry.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// MaxAttempts is the maximum retry attempts.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// InitialDelay is the first retry delay.
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	// Multiplier is the backoff multiplier.
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Enabled enables circuit breaker.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Threshold is failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// BulkheadConfig configures bulkhead behavior.
type BulkheadConfig struct {
	// Enabled enables bulkhead.
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// MaxConcurrent is the maximum concurrent executions.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// MaxQueue is how many calls may wait for a slot. Zero rejects at capacity.
	MaxQueue int `json:"max_queue,omitempty" yaml:"max_queue,omitempty"`
	// QueueTimeout bounds the wait for a slot. Zero waits for the turn's context.
	QueueTimeout Duration `json:"queue_timeout,omitempty" yaml:"queue_timeout,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is json or console.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// TelemetryConfig configures where spans are exported.
type TelemetryConfig struct {
	// Exporter is none, stdout or otlp. Empty means none.
	Exporter string `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	// Endpoint is the OTLP gRPC collector address, e.g. localhost:4317.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	// Insecure disables TLS towards the collector.
	Insecure bool `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	// SampleRate is the fraction of turns traced. Zero traces all of them.
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	// Environment is reported as the deployment environment.
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
