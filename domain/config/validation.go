package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

var (
	validProviders  = map[string]bool{"openai": true, "anthropic": true, "ollama": true, "scripted": true}
	validEmbedders  = map[string]bool{"": true, "hashing": true, "openai": true}
	validFeedback   = map[string]bool{"": true, "memory": true, "sqlite": true, "redis": true, "badger": true, "postgres": true}
	validHistory    = map[string]bool{"": true, "memory": true, "sqlite": true, "filesystem": true, "mongodb": true, "dynamodb": true, "gcs": true, "s3": true, "azblob": true}
	validLogLevels  = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"": true, "json": true, "console": true}
	validExporters  = map[string]bool{"": true, "none": true, "stdout": true, "otlp": true}
)

// Validator validates agent configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *AgentConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateAgent(config)
	v.validateMachine(config)
	v.validateTools(config)
	v.validateInference(config)
	v.validateStores(config)
	v.validateResilience(config)
	v.validateLogging(config)
	v.validateTelemetry(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateRequired(config *AgentConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateAgent(config *AgentConfig) {
	if config.Agent.TopK < 0 {
		v.addError("agent.top_k", "top_k must be non-negative")
	}
}

func (v *Validator) validateMachine(config *AgentConfig) {
	m := config.Machine
	declared := make(map[string]bool, len(m.States))
	for i, s := range m.States {
		path := fmt.Sprintf("machine.states[%d]", i)
		if s.Name == "" {
			v.addError(path+".name", "state name is required")
			continue
		}
		if declared[s.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate state: %s", s.Name))
		}
		declared[s.Name] = true
	}

	if m.Initial != "" && !declared[m.Initial] {
		v.addError("machine.initial", fmt.Sprintf("unknown state: %s", m.Initial))
	}

	for from, targets := range m.Transitions {
		if !declared[from] {
			v.addError("machine.transitions."+from, fmt.Sprintf("unknown state: %s", from))
		}
		for _, to := range targets {
			if !declared[to] {
				v.addError("machine.transitions."+from, fmt.Sprintf("unknown target state: %s", to))
			}
		}
	}
}

func (v *Validator) validateTools(config *AgentConfig) {
	seen := make(map[string]bool, len(config.Tools.Inline))
	for i, tool := range config.Tools.Inline {
		path := fmt.Sprintf("tools.inline[%d]", i)
		if tool.Name == "" {
			v.addError(path+".name", "tool name is required")
		} else if seen[tool.Name] {
			v.addError(path+".name", fmt.Sprintf("duplicate tool: %s", tool.Name))
		}
		seen[tool.Name] = true
		if tool.Description == "" {
			v.addError(path+".description", "tool description is required")
		}
		switch tool.Handler.Type {
		case "":
			v.addError(path+".handler.type", "handler type is required")
		case "http":
			if tool.Handler.URL == "" {
				v.addError(path+".handler.url", "URL is required for http handler")
			}
		default:
			v.addError(path+".handler.type", fmt.Sprintf("unknown handler type: %s", tool.Handler.Type))
		}
	}

	if config.Tools.RateLimit.Enabled {
		if config.Tools.RateLimit.Rate <= 0 {
			v.addError("tools.rate_limit.rate", "rate must be positive when enabled")
		}
		if config.Tools.RateLimit.Burst <= 0 {
			v.addError("tools.rate_limit.burst", "burst must be positive when enabled")
		}
		for name, tl := range config.Tools.RateLimit.PerTool {
			if tl.Rate <= 0 || tl.Burst <= 0 {
				v.addError("tools.rate_limit.per_tool."+name, "rate and burst must be positive")
			}
		}
	}
}

func (v *Validator) validateInference(config *AgentConfig) {
	inf := config.Inference
	if inf.Provider == "" {
		v.addError("inference.provider", "provider is required")
	} else if !validProviders[inf.Provider] {
		v.addError("inference.provider", fmt.Sprintf("unknown provider: %s", inf.Provider))
	}
	if inf.Provider == "scripted" && len(inf.Script) == 0 {
		v.addError("inference.script", "script is required for scripted provider")
	}
	for i, reply := range inf.Script {
		for j, call := range reply.ToolCalls {
			if call.Name == "" {
				v.addError(fmt.Sprintf("inference.script[%d].tool_calls[%d].name", i, j), "tool call name is required")
			}
		}
	}
	if inf.MaxTokens < 0 {
		v.addError("inference.max_tokens", "max_tokens must be non-negative")
	}
	if inf.Retry.Enabled && inf.Retry.MaxAttempts <= 0 {
		v.addError("inference.retry.max_attempts", "max_attempts must be positive when enabled")
	}

	if !validEmbedders[config.Embedding.Provider] {
		v.addError("embedding.provider", fmt.Sprintf("unknown provider: %s", config.Embedding.Provider))
	}
	if config.Embedding.Dimensions < 0 {
		v.addError("embedding.dimensions", "dimensions must be non-negative")
	}
}

func (v *Validator) validateStores(config *AgentConfig) {
	fb := config.Feedback
	if !validFeedback[fb.Backend] {
		v.addError("feedback.backend", fmt.Sprintf("unknown backend: %s", fb.Backend))
	}
	switch fb.Backend {
	case "sqlite", "postgres":
		if fb.DSN == "" {
			v.addError("feedback.dsn", fmt.Sprintf("dsn is required for %s backend", fb.Backend))
		}
	case "redis":
		if fb.Address == "" && fb.DSN == "" {
			v.addError("feedback.address", "address or dsn is required for redis backend")
		}
	}

	if !validHistory[config.History.Backend] {
		v.addError("history.backend", fmt.Sprintf("unknown backend: %s", config.History.Backend))
	}
	h := config.History
	switch h.Backend {
	case "sqlite", "mongodb":
		if h.DSN == "" {
			v.addError("history.dsn", fmt.Sprintf("dsn is required for %s backend", h.Backend))
		}
	case "filesystem":
		if h.Path == "" {
			v.addError("history.path", "path is required for filesystem backend")
		}
	case "gcs", "s3", "azblob":
		if h.Bucket == "" {
			v.addError("history.bucket", fmt.Sprintf("bucket is required for %s backend", h.Backend))
		}
		if h.Backend == "azblob" && h.DSN == "" && h.Account == "" {
			v.addError("history.account", "account or dsn is required for azblob backend")
		}
	}
}

func (v *Validator) validateResilience(config *AgentConfig) {
	if config.Resilience.Retry.Enabled {
		if config.Resilience.Retry.MaxAttempts <= 0 {
			v.addError("resilience.retry.max_attempts", "max_attempts must be positive when enabled")
		}
		if config.Resilience.Retry.Multiplier != 0 && config.Resilience.Retry.Multiplier < 1 {
			v.addError("resilience.retry.multiplier", "multiplier must be >= 1")
		}
	}

	if config.Resilience.CircuitBreaker.Enabled {
		if config.Resilience.CircuitBreaker.Threshold <= 0 {
			v.addError("resilience.circuit_breaker.threshold", "threshold must be positive when enabled")
		}
	}

	if config.Resilience.Bulkhead.Enabled {
		if config.Resilience.Bulkhead.MaxConcurrent <= 0 {
			v.addError("resilience.bulkhead.max_concurrent", "max_concurrent must be positive when enabled")
		}
		if config.Resilience.Bulkhead.MaxQueue < 0 {
			v.addError("resilience.bulkhead.max_queue", "max_queue must not be negative")
		}
		if config.Resilience.Bulkhead.QueueTimeout < 0 {
			v.addError("resilience.bulkhead.queue_timeout", "queue_timeout must not be negative")
		}
	}
}

func (v *Validator) validateLogging(config *AgentConfig) {
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}

func (v *Validator) validateTelemetry(config *AgentConfig) {
	t := config.Telemetry
	if !validExporters[t.Exporter] {
		v.addError("telemetry.exporter", fmt.Sprintf("unknown exporter: %s", t.Exporter))
	}
	if t.Exporter == "otlp" && t.Endpoint == "" {
		v.addError("telemetry.endpoint", "endpoint is required for otlp exporter")
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		v.addError("telemetry.sample_rate", "sample_rate must be between 0 and 1")
	}
}
