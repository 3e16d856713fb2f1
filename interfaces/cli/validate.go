package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	domainconfig "github.com/felixgeelhaar/agent-fsm/domain/config"
	infraconfig "github.com/felixgeelhaar/agent-fsm/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	build bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an agent configuration file for correctness.

This command checks:
  - File format (YAML or JSON) and unknown keys
  - Required fields (name, version, inference provider)
  - State references in the machine and its transitions
  - Tool definitions and storage backends
  - Environment variable references (with --strict)

With --build the agent is also assembled, which connects to the configured
storage backends.

Examples:
  # Validate a configuration file
  agentfsm validate -c agent.yaml

  # Strict validation (fail on missing env vars)
  agentfsm validate -c agent.yaml --strict

  # Connect to the configured stores as well
  agentfsm validate -c agent.yaml --build`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.build, "build", false, "Assemble the agent and connect to its stores")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(ctx context.Context, opts *validateOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if opts.build {
		result, err := infraconfig.NewBuilder(cfg).Build(ctx)
		if err != nil {
			return fmt.Errorf("configuration build failed: %w", err)
		}
		a.release(result)
	}

	_, _ = fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	_, _ = fmt.Fprintf(a.stdout, "  Name: %s\n", cfg.Name)
	_, _ = fmt.Fprintf(a.stdout, "  Version: %s\n", cfg.Version)
	if cfg.Description != "" {
		_, _ = fmt.Fprintf(a.stdout, "  Description: %s\n", cfg.Description)
	}

	a.printSummary(cfg)
	return nil
}

func (a *App) printSummary(cfg *domainconfig.AgentConfig) {
	_, _ = fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(a.stdout, "  Inference: %s", cfg.Inference.Provider)
	if cfg.Inference.Model != "" {
		_, _ = fmt.Fprintf(a.stdout, " (%s)", cfg.Inference.Model)
	}
	_, _ = fmt.Fprintln(a.stdout)

	if cfg.Machine.Initial == "" {
		_, _ = fmt.Fprintf(a.stdout, "  Machine: none (free-form)\n")
	} else {
		transitions := 0
		for _, to := range cfg.Machine.Transitions {
			transitions += len(to)
		}
		_, _ = fmt.Fprintf(a.stdout, "  Machine: %d states, %d transitions, initial %s\n",
			len(cfg.Machine.States), transitions, cfg.Machine.Initial)
	}

	if len(cfg.Tools.Inline) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "  Inline tools: %d\n", len(cfg.Tools.Inline))
		for _, t := range cfg.Tools.Inline {
			_, _ = fmt.Fprintf(a.stdout, "    - %s\n", t.Name)
		}
	}

	_, _ = fmt.Fprintf(a.stdout, "  Feedback store: %s\n", storeName(cfg.Feedback.Backend, "none"))
	_, _ = fmt.Fprintf(a.stdout, "  History store: %s\n", storeName(cfg.History.Backend, "memory"))
	if t := cfg.Telemetry; t.Exporter != "" && t.Exporter != "none" {
		_, _ = fmt.Fprintf(a.stdout, "  Telemetry: %s", t.Exporter)
		if t.Endpoint != "" {
			_, _ = fmt.Fprintf(a.stdout, " (%s)", t.Endpoint)
		}
		_, _ = fmt.Fprintln(a.stdout)
	}

	if rl := cfg.Tools.RateLimit; rl.Enabled {
		_, _ = fmt.Fprintf(a.stdout, "  Rate limiting: enabled (rate=%d, burst=%d)\n", rl.Rate, rl.Burst)
		names := make([]string, 0, len(rl.PerTool))
		for name := range rl.PerTool {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			tl := rl.PerTool[name]
			_, _ = fmt.Fprintf(a.stdout, "    - %s: rate=%d, burst=%d\n", name, tl.Rate, tl.Burst)
		}
	}
}

func storeName(backend, fallback string) string {
	if backend == "" {
		return fallback
	}
	return backend
}
