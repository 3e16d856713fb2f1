package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	domaininspector "github.com/felixgeelhaar/agent-fsm/domain/inspector"
	infraconfig "github.com/felixgeelhaar/agent-fsm/infrastructure/config"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inspector"
)

// inspectOptions holds options for the inspect subcommands.
type inspectOptions struct {
	format     string
	outputPath string
}

// newInspectCmd creates the inspect command.
func (a *App) newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Export the state machine or a stored conversation",
		Long: `Render the declared state machine or a persisted conversation.

Formats:
  mermaid  Mermaid state or sequence diagram (default)
  dot      Graphviz DOT (machine only)
  json     Indented JSON

Examples:
  # Draw the machine as Mermaid
  agentfsm inspect machine -c agent.yaml

  # Render with Graphviz
  agentfsm inspect machine -c agent.yaml --format dot | dot -Tsvg > machine.svg

  # List stored conversations and export one
  agentfsm inspect conversations -c agent.yaml
  agentfsm inspect history 6f1c... -c agent.yaml --format json`,
	}

	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "mermaid", "Output format (mermaid, dot, json)")
	cmd.PersistentFlags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path (default: stdout)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "machine",
			Short: "Export the declared state machine",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.inspectMachine(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "history <conversation-id>",
			Short: "Export a stored conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.inspectHistory(cmd.Context(), args[0], opts)
			},
		},
		&cobra.Command{
			Use:   "conversations",
			Short: "List stored conversation IDs",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.listConversations(cmd.Context())
			},
		},
	)

	return cmd
}

// inspectMachine exports the machine without building the agent.
func (a *App) inspectMachine(ctx context.Context, opts *inspectOptions) error {
	format, err := domaininspector.ParseFormat(opts.format)
	if err != nil {
		return fmt.Errorf("%w: %s", err, opts.format)
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	machine, err := infraconfig.Machine(cfg)
	if err != nil {
		return fmt.Errorf("invalid machine: %w", err)
	}

	out, err := inspector.NewDefaultInspector(cfg.Name, machine, nil).ExportMachine(ctx, format)
	if err != nil {
		return fmt.Errorf("failed to export machine: %w", err)
	}
	return a.writeExport(out, opts.outputPath)
}

// inspectHistory exports a conversation from the configured history store.
func (a *App) inspectHistory(ctx context.Context, id string, opts *inspectOptions) error {
	format, err := domaininspector.ParseFormat(opts.format)
	if err != nil {
		return fmt.Errorf("%w: %s", err, opts.format)
	}
	cfg, result, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer a.release(result)

	out, err := inspector.NewDefaultInspector(cfg.Name, result.Agent.Machine(), result.History).
		ExportHistory(ctx, id, format)
	if err != nil {
		return fmt.Errorf("failed to export conversation %s: %w", id, err)
	}
	return a.writeExport(out, opts.outputPath)
}

func (a *App) listConversations(ctx context.Context) error {
	_, result, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer a.release(result)

	ids, err := result.History.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No conversations stored")
		return nil
	}
	for _, id := range ids {
		_, _ = fmt.Fprintln(a.stdout, id)
	}
	return nil
}

func (a *App) writeExport(out []byte, path string) error {
	if path == "" {
		_, err := a.stdout.Write(append(out, '\n'))
		return err
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(a.stdout, "Exported to %s\n", path)
	return nil
}
