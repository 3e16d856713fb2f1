package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-fsm/application"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	infraconfig "github.com/felixgeelhaar/agent-fsm/infrastructure/config"
)

// errNoFeedbackStore is returned when the configuration has no feedback backend.
var errNoFeedbackStore = errors.New("no feedback store configured")

// feedbackAddOptions holds options for feedback add.
type feedbackAddOptions struct {
	conversationID string
	turn           int
	action         int
}

// feedbackSearchOptions holds options for feedback search.
type feedbackSearchOptions struct {
	text        string
	state       string
	observation string
	topK        int
	outputJSON  bool
}

// newFeedbackCmd creates the feedback command.
func (a *App) newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Manage the exemplars that ground decisions",
		Long: `Label turns of stored conversations as exemplars and query the store.

An exemplar pairs what the agent observed (the last action of the previous
turn and its result) with what it decided, in the state it was in. Similar
exemplars are shown to the model when it picks states and tools.

Examples:
  # Store the first action of turn 3 as an exemplar
  agentfsm feedback add -c agent.yaml --conversation 6f1c... --turn 3

  # Find exemplars close to a reply in the triage state
  agentfsm feedback search -c agent.yaml --text "where is my order" --state triage`,
	}

	cmd.AddCommand(
		a.newFeedbackAddCmd(),
		a.newFeedbackSearchCmd(),
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete an exemplar",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withFeedback(cmd.Context(), func(ctx context.Context, r *infraconfig.BuildResult) error {
					if err := r.Feedback.Delete(ctx, args[0]); err != nil {
						return fmt.Errorf("failed to delete %s: %w", args[0], err)
					}
					_, _ = fmt.Fprintf(a.stdout, "Deleted %s\n", args[0])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "count",
			Short: "Print the number of stored exemplars",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withFeedback(cmd.Context(), func(ctx context.Context, r *infraconfig.BuildResult) error {
					n, err := r.Feedback.Count(ctx)
					if err != nil {
						return fmt.Errorf("failed to count feedback: %w", err)
					}
					_, _ = fmt.Fprintln(a.stdout, n)
					return nil
				})
			},
		},
	)

	return cmd
}

func (a *App) newFeedbackAddCmd() *cobra.Command {
	opts := &feedbackAddOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a turn of a conversation as an exemplar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFeedback(cmd.Context(), func(ctx context.Context, r *infraconfig.BuildResult) error {
				return a.addFeedback(ctx, r, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation ID (required)")
	cmd.Flags().IntVar(&opts.turn, "turn", 0, "Turn number, counting the bootstrap turn as 1 (required)")
	cmd.Flags().IntVar(&opts.action, "action", 1, "Action number within the turn")
	_ = cmd.MarkFlagRequired("conversation")
	_ = cmd.MarkFlagRequired("turn")

	return cmd
}

func (a *App) addFeedback(ctx context.Context, r *infraconfig.BuildResult, opts *feedbackAddOptions) error {
	history, err := r.History.Load(ctx, opts.conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", opts.conversationID, err)
	}

	fb, err := application.Exemplar(history, opts.turn-1, opts.action-1)
	if err != nil {
		return err
	}
	stored, err := r.Feedback.Add(ctx, fb)
	if err != nil {
		return fmt.Errorf("failed to store feedback: %w", err)
	}

	_, _ = fmt.Fprintf(a.stdout, "Stored %s\n", stored.ID)
	_, _ = fmt.Fprintf(a.stdout, "  %s\n", describe(stored))
	return nil
}

func (a *App) newFeedbackSearchCmd() *cobra.Command {
	opts := &feedbackSearchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank exemplars by similarity to a text",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withFeedback(cmd.Context(), func(ctx context.Context, r *infraconfig.BuildResult) error {
				return a.searchFeedback(ctx, r, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.text, "text", "", "Text ranked against stored observations")
	cmd.Flags().StringVar(&opts.state, "state", "", "Only exemplars decided in this state")
	cmd.Flags().StringVar(&opts.observation, "observation", "", "Only exemplars observing this action")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *App) searchFeedback(ctx context.Context, r *infraconfig.BuildResult, opts *feedbackSearchOptions) error {
	var tags []string
	if opts.state != "" {
		tags = append(tags, feedback.StateTag(opts.state))
	}
	if opts.observation != "" {
		tags = append(tags, feedback.ObservationTag(opts.observation))
	}

	found, err := r.Feedback.Search(ctx, feedback.Query{Text: opts.text, Tags: tags, TopK: opts.topK})
	if err != nil {
		return fmt.Errorf("failed to search feedback: %w", err)
	}

	if opts.outputJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if found == nil {
			found = []feedback.Feedback{}
		}
		return enc.Encode(found)
	}
	if len(found) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No feedback found")
		return nil
	}
	for _, fb := range found {
		_, _ = fmt.Fprintf(a.stdout, "%s  %s\n", fb.ID, describe(fb))
	}
	return nil
}

// withFeedback builds the agent and runs fn when a feedback store exists.
func (a *App) withFeedback(ctx context.Context, fn func(context.Context, *infraconfig.BuildResult) error) error {
	_, result, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer a.release(result)

	if result.Feedback == nil {
		return errNoFeedbackStore
	}
	return fn(ctx, result)
}

func describe(fb feedback.Feedback) string {
	return fmt.Sprintf("[%s] %s: %s -> %s: %s",
		stateLabel(fb.StateName), fb.ObservationName, fb.ObservationContent, fb.ActionName, fb.ActionContent)
}
