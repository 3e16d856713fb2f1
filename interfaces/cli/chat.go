package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-fsm/application"
	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	infraconfig "github.com/felixgeelhaar/agent-fsm/infrastructure/config"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
)

// chatOptions holds options for the chat command.
type chatOptions struct {
	conversationID string
	maxAutoTurns   int
	verbose        bool
}

// chatSession is one interactive conversation.
type chatSession struct {
	app     *App
	opts    *chatOptions
	agent   *application.Agent
	result  *infraconfig.BuildResult
	id      string
	history *conversation.Memory
	usage   inference.Counters
}

// newChatCmd creates the chat command.
func (a *App) newChatCmd() *cobra.Command {
	opts := &chatOptions{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to an agent turn by turn",
		Long: `Start or resume a conversation with the configured agent.

Each line you type is the reply to the agent's last message. Turns whose
actions do not wait for a reply run on their own, up to --max-auto-turns in
a row. The conversation is saved to the history store after every turn.

Commands:
  /recall   take back your last reply and answer again
  /history  print the conversation so far
  /quit     save and leave (also on end of input)

Examples:
  # New conversation
  agentfsm chat -c agent.yaml

  # Resume a stored conversation
  agentfsm chat -c agent.yaml --conversation 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "Conversation ID to resume (default: new)")
	cmd.Flags().IntVar(&opts.maxAutoTurns, "max-auto-turns", 5, "Turns run without user input before prompting")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print tool results and state changes")

	return cmd
}

func (a *App) chat(ctx context.Context, opts *chatOptions) error {
	_, result, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer a.release(result)

	s := &chatSession{
		app:    a,
		opts:   opts,
		agent:  result.Agent,
		result: result,
		id:     opts.conversationID,
	}
	if err := s.open(ctx); err != nil {
		return err
	}
	return s.run(ctx)
}

// open loads the conversation or starts a new one.
func (s *chatSession) open(ctx context.Context) error {
	if s.id == "" {
		s.id = uuid.NewString()
		s.history = &conversation.Memory{}
	} else {
		h, err := s.result.History.Load(ctx, s.id)
		switch {
		case errors.Is(err, conversation.ErrConversationNotFound):
			s.history = &conversation.Memory{}
		case err != nil:
			return fmt.Errorf("failed to load conversation %s: %w", s.id, err)
		default:
			s.history = h
		}
	}
	s.printf("Conversation %s with %s\n", s.id, s.agent.Name())

	if s.history.Empty() {
		return s.turn(ctx)
	}
	return nil
}

func (s *chatSession) run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.app.stdin)
	auto := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		last, _ := s.history.Last()
		if !waitsForUser(last) && auto < s.opts.maxAutoTurns {
			auto++
			if err := s.turn(ctx); err != nil {
				return err
			}
			continue
		}
		auto = 0

		s.showPending(last)
		s.printf("> ")
		if !scanner.Scan() {
			s.printf("\n")
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "/quit", "/exit":
			return s.finish()
		case "/history":
			s.printf("%s", s.history.Render())
			continue
		case "/recall":
			s.recall(ctx)
			continue
		}

		s.result.Mailbox.Deliver(line)
		if err := s.turn(ctx); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return s.finish()
}

// turn advances the conversation and saves it.
func (s *chatSession) turn(ctx context.Context) error {
	res, err := s.agent.Turn(ctx, s.id, s.history)
	if err != nil {
		return fmt.Errorf("turn failed: %w", err)
	}
	s.usage.Calls += res.Usage.Calls
	s.usage.InputTokens += res.Usage.InputTokens
	s.usage.OutputTokens += res.Usage.OutputTokens

	// Messages were already shown while waiting for the reply.
	_ = s.result.Mailbox.Outbox()

	if s.opts.verbose && !res.Bootstrapped {
		s.showExecuted()
	}
	return s.save(ctx)
}

func (s *chatSession) recall(ctx context.Context) {
	removed, err := application.Recall(s.history)
	if err != nil {
		s.printf("Nothing to recall\n")
		return
	}
	s.printf("Recalled turn %d (%s)\n", s.history.Len()+1, actionNames(removed))
	if err := s.save(ctx); err != nil {
		logging.Warn().
			Add(logging.ConversationID(s.id)).
			Add(logging.ErrorField(err)).
			Msg("failed to save recalled conversation")
	}
}

func (s *chatSession) save(ctx context.Context) error {
	if err := s.result.History.Save(ctx, s.id, s.history); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", s.id, err)
	}
	return nil
}

func (s *chatSession) finish() error {
	s.printf("Saved %s: %d turns, %d inference calls, %d/%d tokens\n",
		s.id, s.history.Len(), s.usage.Calls, s.usage.InputTokens, s.usage.OutputTokens)
	return nil
}

// showPending prints the messages the agent is about to send.
func (s *chatSession) showPending(step *conversation.Step) {
	if step == nil {
		return
	}
	for _, act := range step.Actions {
		if act.Name != tool.SendMessageName || act.Executed() {
			continue
		}
		if msg, _ := act.Arguments["message"].(string); msg != "" {
			s.printf("%s: %s\n", s.agent.Name(), msg)
		}
	}
}

// showExecuted prints the results of the step executed by the last turn.
func (s *chatSession) showExecuted() {
	n := s.history.Len()
	if n < 2 {
		return
	}
	executed := s.history.Steps[n-2]
	for _, act := range executed.Actions {
		if act.Name == tool.SendMessageName {
			continue
		}
		s.printf("  [%s] %v\n", act.Name, act.Result)
	}
	if next := s.history.Steps[n-1].StateName; next != "" && next != executed.StateName {
		s.printf("  state: %s -> %s\n", stateLabel(executed.StateName), next)
	}
}

func (s *chatSession) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.app.stdout, format, args...)
}

// waitsForUser reports whether the step has a pending send_message.
func waitsForUser(step *conversation.Step) bool {
	if step == nil {
		return false
	}
	for _, act := range step.Actions {
		if act.Name == tool.SendMessageName && !act.Executed() {
			return true
		}
	}
	return false
}

func actionNames(step conversation.Step) string {
	names := make([]string, len(step.Actions))
	for i, act := range step.Actions {
		names[i] = act.Name
	}
	return strings.Join(names, ", ")
}

func stateLabel(name string) string {
	if name == "" {
		return "(none)"
	}
	return name
}
