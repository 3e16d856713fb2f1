package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/agent-fsm/domain/conversation"
	"github.com/felixgeelhaar/agent-fsm/domain/feedback"
	"github.com/felixgeelhaar/agent-fsm/domain/tool"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/inference"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/logging"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/statemachine"
	"github.com/felixgeelhaar/agent-fsm/infrastructure/telemetry"
)

// TurnResult is the outcome of one call to Orchestrator.Turn.
type TurnResult struct {
	// History is the updated conversation, the same value that was passed in.
	History *conversation.Memory
	// Usage is the inference usage of this turn alone.
	Usage inference.Counters
	// Total is the usage accumulated by the agent's inference client.
	Total inference.Counters
	// Bootstrapped reports that the turn only seeded an empty history.
	Bootstrapped bool
	// Phases lists the protocol phases the turn went through.
	Phases []statemachine.Phase
}

// Orchestrator drives one turn: execute the latest step, decide the next
// state, decide the next tools and append the new step.
type Orchestrator struct {
	name     string
	machine  *conversation.Machine
	executor *Executor
	states   *StateDecider
	tools    *ToolDecider
	feedback feedback.Store
	client   *inference.Client
	metrics  telemetry.Metrics
	topK     int
}

// Turn advances history by one turn.
//
// An empty history receives a single send_message step and no inference
// call is made. Otherwise the latest step is executed in place, and if any
// later phase fails the error is returned and no step is appended.
func (o *Orchestrator) Turn(ctx context.Context, conversationID string, history *conversation.Memory) (TurnResult, error) {
	if history == nil {
		history = &conversation.Memory{}
	}
	turn := history.Len()
	start := time.Now()

	ctx, tally := inference.WithTally(ctx)
	ctx, span := telemetry.StartSpan(ctx, "agentfsm.turn",
		attribute.String("agentfsm.agent", o.name),
		attribute.String("agentfsm.conversation_id", conversationID),
		attribute.Int("agentfsm.turn", turn),
	)
	o.metrics.IncrementActiveTurns(ctx)
	defer o.metrics.DecrementActiveTurns(ctx)

	result := TurnResult{History: history}
	proto, err := statemachine.NewTurn(conversationID, turn)
	if err != nil {
		telemetry.EndSpan(span, err)
		return result, err
	}

	outcome := telemetry.OutcomeCommitted
	if history.Empty() {
		err = o.bootstrap(proto, history)
		outcome = telemetry.OutcomeBootstrap
		result.Bootstrapped = true
	} else {
		err = o.advance(ctx, proto, conversationID, history)
	}
	if err != nil {
		outcome = telemetry.OutcomeFailed
		o.metrics.RecordError(ctx, "turn", map[string]string{"agent": o.name})
	}

	result.Usage = tally.Counters()
	result.Total = o.client.Usage()
	result.Phases = proto.Context().Phases

	elapsed := time.Since(start)
	o.metrics.RecordTurn(ctx, o.name, outcome, elapsed)
	span.SetAttributes(
		attribute.String("agentfsm.outcome", outcome),
		attribute.Int64("agentfsm.inference.calls", result.Usage.Calls),
	)
	telemetry.EndSpan(span, err)

	event := logging.Info()
	if err != nil {
		event = logging.Error().Add(logging.ErrorField(err))
	}
	event.
		Add(logging.Agent(o.name)).
		Add(logging.ConversationID(conversationID)).
		Add(logging.Turn(turn)).
		Add(logging.Reason(outcome)).
		Add(logging.Calls(result.Usage.Calls)).
		Add(logging.Tokens(result.Usage.InputTokens, result.Usage.OutputTokens)).
		Add(logging.Duration(elapsed)).
		Msg("turn finished")

	return result, err
}

func (o *Orchestrator) bootstrap(proto *statemachine.Interpreter, history *conversation.Memory) error {
	step := conversation.Step{
		Actions: []conversation.Action{conversation.NewAction(tool.SendMessageName, nil)},
	}
	if err := proto.Bootstrap(len(step.Actions)); err != nil {
		return err
	}
	history.Append(step)
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, proto *statemachine.Interpreter, conversationID string, history *conversation.Memory) error {
	turn := history.Len() - 1
	latest, _ := history.Last()

	if err := proto.Execute(); err != nil {
		return err
	}
	execCtx, span := telemetry.StartSpan(ctx, "agentfsm.execute", attribute.Int("agentfsm.actions", len(latest.Actions)))
	o.executor.Execute(execCtx, conversationID, turn, latest)
	telemetry.EndSpan(span, nil)

	if err := proto.DecideState(); err != nil {
		return err
	}
	obsName, obsContent := observation(latest)

	var stateExemplars []feedback.Feedback
	if o.machine.Declared() {
		var err error
		stateExemplars, err = o.retrieve(ctx, "agentfsm.feedback.state", obsContent, feedback.ObservationTag(obsName))
		if err != nil {
			return proto.Fail(fmt.Errorf("retrieve state feedback: %w", err))
		}
	}

	stateCtx, span := telemetry.StartSpan(ctx, "agentfsm.decide_state")
	next, err := o.states.Decide(stateCtx, history, stateExemplars)
	telemetry.EndSpan(span, err)
	if err != nil {
		return proto.Fail(err)
	}

	if o.machine.Declared() {
		err = proto.DecideTools(next.Name)
	} else {
		err = proto.DecideFreeForm()
	}
	if err != nil {
		return proto.Fail(err)
	}
	if latest.StateName != "" && next.Name != latest.StateName {
		o.metrics.RecordStateTransition(ctx, latest.StateName, next.Name)
		logging.Debug().
			Add(logging.ConversationID(conversationID)).
			Add(logging.FromState(latest.StateName)).
			Add(logging.ToState(next.Name)).
			Msg("state changed")
	}

	toolExemplars, err := o.retrieve(ctx, "agentfsm.feedback.tools", obsContent,
		feedback.ObservationTag(obsName), feedback.StateTag(next.Name))
	if err != nil {
		return proto.Fail(fmt.Errorf("retrieve tool feedback: %w", err))
	}

	toolsCtx, span := telemetry.StartSpan(ctx, "agentfsm.decide_tools", attribute.String("agentfsm.state", next.Name))
	step, err := o.tools.Decide(toolsCtx, history, next, toolExemplars)
	telemetry.EndSpan(span, err)
	if err != nil {
		return proto.Fail(err)
	}

	if err := proto.Commit(len(step.Actions)); err != nil {
		return proto.Fail(err)
	}
	// Exemplars are recorded only on the committed step.
	latest.StateFeedbacks = stateExemplars
	latest.ToolFeedbacks = toolExemplars
	history.Append(step)
	return nil
}

// retrieve queries the feedback store. Without a store there are no
// exemplars.
func (o *Orchestrator) retrieve(ctx context.Context, spanName, text string, tags ...string) ([]feedback.Feedback, error) {
	if o.feedback == nil || o.topK <= 0 {
		return nil, nil
	}
	ctx, span := telemetry.StartSpan(ctx, spanName)
	found, err := o.feedback.Search(ctx, feedback.Query{Text: text, Tags: tags, TopK: o.topK})
	telemetry.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	logging.Debug().
		Add(logging.Str("tags", fmt.Sprint(tags))).
		Add(logging.FeedbackCount(len(found))).
		Msg("feedback retrieved")
	return found, nil
}
