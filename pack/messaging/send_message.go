// Package messaging provides send_message, the capability an agent uses to
// talk to the person on the other side of the conversation.
package messaging

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/agent-fsm/domain/tool"
)

// ToolName is the name of the message capability. Bootstrap turns and
// empty tool selections fall back to it.
const ToolName = tool.SendMessageName

// Relay delivers an agent message and returns the caller's reply, if any.
type Relay interface {
	Relay(ctx context.Context, message string) (string, error)
}

// RelayFunc adapts a function to Relay.
type RelayFunc func(ctx context.Context, message string) (string, error)

// Relay implements Relay.
func (f RelayFunc) Relay(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

type sendMessageInput struct {
	Message string `json:"message,omitempty" jsonschema:"the text to send to the user"`
}

// New creates the send_message tool over relay.
//
// The result carries the delivered message and, when the relay produced one,
// the reply under "user_message".
func New(relay Relay) tool.Tool {
	return tool.NewBuilder(ToolName).
		WithDescription("Send a message to the user and wait for their reply").
		WithInputSchema(tool.MustSchemaFor[sendMessageInput]()).
		WithHandler(func(ctx context.Context, args map[string]any) (map[string]any, error) {
			msg, _ := args["message"].(string)
			reply, err := relay.Relay(ctx, msg)
			if err != nil {
				return nil, fmt.Errorf("relay message: %w", err)
			}
			out := map[string]any{"delivered": true}
			if msg != "" {
				out["message"] = msg
			}
			if reply != "" {
				out["user_message"] = reply
			}
			return out, nil
		}).
		MustBuild()
}

// WriterRelay writes each non-empty message as one line to w and never
// produces a reply.
func WriterRelay(w io.Writer) Relay {
	var mu sync.Mutex
	return RelayFunc(func(_ context.Context, message string) (string, error) {
		if message == "" {
			return "", nil
		}
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintln(w, message)
		return "", err
	})
}

// Mailbox is a Relay fed by the caller: Deliver stages the user's next
// reply and the following Relay call consumes it. Outgoing messages are
// recorded and can be drained with Outbox.
type Mailbox struct {
	mu     sync.Mutex
	reply  string
	outbox []string
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Deliver stages the reply returned by the next Relay call.
func (m *Mailbox) Deliver(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
}

// Relay implements Relay.
func (m *Mailbox) Relay(_ context.Context, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if message != "" {
		m.outbox = append(m.outbox, message)
	}
	reply := m.reply
	m.reply = ""
	return reply, nil
}

// Outbox returns and clears the messages relayed so far.
func (m *Mailbox) Outbox() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.outbox
	m.outbox = nil
	return out
}
