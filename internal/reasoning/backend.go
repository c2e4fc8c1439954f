package reasoning

import (
	"context"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/tools"
)

// Request is one call to the reasoning backend.
type Request struct {
	// System is the system instruction for the round.
	System string

	// History is the conversation so far, oldest first. It ends with the
	// latest user message or with tool results the model asked for.
	History []domain.ConversationMessage

	// Tools the model may call.
	Tools []tools.Definition
}

// Reply is what the model answered: text, tool calls, or both.
type Reply struct {
	Text      string
	ToolCalls []domain.ToolCall
}

// Backend provides an interface for language model completions.
// This interface enables mocking and testing of the conversation loop.
type Backend interface {
	// Complete returns the model's next turn for the given history.
	Complete(ctx context.Context, req Request) (*Reply, error)
}

// WithTimeout bounds every Complete call of b by d.
func WithTimeout(b Backend, d time.Duration) Backend {
	if d <= 0 {
		return b
	}
	return timeoutBackend{next: b, timeout: d}
}

type timeoutBackend struct {
	next    Backend
	timeout time.Duration
}

func (t timeoutBackend) Complete(ctx context.Context, req Request) (*Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}
