package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

// Kind names a proposal lifecycle event.
type Kind string

const (
	KindConfirmed Kind = "proposal.confirmed"
	KindDiscarded Kind = "proposal.discarded"
	KindRevised   Kind = "proposal.revised"
)

// Event is the audit record published after a proposal decision.
type Event struct {
	Event          Kind                  `json:"event"`
	ConversationID string                `json:"conversation_id"`
	ProposalID     string                `json:"proposal_id"`
	ProposalType   domain.ProposalType   `json:"proposal_type"`
	Status         domain.ProposalStatus `json:"status"`
	ResultID       *string               `json:"result_id"`
	Timestamp      time.Time             `json:"timestamp"`
}

// NewEvent builds the event for a proposal snapshot.
func NewEvent(kind Kind, p *domain.Proposal, at time.Time) *Event {
	e := &Event{
		Event:          kind,
		ConversationID: p.ConversationID,
		ProposalID:     p.ID,
		ProposalType:   p.Type,
		Status:         p.Status,
		Timestamp:      at.UTC(),
	}
	if p.ResultID != nil {
		id := *p.ResultID
		e.ResultID = &id
	}
	return e
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON creates an event from JSON bytes
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Publisher sends proposal events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// Handler processes one delivered event.
type Handler func(ctx context.Context, e *Event) error

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, *Event) error { return nil }
func (Noop) Close() error                          { return nil }

var _ Publisher = Noop{}
