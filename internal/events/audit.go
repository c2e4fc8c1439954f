package events

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Audit returns a Handler that writes one log line per proposal decision.
func Audit(log zerolog.Logger) Handler {
	return func(ctx context.Context, e *Event) error {
		if e == nil || e.ProposalID == "" {
			return errors.New("audit: event without proposal id")
		}

		entry := log.Info().
			Str("event", string(e.Event)).
			Str("conversation_id", e.ConversationID).
			Str("proposal_id", e.ProposalID).
			Str("proposal_type", string(e.ProposalType)).
			Str("status", string(e.Status)).
			Time("decided_at", e.Timestamp)
		if e.ResultID != nil {
			entry = entry.Str("result_id", *e.ResultID)
		}
		entry.Msg("Proposal decision")
		return nil
	}
}
