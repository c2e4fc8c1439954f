package domain

import "time"

// ProposalType identifies which domain mutation a proposal would perform.
type ProposalType string

const (
	ProposalTypeTransaction ProposalType = "transaction"
	ProposalTypeBudget      ProposalType = "budget"
	ProposalTypeCategory    ProposalType = "category"
	ProposalTypeTransfer    ProposalType = "transfer"
)

// ProposalStatus is the lifecycle state of a proposal.
//
//	pending -> confirmed | discarded | revised
//	revised -> revised | confirmed | discarded
//
// confirmed and discarded are terminal.
type ProposalStatus string

const (
	// StatusPending is the initial status of a materialized proposal.
	StatusPending ProposalStatus = "pending"
	// StatusRevised means the user edited the payload at least once.
	StatusRevised ProposalStatus = "revised"
	// StatusConfirmed means the payload was applied to the ledger.
	StatusConfirmed ProposalStatus = "confirmed"
	// StatusDiscarded means the user rejected the proposal.
	StatusDiscarded ProposalStatus = "discarded"
)

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusDiscarded
}

// Awaiting reports whether the proposal still needs a user decision.
func (s ProposalStatus) Awaiting() bool {
	return s == StatusPending || s == StatusRevised
}

// Proposal is a reviewable candidate mutation. OriginalPayload never changes
// after creation; Payload is the latest accepted content.
type Proposal struct {
	ID              string         `json:"id"`
	ConversationID  string         `json:"conversation_id"`
	MessageID       string         `json:"message_id,omitempty"`
	Type            ProposalType   `json:"proposal_type"`
	Status          ProposalStatus `json:"status"`
	Payload         Payload        `json:"payload"`
	OriginalPayload Payload        `json:"original_payload"`
	RevisedPayload  Payload        `json:"revised_payload"`
	AppliedAt       *time.Time     `json:"applied_at"`
	ResultID        *string        `json:"result_id"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Clone returns a deep copy so callers can never reach store-owned state.
func (p *Proposal) Clone() *Proposal {
	c := *p
	if p.Payload != nil {
		c.Payload = p.Payload.Clone()
	}
	if p.OriginalPayload != nil {
		c.OriginalPayload = p.OriginalPayload.Clone()
	}
	if p.RevisedPayload != nil {
		c.RevisedPayload = p.RevisedPayload.Clone()
	}
	if p.AppliedAt != nil {
		t := *p.AppliedAt
		c.AppliedAt = &t
	}
	c.ResultID = cloneString(p.ResultID)
	return &c
}

// ApplyResult is the per-proposal outcome of a confirmation.
type ApplyResult struct {
	ProposalID string  `json:"proposal_id"`
	Success    bool    `json:"success"`
	EntityID   *string `json:"entity_id"`
	Error      *string `json:"error"`
}
