package proposals

import (
	"context"

	"github.com/dvloznov/finance-assistant/internal/domain"
)

// Store is the registry of proposals owned by one conversation session.
// Every state-changing method is an atomic compare-and-set on the proposal's
// status: two callers racing on the same id see exactly one winner.
type Store interface {
	// Create materializes a new pending proposal. The payload is copied, so
	// later changes by the caller do not leak into the stored original.
	Create(ctx context.Context, t domain.ProposalType, payload domain.Payload, messageID string) (*domain.Proposal, error)

	// Get returns a copy of the proposal or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Proposal, error)

	// Revise replaces the payload and moves the proposal to revised.
	Revise(ctx context.Context, id string, payload domain.Payload) (*domain.Proposal, error)

	// Confirm marks the proposal confirmed with the id of the applied entity.
	Confirm(ctx context.Context, id string, resultID string) (*domain.Proposal, error)

	// Discard moves the proposal to discarded.
	Discard(ctx context.Context, id string) (*domain.Proposal, error)

	// ListPending returns proposals awaiting a decision in creation order.
	ListPending(ctx context.Context) ([]*domain.Proposal, error)

	// List returns proposals matching the filter in creation order.
	List(ctx context.Context, filter Filter) ([]*domain.Proposal, error)

	// BeginApply reserves an awaiting proposal for application and returns
	// its snapshot. While reserved, every other transition on the id fails
	// with domain.ErrInvalidState.
	BeginApply(ctx context.Context, id string) (*domain.Proposal, error)

	// FinishApply confirms a reserved proposal. A non-nil applied payload
	// was supplied at confirm time and is recorded as the latest revision.
	FinishApply(ctx context.Context, id string, resultID string, applied domain.Payload) (*domain.Proposal, error)

	// AbortApply releases a reservation, leaving the status unchanged.
	AbortApply(ctx context.Context, id string) error

	// Reset drops every proposal. It fails with domain.ErrBusy while any
	// proposal is reserved by BeginApply.
	Reset(ctx context.Context) error
}

// Filter defines filtering criteria for listing proposals.
type Filter struct {
	// Status filters by status. Empty means any.
	Status domain.ProposalStatus

	// Type filters by proposal type. Empty means any.
	Type domain.ProposalType

	// MessageID filters by the assistant message that produced the proposal.
	MessageID string

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
