package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/proposals"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of proposals.Store.
// It is safe for concurrent use; one mutex serializes every transition.
// Data lives as long as the owning session.
type Store struct {
	mu        sync.Mutex
	proposals map[string]*entry
	seq       uint64
	clock     func() time.Time
	newID     func() string
	convID    string
}

type entry struct {
	proposal *domain.Proposal
	seq      uint64
	applying bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator overrides proposal id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// NewStore creates an empty store for the given conversation.
func NewStore(conversationID string, opts ...Option) *Store {
	s := &Store{
		proposals: make(map[string]*entry),
		clock:     time.Now,
		newID:     uuid.NewString,
		convID:    conversationID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements the proposals.Store interface.
func (s *Store) Create(ctx context.Context, t domain.ProposalType, payload domain.Payload, messageID string) (*domain.Proposal, error) {
	if payload == nil {
		return nil, domain.Invalid("payload", "is required")
	}
	if payload.ProposalType() != t {
		return nil, domain.Invalid("proposal_type", "payload is %s, not %s", payload.ProposalType(), t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.proposals[id]; exists {
		return nil, fmt.Errorf("proposal id collision: %s", id)
	}

	s.seq++
	p := &domain.Proposal{
		ID:              id,
		ConversationID:  s.convID,
		MessageID:       messageID,
		Type:            t,
		Status:          domain.StatusPending,
		Payload:         payload.Clone(),
		OriginalPayload: payload.Clone(),
		CreatedAt:       s.clock(),
	}
	s.proposals[id] = &entry{proposal: p, seq: s.seq}

	return p.Clone(), nil
}

// Get implements the proposals.Store interface.
func (s *Store) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return e.proposal.Clone(), nil
}

// Revise implements the proposals.Store interface.
func (s *Store) Revise(ctx context.Context, id string, payload domain.Payload) (*domain.Proposal, error) {
	if payload == nil {
		return nil, domain.Invalid("payload", "is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.transition(id, "revise")
	if err != nil {
		return nil, err
	}
	if payload.ProposalType() != e.proposal.Type {
		return nil, domain.Invalid("payload", "expected a %s payload, got %s", e.proposal.Type, payload.ProposalType())
	}

	e.proposal.Payload = payload.Clone()
	e.proposal.RevisedPayload = payload.Clone()
	e.proposal.Status = domain.StatusRevised

	return e.proposal.Clone(), nil
}

// Confirm implements the proposals.Store interface.
func (s *Store) Confirm(ctx context.Context, id string, resultID string) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.transition(id, "confirm")
	if err != nil {
		return nil, err
	}
	s.markConfirmed(e, resultID)
	return e.proposal.Clone(), nil
}

// Discard implements the proposals.Store interface.
func (s *Store) Discard(ctx context.Context, id string) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.transition(id, "discard")
	if err != nil {
		return nil, err
	}
	e.proposal.Status = domain.StatusDiscarded
	return e.proposal.Clone(), nil
}

// ListPending implements the proposals.Store interface.
func (s *Store) ListPending(ctx context.Context) ([]*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Proposal
	for _, e := range s.ordered() {
		if e.proposal.Status.Awaiting() {
			result = append(result, e.proposal.Clone())
		}
	}
	return result, nil
}

// List implements the proposals.Store interface.
func (s *Store) List(ctx context.Context, filter proposals.Filter) ([]*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Proposal
	for _, e := range s.ordered() {
		p := e.proposal
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		if filter.MessageID != "" && p.MessageID != filter.MessageID {
			continue
		}
		result = append(result, p.Clone())
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.Proposal{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// BeginApply implements the proposals.Store interface.
func (s *Store) BeginApply(ctx context.Context, id string) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.transition(id, "confirm")
	if err != nil {
		return nil, err
	}
	e.applying = true
	return e.proposal.Clone(), nil
}

// FinishApply implements the proposals.Store interface.
func (s *Store) FinishApply(ctx context.Context, id string, resultID string, applied domain.Payload) (*domain.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !e.applying {
		return nil, fmt.Errorf("proposal %s is not being applied: %w", id, domain.ErrInvalidState)
	}
	e.applying = false
	if applied != nil {
		e.proposal.Payload = applied.Clone()
		e.proposal.RevisedPayload = applied.Clone()
	}
	s.markConfirmed(e, resultID)
	return e.proposal.Clone(), nil
}

// AbortApply implements the proposals.Store interface.
func (s *Store) AbortApply(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.applying = false
	return nil
}

// Reset implements the proposals.Store interface.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.proposals {
		if e.applying {
			return fmt.Errorf("proposal %s is being applied: %w", id, domain.ErrBusy)
		}
	}
	s.proposals = make(map[string]*entry)
	return nil
}

// lookup must be called with s.mu held.
func (s *Store) lookup(id string) (*entry, error) {
	e, exists := s.proposals[id]
	if !exists {
		return nil, domain.NotFound("proposal", id)
	}
	return e, nil
}

// transition checks that op is a legal edge from the current status.
// Must be called with s.mu held.
func (s *Store) transition(id, op string) (*entry, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.applying || !e.proposal.Status.Awaiting() {
		status := e.proposal.Status
		if e.applying {
			status = "applying"
		}
		return nil, &domain.StateError{ID: id, Status: status, Op: op}
	}
	return e, nil
}

func (s *Store) markConfirmed(e *entry, resultID string) {
	now := s.clock()
	e.proposal.Status = domain.StatusConfirmed
	e.proposal.AppliedAt = &now
	e.proposal.ResultID = domain.StringPtr(resultID)
}

func (s *Store) ordered() []*entry {
	entries := make([]*entry, 0, len(s.proposals))
	for _, e := range s.proposals {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].proposal, entries[j].proposal
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}

// Ensure Store implements proposals.Store interface.
var _ proposals.Store = (*Store)(nil)
