package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/events"
	"github.com/dvloznov/finance-assistant/internal/ledger"
	"github.com/dvloznov/finance-assistant/internal/proposals"
	"github.com/dvloznov/finance-assistant/internal/telemetry"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds how many proposals of one batch are applied
// at the same time.
const DefaultBatchConcurrency = 4

// Mediator turns proposal tool calls into drafts and drives the proposals of
// one session through revise, confirm and discard. It owns no storage: the
// store belongs to the session and applied mutations go to the ledger.
type Mediator struct {
	store      proposals.Store
	registry   *tools.Registry
	writer     ledger.Writer
	publisher  events.Publisher
	now        func() time.Time
	batchLimit int
	log        zerolog.Logger
}

// MediatorOption configures a Mediator.
type MediatorOption func(*Mediator)

// WithBatchConcurrency sets the parallelism of ConfirmBatch.
func WithBatchConcurrency(n int) MediatorOption {
	return func(m *Mediator) {
		if n > 0 {
			m.batchLimit = n
		}
	}
}

// WithPublisher sets where lifecycle events go. Defaults to events.Noop.
func WithPublisher(p events.Publisher) MediatorOption {
	return func(m *Mediator) {
		if p != nil {
			m.publisher = p
		}
	}
}

// WithMediatorClock overrides the clock used for event timestamps.
func WithMediatorClock(now func() time.Time) MediatorOption {
	return func(m *Mediator) { m.now = now }
}

// NewMediator creates a mediator over a session's proposal store.
func NewMediator(store proposals.Store, registry *tools.Registry, writer ledger.Writer, log zerolog.Logger, opts ...MediatorOption) *Mediator {
	m := &Mediator{
		store:      store,
		registry:   registry,
		writer:     writer,
		publisher:  events.Noop{},
		now:        time.Now,
		batchLimit: DefaultBatchConcurrency,
		log:        log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Translate runs a proposal tool call and returns its validated drafts.
// Drafts whose payload fails validation are dropped and reported as warnings;
// when nothing survives the call fails with a ValidationError.
func (m *Mediator) Translate(ctx context.Context, call domain.ToolCall) (*tools.Outcome, error) {
	capability, ok := m.registry.Capability(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, call.Name)
	}
	if capability.Kind != tools.KindProposal {
		return nil, domain.Invalid("tool_name", "%s does not propose changes", call.Name)
	}

	outcome, err := m.registry.Execute(ctx, call)
	if err != nil {
		return nil, err
	}

	kept := outcome.Drafts[:0:0]
	for _, d := range outcome.Drafts {
		if d.Type != capability.ProposalType {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("%s produced a %s proposal", call.Name, d.Type))
			continue
		}
		if err := d.Payload.Validate(); err != nil {
			outcome.Warnings = append(outcome.Warnings, err.Error())
			continue
		}
		kept = append(kept, d)
	}
	if len(kept) == 0 {
		return nil, domain.Invalid("payload", "no valid proposal: %s", strings.Join(outcome.Warnings, "; "))
	}
	outcome.Drafts = kept
	return outcome, nil
}

// Materialize stores drafts as pending proposals anchored to messageID.
func (m *Mediator) Materialize(ctx context.Context, messageID string, drafts []tools.Draft) ([]*domain.Proposal, error) {
	created := make([]*domain.Proposal, 0, len(drafts))
	for _, d := range drafts {
		p, err := m.store.Create(ctx, d.Type, d.Payload, messageID)
		if err != nil {
			return created, fmt.Errorf("Materialize: create %s proposal: %w", d.Type, err)
		}
		telemetry.ProposalDecided(ctx, string(p.Type), "created")
		created = append(created, p)
	}
	return created, nil
}

// Get returns a proposal snapshot.
func (m *Mediator) Get(ctx context.Context, id string) (*domain.Proposal, error) {
	return m.store.Get(ctx, id)
}

// DecodePayload parses raw JSON as a payload of the proposal's type.
func (m *Mediator) DecodePayload(ctx context.Context, id string, raw json.RawMessage) (domain.Payload, error) {
	p, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.DecodePayload(p.Type, raw)
}

// Revise replaces the payload of an awaiting proposal.
func (m *Mediator) Revise(ctx context.Context, id string, payload domain.Payload) (*domain.Proposal, error) {
	if payload == nil {
		return nil, domain.Invalid("payload", "is required")
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	p, err := m.store.Revise(ctx, id, payload)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("proposal_id", p.ID).Str("proposal_type", string(p.Type)).Msg("proposal revised")
	telemetry.ProposalDecided(ctx, string(p.Type), string(domain.StatusRevised))
	m.publish(ctx, events.KindRevised, p)
	return p, nil
}

// Confirm applies the proposal to the ledger. The effective payload is
// override when given, else the proposal's current payload. Confirming an
// already confirmed proposal without override returns the prior result.
func (m *Mediator) Confirm(ctx context.Context, id string, override domain.Payload) (*domain.Proposal, error) {
	current, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.StatusConfirmed {
		if override != nil {
			return nil, &domain.StateError{ID: id, Status: current.Status, Op: "re-confirm with a new payload"}
		}
		return current, nil
	}
	if override != nil {
		if override.ProposalType() != current.Type {
			return nil, domain.Invalid("payload", "expected a %s payload, got %s", current.Type, override.ProposalType())
		}
		if err := override.Validate(); err != nil {
			return nil, err
		}
	}

	// 1. Reserve the proposal. Racing confirm/discard/revise calls lose here.
	snapshot, err := m.store.BeginApply(ctx, id)
	if err != nil {
		// A concurrent confirm may have won between Get and BeginApply.
		var stateErr *domain.StateError
		if override == nil && errors.As(err, &stateErr) && stateErr.Status == domain.StatusConfirmed {
			return m.store.Get(ctx, id)
		}
		return nil, err
	}

	effective := snapshot.Payload
	if override != nil {
		effective = override
	}

	log := m.log.With().Str("proposal_id", id).Str("proposal_type", string(snapshot.Type)).Logger()

	// 2. Dispatch the ledger mutation.
	resultID, err := m.apply(ctx, effective)
	if err != nil {
		if abortErr := m.store.AbortApply(ctx, id); abortErr != nil {
			log.Error().Err(abortErr).Msg("failed to release proposal after apply error")
		}
		log.Warn().Err(err).Msg("proposal apply failed")
		telemetry.ProposalDecided(ctx, string(snapshot.Type), "failed")
		return nil, err
	}

	// 3. Record the outcome.
	confirmed, err := m.store.FinishApply(ctx, id, resultID, override)
	if err != nil {
		return nil, fmt.Errorf("Confirm: finish apply %s: %w", id, err)
	}

	log.Info().Str("result_id", resultID).Msg("proposal confirmed")
	telemetry.ProposalDecided(ctx, string(confirmed.Type), string(domain.StatusConfirmed))
	m.publish(ctx, events.KindConfirmed, confirmed)
	return confirmed, nil
}

// Discard rejects a proposal without touching the ledger.
func (m *Mediator) Discard(ctx context.Context, id string) (*domain.Proposal, error) {
	p, err := m.store.Discard(ctx, id)
	if err != nil {
		return nil, err
	}

	m.log.Info().Str("proposal_id", p.ID).Str("proposal_type", string(p.Type)).Msg("proposal discarded")
	telemetry.ProposalDecided(ctx, string(p.Type), string(domain.StatusDiscarded))
	m.publish(ctx, events.KindDiscarded, p)
	return p, nil
}

// ConfirmBatch confirms every id independently and returns one result per
// id in input order. A failing id never stops the others. Revisions are raw
// payloads keyed by proposal id and decoded against each proposal's type.
func (m *Mediator) ConfirmBatch(ctx context.Context, ids []string, revisions map[string]json.RawMessage) []domain.ApplyResult {
	results := make([]domain.ApplyResult, len(ids))

	first := make(map[string]int, len(ids))
	var g errgroup.Group
	g.SetLimit(m.batchLimit)

	for i, id := range ids {
		if _, dup := first[id]; dup {
			continue
		}
		first[id] = i

		g.Go(func() error {
			var override domain.Payload
			if raw, ok := revisions[id]; ok && hasPayload(raw) {
				payload, err := m.DecodePayload(ctx, id, raw)
				if err != nil {
					results[i] = failedResult(id, err)
					return nil
				}
				override = payload
			}

			p, err := m.Confirm(ctx, id, override)
			if err != nil {
				results[i] = failedResult(id, err)
				return nil
			}
			results[i] = domain.ApplyResult{ProposalID: id, Success: true, EntityID: p.ResultID}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		if j := first[id]; j != i {
			results[i] = results[j]
		}
	}
	return results
}

// apply dispatches the ledger mutation matching the payload and returns the
// id of the created or affected entity.
func (m *Mediator) apply(ctx context.Context, payload domain.Payload) (string, error) {
	switch p := payload.(type) {
	case *domain.TransactionPayload:
		id, err := m.writer.CreateTransaction(ctx, domain.NewTransaction{
			Date:        p.Date,
			Type:        p.Type,
			Amount:      p.Amount,
			Description: p.Description,
			CategoryID:  domain.StringValue(p.CategoryID),
			AccountID:   domain.StringValue(p.AccountID),
			Tags:        append([]string{}, p.Tags...),
		})
		return id, ledgerError("create transaction", err)

	case *domain.TransferPayload:
		id, err := m.writer.CreateTransfer(ctx, domain.NewTransfer{
			Date:          p.Date,
			Amount:        p.Amount,
			Description:   p.Description,
			FromAccountID: p.FromAccountID,
			ToAccountID:   p.ToAccountID,
		})
		return id, ledgerError("create transfer", err)

	case *domain.BudgetPayload:
		plan := p.Plan()
		if !hasPositiveAllocation(plan) {
			return "", domain.Invalid("allocations", "no allocation with a positive amount")
		}
		ids, err := m.writer.ApplyBudgetPlan(ctx, plan)
		if err != nil {
			return "", ledgerError("apply budget plan", err)
		}
		if len(ids) == 0 {
			return "", domain.Invalid("allocations", "budget plan produced no budgets")
		}
		return ids[0], nil

	case *domain.CategoryPayload:
		return m.applyCategory(ctx, p.Change)
	}
	return "", domain.Invalid("proposal_type", "unsupported payload %T", payload)
}

func (m *Mediator) applyCategory(ctx context.Context, change domain.CategoryChange) (string, error) {
	switch c := change.(type) {
	case domain.CreateCategory:
		color, icon := c.Color, c.Icon
		if color == "" {
			color = domain.DefaultCategoryColor
		}
		if icon == "" {
			icon = domain.DefaultCategoryIcon
		}
		id, err := m.writer.CreateCategory(ctx, domain.NewCategory{Name: c.Name, Type: c.Type, Color: color, Icon: icon})
		return id, ledgerError("create category", err)

	case domain.RenameCategory:
		if err := m.writer.RenameCategory(ctx, c.CategoryID, c.NewName); err != nil {
			return "", ledgerError("rename category", err)
		}
		return c.CategoryID, nil

	case domain.DeleteCategory:
		if err := m.writer.DeleteCategory(ctx, c.CategoryID); err != nil {
			return "", ledgerError("delete category", err)
		}
		return c.CategoryID, nil

	case domain.MergeCategory:
		if err := m.writer.MergeCategories(ctx, c.SourceCategoryID, c.TargetCategoryID); err != nil {
			return "", ledgerError("merge categories", err)
		}
		return c.TargetCategoryID, nil
	}
	return "", domain.Invalid("action", "unsupported category change %T", change)
}

func (m *Mediator) publish(ctx context.Context, kind events.Kind, p *domain.Proposal) {
	if err := m.publisher.Publish(ctx, events.NewEvent(kind, p, m.now())); err != nil {
		m.log.Warn().Err(err).Str("proposal_id", p.ID).Str("event", string(kind)).Msg("failed to publish proposal event")
	}
}

// ledgerError keeps validation failures as they are and reports every other
// ledger failure as upstream.
func ledgerError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrValidation) {
		return err
	}
	return domain.Upstream(op, err)
}

func hasPositiveAllocation(plan domain.BudgetPlan) bool {
	for _, a := range plan.Allocations {
		if a.Amount > 0 {
			return true
		}
	}
	return false
}

func failedResult(id string, err error) domain.ApplyResult {
	msg := err.Error()
	return domain.ApplyResult{ProposalID: id, Success: false, Error: &msg}
}
