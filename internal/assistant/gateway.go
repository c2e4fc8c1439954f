package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/finance-assistant/internal/attachments"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a conversation sends messages faster than
// its limiter allows.
var ErrRateLimited = errors.New("rate limit exceeded")

// SendRequest is the input of SendMessage. An empty ConversationID starts a
// new conversation. ImageData is uploaded to the attachment store; ImageURL
// is referenced as is.
type SendRequest struct {
	ConversationID string
	Message        string
	ImageURL       string
	ImageData      []byte
	ImageMIMEType  string
}

// ProposalUpdate mirrors a PATCH of a proposal: a payload alone revises,
// StatusRevised requires a payload, StatusDiscarded discards.
type ProposalUpdate struct {
	Payload json.RawMessage
	Status  domain.ProposalStatus
}

// ConversationPage is one page of ListConversations.
type ConversationPage struct {
	Conversations []domain.ConversationSummary `json:"conversations"`
	Total         int                          `json:"total"`
	HasMore       bool                         `json:"has_more"`
}

// Gateway is the single entry point of the assistant. It owns the session
// registry; every proposal operation is scoped to a conversation.
type Gateway struct {
	deps        Dependencies
	settings    Settings
	attachments attachments.Store

	mu       sync.RWMutex
	sessions map[string]*Session
	limiters map[string]*rate.Limiter

	rps   rate.Limit
	burst int

	log zerolog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithSettings sets the settings of every new session.
func WithSettings(s Settings) GatewayOption {
	return func(g *Gateway) { g.settings = s.withDefaults() }
}

// WithRateLimit limits SendMessage per conversation.
func WithRateLimit(rps float64, burst int) GatewayOption {
	return func(g *Gateway) {
		g.rps = rate.Limit(rps)
		g.burst = burst
	}
}

// WithAttachments enables uploads of raw image bytes.
func WithAttachments(store attachments.Store) GatewayOption {
	return func(g *Gateway) { g.attachments = store }
}

// NewGateway creates a gateway with no conversations.
func NewGateway(deps Dependencies, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		deps:     deps,
		settings: Settings{}.withDefaults(),
		sessions: make(map[string]*Session),
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Inf,
		burst:    1,
		log:      deps.Log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SendMessage runs one round in the given conversation, or in a new one when
// no id is given. A new conversation is only registered once its first round
// succeeds.
func (g *Gateway) SendMessage(ctx context.Context, req SendRequest) (*Reply, error) {
	if strings.TrimSpace(req.Message) == "" && req.ImageURL == "" && len(req.ImageData) == 0 {
		return nil, domain.Invalid("message", "is required")
	}

	var session *Session
	isNew := req.ConversationID == ""
	if isNew {
		session = NewSession(g.settings.NewID(), g.deps, g.settings)
	} else {
		s, err := g.session(req.ConversationID)
		if err != nil {
			return nil, err
		}
		session = s
		if !g.limiter(s.ID()).Allow() {
			return nil, fmt.Errorf("conversation %s: %w", s.ID(), ErrRateLimited)
		}
	}

	image, err := g.image(ctx, session.ID(), req)
	if err != nil {
		return nil, err
	}

	reply, err := session.Send(ctx, req.Message, image)
	if err != nil {
		return nil, err
	}

	if isNew {
		g.mu.Lock()
		g.sessions[session.ID()] = session
		g.mu.Unlock()
		g.log.Info().Str("conversation_id", session.ID()).Msg("conversation started")
	}
	return reply, nil
}

// ConfirmProposal applies one proposal. A non-empty payload overrides the
// proposal's current content.
func (g *Gateway) ConfirmProposal(ctx context.Context, conversationID, proposalID string, payload json.RawMessage) (*domain.ApplyResult, error) {
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	m := s.Mediator()

	var override domain.Payload
	if hasPayload(payload) {
		override, err = m.DecodePayload(ctx, proposalID, payload)
		if err != nil {
			return nil, err
		}
	}

	p, err := m.Confirm(ctx, proposalID, override)
	if err != nil {
		return nil, err
	}
	return &domain.ApplyResult{ProposalID: p.ID, Success: true, EntityID: p.ResultID}, nil
}

// DiscardProposal rejects a proposal.
func (g *Gateway) DiscardProposal(ctx context.Context, conversationID, proposalID string) (*domain.Proposal, error) {
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	return s.Mediator().Discard(ctx, proposalID)
}

// ReviseProposal replaces a proposal's payload.
func (g *Gateway) ReviseProposal(ctx context.Context, conversationID, proposalID string, payload json.RawMessage) (*domain.Proposal, error) {
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	if !hasPayload(payload) {
		return nil, domain.Invalid("revised_payload", "is required")
	}
	m := s.Mediator()
	revised, err := m.DecodePayload(ctx, proposalID, payload)
	if err != nil {
		return nil, err
	}
	return m.Revise(ctx, proposalID, revised)
}

// UpdateProposal applies PATCH semantics on top of revise and discard.
func (g *Gateway) UpdateProposal(ctx context.Context, conversationID, proposalID string, update ProposalUpdate) (*domain.Proposal, error) {
	switch update.Status {
	case "", domain.StatusRevised:
		return g.ReviseProposal(ctx, conversationID, proposalID, update.Payload)
	case domain.StatusDiscarded:
		return g.DiscardProposal(ctx, conversationID, proposalID)
	default:
		return nil, domain.Invalid("status", "must be revised or discarded, got %q", update.Status)
	}
}

// ApplyProposals confirms several proposals with per-id results.
func (g *Gateway) ApplyProposals(ctx context.Context, conversationID string, ids []string, revisions map[string]json.RawMessage) ([]domain.ApplyResult, error) {
	if len(ids) == 0 {
		return nil, domain.Invalid("proposal_ids", "must not be empty")
	}
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	for id := range revisions {
		if !slices.Contains(ids, id) {
			return nil, domain.Invalid("revisions", "proposal %s is not in proposal_ids", id)
		}
	}
	return s.Mediator().ConfirmBatch(ctx, ids, revisions), nil
}

// GetProposal returns one proposal of a conversation.
func (g *Gateway) GetProposal(ctx context.Context, conversationID, proposalID string) (*domain.Proposal, error) {
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	return s.Mediator().Get(ctx, proposalID)
}

// ListPending returns the proposals of a conversation awaiting a decision.
func (g *Gateway) ListPending(ctx context.Context, conversationID string) ([]*domain.Proposal, error) {
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	pending, err := s.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		pending = []*domain.Proposal{}
	}
	return pending, nil
}

// ClearConversation empties the log and proposals of a conversation.
func (g *Gateway) ClearConversation(ctx context.Context, conversationID string) error {
	s, err := g.session(conversationID)
	if err != nil {
		return err
	}
	return s.Reset(ctx)
}

// ListConversations returns summaries, most recently updated first.
func (g *Gateway) ListConversations(skip, limit int) ConversationPage {
	g.mu.RLock()
	all := make([]domain.ConversationSummary, 0, len(g.sessions))
	for _, s := range g.sessions {
		all = append(all, s.Summary())
	}
	g.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 20
	}
	page := ConversationPage{Conversations: []domain.ConversationSummary{}, Total: len(all)}
	if skip < len(all) {
		end := min(skip+limit, len(all))
		page.Conversations = all[skip:end]
		page.HasMore = end < len(all)
	}
	return page
}

// GetConversation returns the messages and proposals of a conversation.
func (g *Gateway) GetConversation(ctx context.Context, conversationID string) (*domain.ConversationDetail, error) {
	s, err := g.session(conversationID)
	if err != nil {
		return nil, err
	}
	return s.Detail(ctx)
}

// DeleteConversation drops a conversation and its proposals.
func (g *Gateway) DeleteConversation(conversationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.sessions[conversationID]; !ok {
		return domain.NotFound("conversation", conversationID)
	}
	delete(g.sessions, conversationID)
	delete(g.limiters, conversationID)
	g.log.Info().Str("conversation_id", conversationID).Msg("conversation deleted")
	return nil
}

func (g *Gateway) session(id string) (*Session, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.sessions[id]
	if !ok {
		return nil, domain.NotFound("conversation", id)
	}
	return s, nil
}

func (g *Gateway) limiter(id string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[id]
	if !ok {
		l = rate.NewLimiter(g.rps, g.burst)
		g.limiters[id] = l
	}
	return l
}

func (g *Gateway) image(ctx context.Context, conversationID string, req SendRequest) (*domain.ImageRef, error) {
	switch {
	case len(req.ImageData) > 0:
		if g.attachments == nil {
			return nil, domain.Invalid("image_base64", "image uploads are not configured")
		}
		ref, err := g.attachments.Upload(ctx, conversationID, req.ImageData, req.ImageMIMEType)
		if err != nil {
			return nil, err
		}
		return ref, nil
	case req.ImageURL != "":
		return &domain.ImageRef{URI: req.ImageURL, MIMEType: req.ImageMIMEType}, nil
	}
	return nil, nil
}

func hasPayload(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}
