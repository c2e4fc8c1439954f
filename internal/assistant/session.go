package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/events"
	"github.com/dvloznov/finance-assistant/internal/ledger"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/dvloznov/finance-assistant/internal/proposals"
	"github.com/dvloznov/finance-assistant/internal/proposals/inmemory"
	"github.com/dvloznov/finance-assistant/internal/reasoning"
	"github.com/dvloznov/finance-assistant/internal/telemetry"
	"github.com/dvloznov/finance-assistant/internal/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxIterations = 5
	DefaultHistoryLimit  = 20

	titleLength = 50
)

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Ledger    ledger.Ledger
	Registry  *tools.Registry
	Backend   reasoning.Backend
	Publisher events.Publisher
	Log       zerolog.Logger
}

// Settings tune a session. Zero values fall back to the defaults.
type Settings struct {
	MaxIterations    int
	HistoryLimit     int
	BatchConcurrency int
	Clock            func() time.Time
	NewID            func() string
}

func (s Settings) withDefaults() Settings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = DefaultHistoryLimit
	}
	if s.BatchConcurrency <= 0 {
		s.BatchConcurrency = DefaultBatchConcurrency
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.NewID == nil {
		s.NewID = uuid.NewString
	}
	return s
}

// Reply is the outcome of one Send round.
type Reply struct {
	ConversationID string             `json:"conversation_id"`
	MessageID      string             `json:"message_id"`
	Content        string             `json:"content"`
	ToolCalls      []domain.ToolCall  `json:"tool_calls"`
	Proposals      []*domain.Proposal `json:"proposals"`
}

// Session owns the message log and the proposal store of one conversation.
// It processes one inbound message at a time; a second Send while a round
// is in flight fails with domain.ErrBusy.
type Session struct {
	id        string
	createdAt time.Time

	busy atomic.Bool

	mu        sync.RWMutex
	title     string
	updatedAt time.Time
	messages  []domain.ConversationMessage

	store    proposals.Store
	mediator *Mediator
	registry *tools.Registry
	reader   ledger.Reader
	backend  reasoning.Backend
	settings Settings
	log      zerolog.Logger
}

// NewSession creates an empty session with its own proposal store.
func NewSession(id string, deps Dependencies, settings Settings) *Session {
	settings = settings.withDefaults()
	log := logger.WithConversation(deps.Log, id)

	store := inmemory.NewStore(id, inmemory.WithClock(settings.Clock), inmemory.WithIDGenerator(settings.NewID))
	now := settings.Clock()

	return &Session{
		id:        id,
		createdAt: now,
		updatedAt: now,
		store:     store,
		mediator: NewMediator(store, deps.Registry, deps.Ledger, log,
			WithPublisher(deps.Publisher),
			WithBatchConcurrency(settings.BatchConcurrency),
			WithMediatorClock(settings.Clock),
		),
		registry: deps.Registry,
		reader:   deps.Ledger,
		backend:  deps.Backend,
		settings: settings,
		log:      log,
	}
}

// ID returns the conversation id.
func (s *Session) ID() string { return s.id }

// Mediator returns the mediator bound to this session's proposals.
func (s *Session) Mediator() *Mediator { return s.mediator }

// Summary returns the list view of the conversation.
func (s *Session) Summary() domain.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.ConversationSummary{
		ID:           s.id,
		Title:        s.title,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
		MessageCount: len(s.messages),
	}
}

// Messages returns a copy of the log.
func (s *Session) Messages() []domain.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ConversationMessage{}, s.messages...)
}

// Detail returns the conversation with its messages and every proposal.
func (s *Session) Detail(ctx context.Context) (*domain.ConversationDetail, error) {
	all, err := s.store.List(ctx, proposals.Filter{})
	if err != nil {
		return nil, fmt.Errorf("Detail: list proposals: %w", err)
	}
	if all == nil {
		all = []*domain.Proposal{}
	}
	return &domain.ConversationDetail{
		ConversationSummary: s.Summary(),
		Messages:            s.Messages(),
		Proposals:           all,
	}, nil
}

// ListPending returns the proposals awaiting a decision.
func (s *Session) ListPending(ctx context.Context) ([]*domain.Proposal, error) {
	return s.store.ListPending(ctx)
}

// AppendUserMessage logs a user message outside of a reasoning round.
func (s *Session) AppendUserMessage(text string, image *domain.ImageRef) (domain.ConversationMessage, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return domain.ConversationMessage{}, domain.ErrBusy
	}
	defer s.busy.Store(false)

	msg := s.newMessage(domain.RoleUser, text)
	msg.Image = image
	s.commit(text, msg)
	return msg, nil
}

// AppendAssistantMessage logs an assistant message. Proposal tool calls are
// translated and materialized anchored to the new message; read-only calls
// are kept for display only. Nothing is logged when a translation fails.
func (s *Session) AppendAssistantMessage(ctx context.Context, text string, calls []domain.ToolCall) (domain.ConversationMessage, []*domain.Proposal, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return domain.ConversationMessage{}, nil, domain.ErrBusy
	}
	defer s.busy.Store(false)

	var drafts []tools.Draft
	for _, call := range calls {
		capability, ok := s.registry.Capability(call.Name)
		if !ok || capability.Kind != tools.KindProposal {
			continue
		}
		outcome, err := s.mediator.Translate(ctx, call)
		if err != nil {
			return domain.ConversationMessage{}, nil, fmt.Errorf("AppendAssistantMessage: %s: %w", call.Name, err)
		}
		drafts = append(drafts, outcome.Drafts...)
	}

	msg := s.newMessage(domain.RoleAssistant, text)
	msg.ToolCalls = append([]domain.ToolCall{}, calls...)

	created, err := s.mediator.Materialize(ctx, msg.ID, drafts)
	if err != nil {
		return domain.ConversationMessage{}, nil, err
	}
	s.commit("", msg)
	return msg, created, nil
}

// Reset clears the log and the proposals. Applied ledger mutations stay.
func (s *Session) Reset(ctx context.Context) error {
	if !s.busy.CompareAndSwap(false, true) {
		return domain.ErrBusy
	}
	defer s.busy.Store(false)

	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("Reset: %w", err)
	}

	s.mu.Lock()
	s.messages = nil
	s.title = ""
	s.updatedAt = s.settings.Clock()
	s.mu.Unlock()

	s.log.Info().Msg("conversation cleared")
	return nil
}

// round stages everything one Send produces until it completes.
type round struct {
	messages []domain.ConversationMessage
	executed []domain.ToolCall
	drafts   []tools.Draft
	lastStep int
}

// Send runs one reasoning round: the user message, up to MaxIterations
// backend calls with their tool executions, and the final assistant reply.
// Messages and proposals are committed together when the round completes;
// on cancellation or failure the session is left as it was.
func (s *Session) Send(ctx context.Context, text string, image *domain.ImageRef) (_ *Reply, err error) {
	if strings.TrimSpace(text) == "" && image == nil {
		return nil, domain.Invalid("message", "is required")
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrBusy
	}
	defer s.busy.Store(false)

	start := time.Now()
	ctx, span := telemetry.StartRound(ctx, s.id)
	defer func() { telemetry.EndRound(ctx, span, start, err) }()

	system, err := buildSystemPrompt(ctx, s.reader, s.settings.Clock())
	if err != nil {
		return nil, err
	}

	user := s.newMessage(domain.RoleUser, text)
	user.Image = image
	r := &round{messages: []domain.ConversationMessage{user}}

	history := s.window()
	definitions := s.registry.Definitions()

	var last *reasoning.Reply
	for i := 0; i < s.settings.MaxIterations; i++ {
		req := reasoning.Request{
			System:  system,
			History: append(append([]domain.ConversationMessage{}, history...), r.messages...),
			Tools:   definitions,
		}
		reply, err := s.backend.Complete(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.Upstream("reasoning backend", err)
		}
		last = reply
		if len(reply.ToolCalls) == 0 {
			break
		}

		calls := make([]domain.ToolCall, len(reply.ToolCalls))
		for j, call := range reply.ToolCalls {
			if call.ID == "" {
				call.ID = s.settings.NewID()
			}
			calls[j] = call
		}
		step := s.newMessage(domain.RoleAssistant, reply.Text)
		step.ToolCalls = calls
		r.lastStep = len(r.messages)
		r.messages = append(r.messages, step)

		for _, call := range calls {
			msg, err := s.runTool(ctx, call, r)
			if err != nil {
				return nil, err
			}
			r.executed = append(r.executed, call)
			r.messages = append(r.messages, msg)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := ""
	if last != nil {
		content = last.Text
	}

	// When the iteration cap cuts the loop short, the last step already
	// carries the reply text and anchors the proposals.
	var final domain.ConversationMessage
	if last != nil && len(last.ToolCalls) > 0 {
		final = r.messages[r.lastStep]
		s.log.Warn().
			Int("max_iterations", s.settings.MaxIterations).
			Int("pending_drafts", len(r.drafts)).
			Msg("tool iteration limit reached")
	} else {
		final = s.newMessage(domain.RoleAssistant, content)
		r.messages = append(r.messages, final)
	}

	created, err := s.mediator.Materialize(ctx, final.ID, r.drafts)
	if err != nil {
		s.log.Error().Err(err).Int("created", len(created)).Msg("failed to materialize proposals")
		return nil, err
	}
	s.commit(text, r.messages...)

	s.log.Info().
		Int("tool_calls", len(r.executed)).
		Int("proposals", len(created)).
		Dur("duration", time.Since(start)).
		Msg("round completed")

	if r.executed == nil {
		r.executed = []domain.ToolCall{}
	}
	return &Reply{
		ConversationID: s.id,
		MessageID:      final.ID,
		Content:        content,
		ToolCalls:      r.executed,
		Proposals:      created,
	}, nil
}

// runTool executes one call and returns the tool message to log. Tool
// failures become error results for the model; only cancellation aborts.
func (s *Session) runTool(ctx context.Context, call domain.ToolCall, r *round) (domain.ConversationMessage, error) {
	var outcome *tools.Outcome
	var err error

	capability, ok := s.registry.Capability(call.Name)
	switch {
	case !ok:
		err = fmt.Errorf("%w: %s", tools.ErrUnknownTool, call.Name)
	case capability.Kind == tools.KindProposal:
		outcome, err = s.mediator.Translate(ctx, call)
	default:
		outcome, err = s.registry.Execute(ctx, call)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.ConversationMessage{}, ctxErr
	}

	telemetry.ToolCalled(ctx, call.Name, err)
	if err != nil {
		s.log.Warn().Err(err).Str("tool", call.Name).Msg("tool call failed")
	} else {
		r.drafts = append(r.drafts, outcome.Drafts...)
	}

	msg := s.newMessage(domain.RoleTool, toolResult(outcome, err))
	msg.ToolCallID = call.ID
	msg.ToolName = call.Name
	return msg, nil
}

// toolResult encodes what the model sees for a tool call.
func toolResult(outcome *tools.Outcome, err error) string {
	body := map[string]any{}
	if err != nil {
		body["error"] = err.Error()
		var ve *domain.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			body["field"] = ve.Field
		}
	} else {
		body["result"] = outcome.Data
		if len(outcome.Drafts) > 0 {
			body["proposals"] = outcome.Drafts
		}
		if len(outcome.Warnings) > 0 {
			body["warnings"] = outcome.Warnings
		}
	}
	raw, mErr := json.Marshal(body)
	if mErr != nil {
		return fmt.Sprintf(`{"error": %q}`, mErr.Error())
	}
	return string(raw)
}

// window returns the last HistoryLimit committed messages. Leading tool
// results whose call fell outside the window are dropped.
func (s *Session) window() []domain.ConversationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if n := len(s.messages); n > s.settings.HistoryLimit {
		start = n - s.settings.HistoryLimit
	}
	for start < len(s.messages) && s.messages[start].Role == domain.RoleTool {
		start++
	}
	return append([]domain.ConversationMessage{}, s.messages[start:]...)
}

func (s *Session) commit(firstUserText string, msgs ...domain.ConversationMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msgs...)
	if s.title == "" && strings.TrimSpace(firstUserText) != "" {
		s.title = makeTitle(firstUserText)
	}
	s.updatedAt = s.settings.Clock()
}

func (s *Session) newMessage(role domain.Role, content string) domain.ConversationMessage {
	return domain.ConversationMessage{
		ID:        s.settings.NewID(),
		Role:      role,
		Content:   domain.StringPtr(content),
		CreatedAt: s.settings.Clock(),
	}
}

// makeTitle keeps the first 50 runes of a message.
func makeTitle(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= titleLength {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:titleLength])) + "..."
}
