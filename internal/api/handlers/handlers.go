package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/api/middleware"
	"github.com/dvloznov/finance-assistant/internal/assistant"
	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies; base64 images dominate the size.
const maxBodyBytes = 16 << 20

// Assistant is the part of assistant.Gateway the HTTP surface needs.
type Assistant interface {
	SendMessage(ctx context.Context, req assistant.SendRequest) (*assistant.Reply, error)
	ConfirmProposal(ctx context.Context, conversationID, proposalID string, payload json.RawMessage) (*domain.ApplyResult, error)
	DiscardProposal(ctx context.Context, conversationID, proposalID string) (*domain.Proposal, error)
	UpdateProposal(ctx context.Context, conversationID, proposalID string, update assistant.ProposalUpdate) (*domain.Proposal, error)
	ApplyProposals(ctx context.Context, conversationID string, ids []string, revisions map[string]json.RawMessage) ([]domain.ApplyResult, error)
	GetProposal(ctx context.Context, conversationID, proposalID string) (*domain.Proposal, error)
	ListPending(ctx context.Context, conversationID string) ([]*domain.Proposal, error)
	ClearConversation(ctx context.Context, conversationID string) error
	ListConversations(skip, limit int) assistant.ConversationPage
	GetConversation(ctx context.Context, conversationID string) (*domain.ConversationDetail, error)
	DeleteConversation(conversationID string) error
}

var _ Assistant = (*assistant.Gateway)(nil)

// AssistantHandler handles the /api/assistant endpoints.
type AssistantHandler struct {
	assistant Assistant
	log       zerolog.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(a Assistant, log zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: a,
		log:       log,
	}
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	ImageURL       string `json:"image_url"`
	ImageBase64    string `json:"image_base64"`
	ImageMIMEType  string `json:"image_mime_type"`
}

type applyRequest struct {
	ConversationID string                     `json:"conversation_id"`
	ProposalIDs    []string                   `json:"proposal_ids"`
	Revisions      map[string]json.RawMessage `json:"revisions"`
}

type confirmRequest struct {
	Payload json.RawMessage `json:"payload"`
}

type updateProposalRequest struct {
	RevisedPayload json.RawMessage       `json:"revised_payload"`
	Status         domain.ProposalStatus `json:"status"`
}

// SendMessage handles POST /api/assistant/message
func (h *AssistantHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	send := assistant.SendRequest{
		ConversationID: req.ConversationID,
		Message:        req.Message,
		ImageURL:       req.ImageURL,
		ImageMIMEType:  req.ImageMIMEType,
	}
	if req.ImageBase64 != "" {
		data, mimeType, err := decodeImage(req.ImageBase64)
		if err != nil {
			middleware.WriteFieldError(w, http.StatusBadRequest, "image_base64 is not valid base64", "image_base64")
			return
		}
		send.ImageData = data
		if send.ImageMIMEType == "" {
			send.ImageMIMEType = mimeType
		}
	}

	reply, err := h.assistant.SendMessage(r.Context(), send)
	if err != nil {
		h.writeError(w, r, err, "Failed to process message")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, reply)
}

// ApplyProposals handles POST /api/assistant/apply
func (h *AssistantHandler) ApplyProposals(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConversationID == "" {
		middleware.WriteFieldError(w, http.StatusBadRequest, "conversation_id is required", "conversation_id")
		return
	}

	results, err := h.assistant.ApplyProposals(r.Context(), req.ConversationID, req.ProposalIDs, req.Revisions)
	if err != nil {
		h.writeError(w, r, err, "Failed to apply proposals")
		return
	}

	applied := 0
	for _, res := range results {
		if res.Success {
			applied++
		}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"applied": applied,
		"failed":  len(results) - applied,
	})
}

// ListPending handles GET /api/assistant/conversations/{cid}/proposals
func (h *AssistantHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.assistant.ListPending(r.Context(), chi.URLParam(r, "cid"))
	if err != nil {
		h.writeError(w, r, err, "Failed to list proposals")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"proposals": pending,
		"count":     len(pending),
	})
}

// GetProposal handles GET /api/assistant/conversations/{cid}/proposals/{pid}
func (h *AssistantHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.assistant.GetProposal(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "pid"))
	if err != nil {
		h.writeError(w, r, err, "Failed to get proposal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// UpdateProposal handles PATCH /api/assistant/conversations/{cid}/proposals/{pid}
func (h *AssistantHandler) UpdateProposal(w http.ResponseWriter, r *http.Request) {
	var req updateProposalRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := h.assistant.UpdateProposal(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "pid"), assistant.ProposalUpdate{
		Payload: req.RevisedPayload,
		Status:  req.Status,
	})
	if err != nil {
		h.writeError(w, r, err, "Failed to update proposal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// ConfirmProposal handles POST /api/assistant/conversations/{cid}/proposals/{pid}/confirm
func (h *AssistantHandler) ConfirmProposal(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.assistant.ConfirmProposal(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "pid"), req.Payload)
	if err != nil {
		h.writeError(w, r, err, "Failed to confirm proposal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// DiscardProposal handles POST /api/assistant/conversations/{cid}/proposals/{pid}/discard
func (h *AssistantHandler) DiscardProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.assistant.DiscardProposal(r.Context(), chi.URLParam(r, "cid"), chi.URLParam(r, "pid"))
	if err != nil {
		h.writeError(w, r, err, "Failed to discard proposal")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, p)
}

// ListConversations handles GET /api/assistant/conversations
func (h *AssistantHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	skip, limit := 0, 20

	if s := query.Get("skip"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			middleware.WriteFieldError(w, http.StatusBadRequest, "skip must be a non-negative integer", "skip")
			return
		}
		skip = v
	}
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 100 {
			middleware.WriteFieldError(w, http.StatusBadRequest, "limit must be between 1 and 100", "limit")
			return
		}
		limit = v
	}

	middleware.WriteJSON(w, http.StatusOK, h.assistant.ListConversations(skip, limit))
}

// GetConversation handles GET /api/assistant/conversations/{cid}
func (h *AssistantHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	detail, err := h.assistant.GetConversation(r.Context(), chi.URLParam(r, "cid"))
	if err != nil {
		h.writeError(w, r, err, "Failed to get conversation")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, detail)
}

// DeleteConversation handles DELETE /api/assistant/conversations/{cid}
func (h *AssistantHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	if err := h.assistant.DeleteConversation(cid); err != nil {
		h.writeError(w, r, err, "Failed to delete conversation")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"conversation_id": cid,
		"status":          "deleted",
	})
}

// ClearConversation handles POST /api/assistant/conversations/{cid}/clear
func (h *AssistantHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	if err := h.assistant.ClearConversation(r.Context(), cid); err != nil {
		h.writeError(w, r, err, "Failed to clear conversation")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"conversation_id": cid,
		"status":          "cleared",
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// writeError maps the error taxonomy onto HTTP statuses. Caller errors are
// reported with their message; everything else is logged and hidden behind
// fallback.
func (h *AssistantHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		middleware.WriteFieldError(w, http.StatusBadRequest, ve.Error(), ve.Field)
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrBusy):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, assistant.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		middleware.WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Err(err).Str("path", r.URL.Path).Msg(fallback)
		middleware.WriteError(w, http.StatusGatewayTimeout, "Request cancelled")
	case errors.Is(err, domain.ErrUpstream):
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		middleware.WriteError(w, http.StatusBadGateway, fallback)
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg(fallback)
		middleware.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeJSON reads a JSON body. With optional set an empty body is accepted.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// decodeImage accepts plain base64 or a data URL, in which case the media
// type of the URL is returned too.
func decodeImage(s string) ([]byte, string, error) {
	var mimeType string
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found {
			return nil, "", errors.New("data URL without payload")
		}
		mimeType, _, _ = strings.Cut(header, ";")
		s = body
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	return data, mimeType, err
}
