package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// DefaultModelName is the default Gemini model used for conversations.
const DefaultModelName = "gemini-2.5-flash"

// ImageLoader fetches attachment bytes by URI, e.g. a gs:// object.
type ImageLoader func(ctx context.Context, uri string) ([]byte, error)

// GeminiConfig configures a GeminiBackend. Empty fields fall back to the
// client library's environment-based defaults.
type GeminiConfig struct {
	Model      string
	APIKey     string
	APIVersion string
}

// GeminiBackend is the concrete implementation of Backend that uses Gemini.
type GeminiBackend struct {
	client *genai.Client
	model  string
	images ImageLoader
}

// GeminiOption configures a GeminiBackend.
type GeminiOption func(*GeminiBackend)

// WithImageLoader inlines image attachments instead of passing their URI.
func WithImageLoader(load ImageLoader) GeminiOption {
	return func(b *GeminiBackend) { b.images = load }
}

// NewGeminiBackend creates a Gemini client.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig, opts ...GeminiOption) (*GeminiBackend, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey}
	if cfg.APIKey != "" {
		cc.Backend = genai.BackendGeminiAPI
	}
	if cfg.APIVersion != "" {
		cc.HTTPOptions = genai.HTTPOptions{APIVersion: cfg.APIVersion}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiBackend: create genai client: %w", err)
	}

	b := &GeminiBackend{client: client, model: cfg.Model}
	if b.model == "" {
		b.model = DefaultModelName
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Complete implements the Backend interface.
func (b *GeminiBackend) Complete(ctx context.Context, req Request) (*Reply, error) {
	contents, err := b.contents(ctx, req.History)
	if err != nil {
		return nil, domain.Upstream("gemini: build contents", err)
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, config)
	if err != nil {
		return nil, domain.Upstream("gemini: generate content", err)
	}
	return replyFromResponse(resp)
}

func replyFromResponse(resp *genai.GenerateContentResponse) (*Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, domain.Upstream("gemini: generate content", fmt.Errorf("empty response from model"))
	}

	reply := &Reply{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		case part.Text != "" && !part.Thought:
			reply.Text += part.Text
		}
	}
	return reply, nil
}

// contents maps the conversation log onto Gemini turns. Consecutive tool
// results are grouped into one user turn, the shape Gemini expects after a
// turn with several function calls. Calls without a logged result were only
// recorded for display and are left out.
func (b *GeminiBackend) contents(ctx context.Context, history []domain.ConversationMessage) ([]*genai.Content, error) {
	answered := make(map[string]bool)
	for _, m := range history {
		if m.Role == domain.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	var out []*genai.Content
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser:
			parts := []*genai.Part{}
			if m.Text() != "" {
				parts = append(parts, &genai.Part{Text: m.Text()})
			}
			if m.Image != nil {
				part, err := b.imagePart(ctx, m.Image)
				if err != nil {
					return nil, err
				}
				parts = append(parts, part)
			}
			out = append(out, &genai.Content{Role: "user", Parts: parts})

		case domain.RoleAssistant:
			parts := []*genai.Part{}
			if m.Text() != "" {
				parts = append(parts, &genai.Part{Text: m.Text()})
			}
			for _, tc := range m.ToolCalls {
				if !answered[tc.ID] {
					continue
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID: tc.ID, Name: tc.Name, Args: tc.Arguments,
				}})
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: "model", Parts: parts})
			}

		case domain.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.ToolName,
				Response: toolResponse(m.Text()),
			}}
			if n := len(out); n > 0 && isFunctionResponseTurn(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
			} else {
				out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
			}
		}
	}
	return out, nil
}

func (b *GeminiBackend) imagePart(ctx context.Context, img *domain.ImageRef) (*genai.Part, error) {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	if b.images == nil {
		return &genai.Part{FileData: &genai.FileData{FileURI: img.URI, MIMEType: mime}}, nil
	}
	data, err := b.images(ctx, img.URI)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", img.URI, err)
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data}}, nil
}

func isFunctionResponseTurn(c *genai.Content) bool {
	return c.Role == "user" && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// toolResponse decodes a logged tool result. Gemini requires an object, so
// anything else is wrapped under "output".
func toolResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": content}
}

// Ensure GeminiBackend implements Backend interface.
var _ Backend = (*GeminiBackend)(nil)
