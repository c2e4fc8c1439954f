package domain

import "time"

// Role of a conversation message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a structured invocation emitted by the reasoning backend.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ImageRef points at an image attached to a user message.
type ImageRef struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mime_type,omitempty"`
}

// ConversationMessage is one immutable entry of a session log.
type ConversationMessage struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	Image      *ImageRef  `json:"image,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Text returns the message content or "" when absent.
func (m ConversationMessage) Text() string {
	return StringValue(m.Content)
}

// ConversationSummary is the list view of a conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ConversationDetail is a full conversation snapshot.
type ConversationDetail struct {
	ConversationSummary
	Messages  []ConversationMessage `json:"messages"`
	Proposals []*Proposal           `json:"proposals"`
}
