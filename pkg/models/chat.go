// API types for the chat endpoints
package models

import (
	"github.com/relaydeck/relaydeck/pkg/db"
)

// ========== Type aliases for database types ==========
// These allow other packages to use models.Message instead of db.Message.

type Conversation = db.Conversation
type Message = db.Message
type MessagePart = db.MessagePart
type MessageParts = db.MessageParts
type ToolCallPart = db.ToolCallPart

// ========== Constant aliases from db package ==========

const (
	MessageStatusStreaming = db.MessageStatusStreaming
	MessageStatusCompleted = db.MessageStatusCompleted
	MessageStatusError     = db.MessageStatusError
)

const (
	ConversationStatusActive   = db.ConversationStatusActive
	ConversationStatusArchived = db.ConversationStatusArchived
)

const (
	RoleUser      = db.RoleUser
	RoleAssistant = db.RoleAssistant
	RoleTool      = db.RoleTool
)

// ========== Request/response types ==========

// ChatRequest asks for one assistant turn in a conversation.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"` // empty = create a new conversation
	Prompt         string `json:"prompt" binding:"required"`
	Model          string `json:"model,omitempty"`
	Stream         bool   `json:"stream,omitempty"`

	// UserToken identifies the caller. When absent the run is ephemeral:
	// nothing is persisted and no ownership checks apply.
	UserToken string `json:"user_token,omitempty"`
}

// ChatResponse is the synchronous (non-streaming) result.
type ChatResponse struct {
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      uint64 `json:"message_id,omitempty"`
	Text           string `json:"text"`
}

// CreateConversationRequest creates a conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// UpdateConversationRequest patches title and/or status.
type UpdateConversationRequest struct {
	Title  string `json:"title,omitempty"`
	Status string `json:"status,omitempty"`
}

// ConversationListResponse is a paged conversation listing.
type ConversationListResponse struct {
	Conversations []Conversation `json:"conversations"`
	HasMore       bool           `json:"has_more"`
}

// MessageListResponse is a cursor-paged message listing. NextCursor is the id
// of the last returned message; pass it back as ?after= to continue.
type MessageListResponse struct {
	Messages   []Message `json:"messages"`
	NextCursor uint64    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}

// RunStatusResponse reports whether a conversation has a live run.
type RunStatusResponse struct {
	ConversationID string `json:"conversation_id"`
	IsRunning      bool   `json:"is_running"`
}
