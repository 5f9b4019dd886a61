// Database models for chat messages
package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Message represents one transcript entry: assistant prose or a tool-call
// record. The numeric primary key is auto-incremented, so ids within a
// conversation are strictly increasing; message listing relies on that for
// cursor pagination.
type Message struct {
	ID             uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID string `json:"conversation_id" gorm:"index;size:36;not null"`

	Role string `json:"role" gorm:"size:20;not null"` // user, assistant, tool

	// TraceID groups every message produced by one run.
	TraceID string `json:"trace_id,omitempty" gorm:"index;size:36"`

	// Parts is the structured content. Streaming writes replace it wholesale,
	// so the persisted content length never regresses mid-run.
	Parts MessageParts `json:"parts,omitempty" gorm:"type:text"`

	Status string `json:"status" gorm:"size:20;default:'completed'"` // streaming, completed, error

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (*Message) TableName() string {
	return "messages"
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message status
const (
	MessageStatusStreaming = "streaming"
	MessageStatusCompleted = "completed"
	MessageStatusError     = "error"
)

// MessagePart type constants
const (
	PartTypeText     = "text"
	PartTypeToolCall = "tool_call"
)

// Tool-call lifecycle status. InputStreaming means partial input text is still
// arriving; the terminal states are OutputAvailable and OutputError.
const (
	ToolStatusInputStreaming  = "input-streaming"
	ToolStatusInputAvailable  = "input-available"
	ToolStatusOutputAvailable = "output-available"
	ToolStatusOutputError     = "output-error"
)

// MessagePart is a single piece of structured message content.
type MessagePart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ToolCall *ToolCallPart `json:"tool_call,omitempty"`
}

// ToolCallPart mirrors one tool invocation's lifecycle state.
type ToolCallPart struct {
	ToolCallID   string          `json:"tool_call_id"`
	Name         string          `json:"name,omitempty"`
	Status       string          `json:"status"`
	Input        json.RawMessage `json:"input,omitempty"`
	PartialInput string          `json:"partial_input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	ErrorText    string          `json:"error_text,omitempty"`
}

// MessageParts is stored as a JSON column.
type MessageParts []MessagePart

// Value implements driver.Valuer for database storage.
func (p MessageParts) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for database retrieval.
func (p *MessageParts) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// TextPart builds a single text part slice.
func TextPart(text string) MessageParts {
	return MessageParts{{Type: PartTypeText, Text: text}}
}

// ToolPart builds a single tool-call part slice.
func ToolPart(tc ToolCallPart) MessageParts {
	return MessageParts{{Type: PartTypeToolCall, ToolCall: &tc}}
}

// TextContent returns the concatenated text of all text parts.
func (m *Message) TextContent() string {
	var result string
	for _, part := range m.Parts {
		if part.Type == PartTypeText && part.Text != "" {
			result += part.Text
		}
	}
	return result
}

// ToolCall returns the first tool-call part, or nil if the message carries none.
func (m *Message) ToolCall() *ToolCallPart {
	for _, part := range m.Parts {
		if part.Type == PartTypeToolCall && part.ToolCall != nil {
			return part.ToolCall
		}
	}
	return nil
}
