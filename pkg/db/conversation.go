// Database models for chat conversations
package db

import "time"

// Conversation represents a chat conversation. It owns an ordered sequence of
// Messages; UpdatedAt doubles as the last-activity timestamp refreshed on
// every streaming flush.
type Conversation struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Title     string    `json:"title" gorm:"size:200;default:'New Chat'"`
	Status    string    `json:"status" gorm:"size:20;default:'active'"` // active, archived
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Conversation status
const (
	ConversationStatusActive   = "active"
	ConversationStatusArchived = "archived"
)
