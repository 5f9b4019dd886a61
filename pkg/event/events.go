package event

// ============================================================================
// Event Names (constants)
// ============================================================================

const (
	RunStarted          = "run.started"
	RunSuperseded       = "run.superseded"
	RunCompleted        = "run.completed"
	ConversationUpdated = "conversation.updated"
	ConversationDeleted = "conversation.deleted"
)

// ============================================================================
// Run Events
// ============================================================================

// RunStartedEvent is emitted when a generation run begins streaming.
type RunStartedEvent struct {
	ConversationID string `json:"conversation_id"`
	RunToken       string `json:"run_token"`
}

func (e RunStartedEvent) EventName() string { return RunStarted }

// RunSupersededEvent is emitted when a newer run cancels a live predecessor.
type RunSupersededEvent struct {
	ConversationID string `json:"conversation_id"`
	RunToken       string `json:"run_token"` // token of the cancelled run
}

func (e RunSupersededEvent) EventName() string { return RunSuperseded }

// RunCompletedEvent is emitted after a run's persistence path finishes.
// Status is "completed", "error", or "cancelled".
type RunCompletedEvent struct {
	ConversationID string `json:"conversation_id"`
	RunToken       string `json:"run_token"`
	Status         string `json:"status"`
}

func (e RunCompletedEvent) EventName() string { return RunCompleted }

// ============================================================================
// Conversation Events
// ============================================================================

// ConversationUpdatedEvent is emitted when a conversation's metadata or
// transcript changed. Clients fetch the actual data over HTTP.
type ConversationUpdatedEvent struct {
	ConversationID string `json:"conversation_id"`
}

func (e ConversationUpdatedEvent) EventName() string { return ConversationUpdated }

// ConversationDeletedEvent is emitted when a conversation is deleted.
type ConversationDeletedEvent struct {
	ConversationID string `json:"conversation_id"`
}

func (e ConversationDeletedEvent) EventName() string { return ConversationDeleted }
