package stream

import "encoding/json"

// Kind identifies a decoded stream event.
type Kind string

const (
	KindTextDelta           Kind = "text-delta"
	KindToolInputStart      Kind = "tool-input-start"
	KindToolInputDelta      Kind = "tool-input-delta"
	KindToolInputAvailable  Kind = "tool-input-available"
	KindToolInputError      Kind = "tool-input-error"
	KindToolOutputAvailable Kind = "tool-output-available"
	KindToolOutputError     Kind = "tool-output-error"
)

// Event is one decoded unit of a generation stream. Which fields are set
// depends on Kind: Text for text deltas, ToolCallID plus the matching
// input/output fields for tool events.
type Event struct {
	Kind       Kind
	Text       string
	ToolCallID string
	ToolName   string
	InputDelta string
	Input      json.RawMessage
	Output     json.RawMessage
	ErrorText  string
}
