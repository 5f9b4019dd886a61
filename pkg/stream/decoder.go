package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

const doneSentinel = "[DONE]"

// Decoder turns raw stream bytes into Events. For text/event-stream bodies it
// reassembles SSE frames across arbitrary chunk boundaries; for any other
// content type every chunk passes through verbatim as a text delta.
type Decoder struct {
	plain bool
	buf   []byte
}

// NewDecoder builds a decoder for a stream with the given Content-Type.
func NewDecoder(contentType string) *Decoder {
	plain := !strings.Contains(strings.ToLower(contentType), "text/event-stream")
	return &Decoder{plain: plain}
}

// Feed consumes one chunk and returns the events completed by it. A frame
// split across chunks is held until its terminating blank line arrives.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.plain {
		if len(chunk) == 0 {
			return nil
		}
		return []Event{{Kind: KindTextDelta, Text: string(chunk)}}
	}
	d.buf = append(d.buf, chunk...)
	var events []Event
	for {
		frame, rest, ok := cutFrame(d.buf)
		if !ok {
			break
		}
		d.buf = rest
		if ev, ok := decodeFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Close drains a trailing frame that the source never terminated with a
// blank line. Call it once after the stream ends.
func (d *Decoder) Close() []Event {
	if d.plain || len(d.buf) == 0 {
		return nil
	}
	frame := d.buf
	d.buf = nil
	if ev, ok := decodeFrame(frame); ok {
		return []Event{ev}
	}
	return nil
}

// cutFrame splits buf at the first blank line, accepting both LF and CRLF
// line endings.
func cutFrame(buf []byte) (frame, rest []byte, ok bool) {
	iLF := bytes.Index(buf, []byte("\n\n"))
	iCRLF := bytes.Index(buf, []byte("\r\n\r\n"))
	switch {
	case iCRLF >= 0 && (iLF < 0 || iCRLF < iLF):
		return buf[:iCRLF], buf[iCRLF+4:], true
	case iLF >= 0:
		return buf[:iLF], buf[iLF+2:], true
	}
	return nil, buf, false
}

func decodeFrame(frame []byte) (Event, bool) {
	var payload []string
	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		v := strings.TrimPrefix(line[len("data:"):], " ")
		payload = append(payload, v)
	}
	if len(payload) == 0 {
		return Event{}, false
	}
	data := strings.Join(payload, "\n")
	if data == doneSentinel {
		return Event{}, false
	}
	return decodePayload(data)
}

func decodePayload(data string) (Event, bool) {
	var raw struct {
		Type           string          `json:"type"`
		Delta          string          `json:"delta"`
		Text           string          `json:"text"`
		ID             string          `json:"id"`
		ToolCallID     string          `json:"toolCallId"`
		ToolName       string          `json:"toolName"`
		InputTextDelta string          `json:"inputTextDelta"`
		Input          json.RawMessage `json:"input"`
		Output         json.RawMessage `json:"output"`
		ErrorText      string          `json:"errorText"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		// Not JSON: deliver the payload verbatim rather than drop it.
		return Event{Kind: KindTextDelta, Text: data}, true
	}
	id := raw.ToolCallID
	if id == "" {
		id = raw.ID
	}
	switch raw.Type {
	case "text-delta":
		return Event{Kind: KindTextDelta, Text: raw.Delta}, true
	case "tool-input-start":
		return Event{Kind: KindToolInputStart, ToolCallID: id, ToolName: raw.ToolName}, true
	case "tool-input-delta":
		delta := raw.InputTextDelta
		if delta == "" {
			delta = raw.Delta
		}
		return Event{Kind: KindToolInputDelta, ToolCallID: id, InputDelta: delta}, true
	case "tool-input-available":
		return Event{Kind: KindToolInputAvailable, ToolCallID: id, ToolName: raw.ToolName, Input: raw.Input}, true
	case "tool-input-error":
		return Event{Kind: KindToolInputError, ToolCallID: id, ToolName: raw.ToolName, Input: raw.Input, ErrorText: raw.ErrorText}, true
	case "tool-output-available":
		return Event{Kind: KindToolOutputAvailable, ToolCallID: id, Output: raw.Output}, true
	case "tool-output-error":
		return Event{Kind: KindToolOutputError, ToolCallID: id, ErrorText: raw.ErrorText}, true
	}
	// Unknown event types carry no transcript effect unless they hold text.
	if raw.Delta != "" {
		return Event{Kind: KindTextDelta, Text: raw.Delta}, true
	}
	if raw.Text != "" {
		return Event{Kind: KindTextDelta, Text: raw.Text}, true
	}
	return Event{}, false
}
