package stream

import (
	"testing"
)

func feedAll(d *Decoder, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	events = append(events, d.Close()...)
	return events
}

func TestDecoderFrameSplitAcrossChunks(t *testing.T) {
	d := NewDecoder("text/event-stream")
	events := feedAll(d,
		"data: {\"type\":\"text-del",
		"ta\",\"delta\":\"Hel\"}\n\ndata: {\"type\":\"text-delta\",\"delta\":\"lo\"}\n\n",
	)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Kind != KindTextDelta || events[0].Text != "Hel" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Text != "lo" {
		t.Fatalf("second event = %+v", events[1])
	}
}

func TestDecoderDoneSentinelSwallowed(t *testing.T) {
	d := NewDecoder("text/event-stream; charset=utf-8")
	events := feedAll(d, "data: {\"type\":\"text-delta\",\"delta\":\"x\"}\n\ndata: [DONE]\n\n")
	if len(events) != 1 || events[0].Text != "x" {
		t.Fatalf("sentinel leaked into events: %+v", events)
	}
}

func TestDecoderToolCallSequence(t *testing.T) {
	d := NewDecoder("text/event-stream")
	events := feedAll(d,
		"data: {\"type\":\"tool-input-start\",\"toolCallId\":\"tc1\",\"toolName\":\"search\"}\n\n",
		"data: {\"type\":\"tool-input-delta\",\"toolCallId\":\"tc1\",\"inputTextDelta\":\"{\\\"q\\\":\"}\n\n",
		"data: {\"type\":\"tool-input-available\",\"toolCallId\":\"tc1\",\"toolName\":\"search\",\"input\":{\"q\":\"go\"}}\n\n",
		"data: {\"type\":\"tool-output-available\",\"toolCallId\":\"tc1\",\"output\":{\"hits\":3}}\n\n",
	)
	wantKinds := []Kind{KindToolInputStart, KindToolInputDelta, KindToolInputAvailable, KindToolOutputAvailable}
	if len(events) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantKinds), len(events), events)
	}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Fatalf("event %d kind = %s, want %s", i, events[i].Kind, k)
		}
		if events[i].ToolCallID != "tc1" {
			t.Fatalf("event %d tool call id = %q", i, events[i].ToolCallID)
		}
	}
	if events[0].ToolName != "search" {
		t.Fatalf("tool name = %q", events[0].ToolName)
	}
	if events[1].InputDelta != "{\"q\":" {
		t.Fatalf("input delta = %q", events[1].InputDelta)
	}
	if string(events[2].Input) != "{\"q\":\"go\"}" {
		t.Fatalf("input = %s", events[2].Input)
	}
	if string(events[3].Output) != "{\"hits\":3}" {
		t.Fatalf("output = %s", events[3].Output)
	}
}

func TestDecoderMalformedPayloadBecomesText(t *testing.T) {
	d := NewDecoder("text/event-stream")
	events := feedAll(d, "data: not json at all\n\n")
	if len(events) != 1 || events[0].Kind != KindTextDelta || events[0].Text != "not json at all" {
		t.Fatalf("malformed payload handling: %+v", events)
	}
}

func TestDecoderPlainBodyPassesThrough(t *testing.T) {
	d := NewDecoder("text/plain")
	events := feedAll(d, "raw ", "bytes")
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Text != "raw " || events[1].Text != "bytes" {
		t.Fatalf("plain passthrough mangled: %+v", events)
	}
}

func TestDecoderCRLFAndUnterminatedTail(t *testing.T) {
	d := NewDecoder("text/event-stream")
	events := feedAll(d,
		"data: {\"type\":\"text-delta\",\"delta\":\"a\"}\r\n\r\n",
		"data: {\"type\":\"text-delta\",\"delta\":\"tail\"}",
	)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Text != "a" || events[1].Text != "tail" {
		t.Fatalf("got %+v", events)
	}
}

func TestDecoderUnknownEventTypeIgnored(t *testing.T) {
	d := NewDecoder("text/event-stream")
	events := feedAll(d, "data: {\"type\":\"finish\"}\n\ndata: {\"type\":\"text-delta\",\"delta\":\"z\"}\n\n")
	if len(events) != 1 || events[0].Text != "z" {
		t.Fatalf("unknown event not ignored: %+v", events)
	}
}
