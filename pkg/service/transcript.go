package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/relaydeck/relaydeck/pkg/db"
	"github.com/relaydeck/relaydeck/pkg/stream"
	"github.com/relaydeck/relaydeck/pkg/utils"
)

// transcript accumulates one run's decoded events into message units and
// writes them through the flush policy in flusher.go. A contiguous run of
// text deltas is one assistant message; every tool call is its own message.
// All methods are safe for concurrent use: the persistence loop owns the
// steady state while a client disconnect may force a flush from another
// goroutine.
type transcript struct {
	store          TranscriptStore
	conversationID string
	runToken       string
	flushChars     int
	flushInterval  time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	text    textSegment
	pending []*textSegment // closed segments whose final write failed, retried on later flushes
	tools   map[string]*toolRecord
	order   []string // tool call ids in arrival order, for deterministic full flushes
}

type textSegment struct {
	messageID  uint64
	buf        strings.Builder
	writtenLen int
	lastWrite  time.Time
	dirty      bool
}

type toolRecord struct {
	messageID  uint64
	callID     string
	name       string
	status     string
	partial    strings.Builder
	input      json.RawMessage
	output     json.RawMessage
	errorText  string
	writtenLen int
	lastWrite  time.Time
	dirty      bool
}

func newTranscript(store TranscriptStore, conversationID, runToken string, flushChars int, flushInterval time.Duration) *transcript {
	return &transcript{
		store:          store,
		conversationID: conversationID,
		runToken:       runToken,
		flushChars:     flushChars,
		flushInterval:  flushInterval,
		logger:         utils.GetLogger(),
		tools:          make(map[string]*toolRecord),
	}
}

// Apply folds one stream event into the transcript. State transitions and
// segment boundaries write immediately; plain deltas go through the flush
// thresholds.
func (t *transcript) Apply(ctx context.Context, ev stream.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Kind {
	case stream.KindTextDelta:
		if ev.Text == "" {
			return
		}
		t.text.buf.WriteString(ev.Text)
		t.text.dirty = true
		t.flushTextLocked(ctx, false, db.MessageStatusStreaming)

	case stream.KindToolInputStart:
		// A tool call closes the open text segment; text arriving afterwards
		// starts a fresh message.
		t.finishTextLocked(ctx, db.MessageStatusCompleted)
		rec := t.toolLocked(ev.ToolCallID)
		rec.name = ev.ToolName
		rec.status = db.ToolStatusInputStreaming
		rec.dirty = true
		t.flushToolLocked(ctx, rec, true)

	case stream.KindToolInputDelta:
		rec := t.toolLocked(ev.ToolCallID)
		rec.partial.WriteString(ev.InputDelta)
		rec.dirty = true
		t.flushToolLocked(ctx, rec, false)

	case stream.KindToolInputAvailable:
		rec := t.toolLocked(ev.ToolCallID)
		if ev.ToolName != "" {
			rec.name = ev.ToolName
		}
		rec.input = ev.Input
		rec.status = db.ToolStatusInputAvailable
		rec.dirty = true
		t.flushToolLocked(ctx, rec, true)

	case stream.KindToolInputError:
		rec := t.toolLocked(ev.ToolCallID)
		if ev.ToolName != "" {
			rec.name = ev.ToolName
		}
		rec.input = ev.Input
		rec.errorText = ev.ErrorText
		rec.status = db.ToolStatusOutputError
		rec.dirty = true
		t.flushToolLocked(ctx, rec, true)

	case stream.KindToolOutputAvailable:
		rec := t.toolLocked(ev.ToolCallID)
		rec.output = ev.Output
		rec.status = db.ToolStatusOutputAvailable
		rec.dirty = true
		t.flushToolLocked(ctx, rec, true)

	case stream.KindToolOutputError:
		rec := t.toolLocked(ev.ToolCallID)
		rec.errorText = ev.ErrorText
		rec.status = db.ToolStatusOutputError
		rec.dirty = true
		t.flushToolLocked(ctx, rec, true)
	}
}

// toolLocked returns the record for a tool call id, creating it on first
// sight so out-of-order streams still land somewhere.
func (t *transcript) toolLocked(id string) *toolRecord {
	if rec, ok := t.tools[id]; ok {
		return rec
	}
	rec := &toolRecord{callID: id, status: db.ToolStatusInputStreaming}
	t.tools[id] = rec
	t.order = append(t.order, id)
	return rec
}

// FlushAll forces every dirty unit to the store. Units already persisted at
// their current content are skipped, so repeated calls are free.
func (t *transcript) FlushAll(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushAllLocked(ctx, db.MessageStatusStreaming)
}

// Finalize force-flushes everything and marks the open text message with the
// run's terminal status. Call it exactly once when the run ends.
func (t *transcript) Finalize(ctx context.Context, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finishTextLocked(ctx, status)
	t.retryPendingLocked(ctx)
	for _, id := range t.order {
		t.flushToolLocked(ctx, t.tools[id], true)
	}
}

func (t *transcript) flushAllLocked(ctx context.Context, textStatus string) {
	t.flushTextLocked(ctx, true, textStatus)
	t.retryPendingLocked(ctx)
	for _, id := range t.order {
		t.flushToolLocked(ctx, t.tools[id], true)
	}
}

// finishTextLocked closes the open text segment: a final forced write with
// the given status, then a reset so the next delta opens a new message. If
// the write fails the closed segment is parked for retry; the reset still
// happens, so later deltas never merge into it.
func (t *transcript) finishTextLocked(ctx context.Context, status string) {
	seg := &t.text
	if seg.messageID == 0 && seg.buf.Len() == 0 {
		return
	}
	seg.dirty = true
	t.flushTextLocked(ctx, true, status)
	if seg.dirty {
		parked := t.text
		t.pending = append(t.pending, &parked)
	}
	t.text = textSegment{}
}

// retryPendingLocked rewrites closed segments whose boundary write failed.
// A segment leaves the list only once its content is stored.
func (t *transcript) retryPendingLocked(ctx context.Context) {
	kept := t.pending[:0]
	for _, seg := range t.pending {
		t.flushSegmentLocked(ctx, seg, true, db.MessageStatusCompleted)
		if seg.dirty {
			kept = append(kept, seg)
		}
	}
	t.pending = kept
}
