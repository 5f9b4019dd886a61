package service

import (
	"context"
	"time"

	"github.com/relaydeck/relaydeck/pkg/db"
)

// Write policy for transcript units. A dirty unit is written when the flush
// is forced, when it grew by at least flushChars since its last write, or
// when flushInterval has elapsed since its last write. Writes replace the
// unit's full content, so persisted rows only ever grow. A failed write is
// logged and skipped; the unit stays dirty and the next flush retries it.

func (t *transcript) flushTextLocked(ctx context.Context, force bool, status string) {
	t.flushSegmentLocked(ctx, &t.text, force, status)
}

func (t *transcript) flushSegmentLocked(ctx context.Context, seg *textSegment, force bool, status string) {
	if !seg.dirty {
		return
	}
	if !t.dueLocked(force, seg.buf.Len()-seg.writtenLen, seg.lastWrite) {
		return
	}

	parts := db.TextPart(seg.buf.String())
	if seg.messageID == 0 {
		msg := &db.Message{
			ConversationID: t.conversationID,
			Role:           db.RoleAssistant,
			TraceID:        t.runToken,
			Parts:          parts,
			Status:         status,
		}
		if err := t.store.CreateMessage(ctx, msg); err != nil {
			t.logger.Error("persist text segment failed", "conversation_id", t.conversationID, "error", err)
			return
		}
		seg.messageID = msg.ID
	} else {
		if err := t.store.UpdateMessageParts(ctx, seg.messageID, parts, status); err != nil {
			t.logger.Error("persist text segment failed", "conversation_id", t.conversationID, "message_id", seg.messageID, "error", err)
			return
		}
	}
	seg.writtenLen = seg.buf.Len()
	seg.lastWrite = time.Now()
	seg.dirty = false
	t.touchLocked(ctx)
}

func (t *transcript) flushToolLocked(ctx context.Context, rec *toolRecord, force bool) {
	if !rec.dirty {
		return
	}
	if !t.dueLocked(force, rec.partial.Len()-rec.writtenLen, rec.lastWrite) {
		return
	}

	parts := db.ToolPart(db.ToolCallPart{
		ToolCallID:   rec.callID,
		Name:         rec.name,
		Status:       rec.status,
		Input:        rec.input,
		PartialInput: rec.partial.String(),
		Output:       rec.output,
		ErrorText:    rec.errorText,
	})
	status := db.MessageStatusStreaming
	if rec.status == db.ToolStatusOutputAvailable || rec.status == db.ToolStatusOutputError {
		status = db.MessageStatusCompleted
	}

	if rec.messageID == 0 {
		msg := &db.Message{
			ConversationID: t.conversationID,
			Role:           db.RoleTool,
			TraceID:        t.runToken,
			Parts:          parts,
			Status:         status,
		}
		if err := t.store.CreateMessage(ctx, msg); err != nil {
			t.logger.Error("persist tool call failed", "conversation_id", t.conversationID, "tool_call_id", rec.callID, "error", err)
			return
		}
		rec.messageID = msg.ID
	} else {
		if err := t.store.UpdateMessageParts(ctx, rec.messageID, parts, status); err != nil {
			t.logger.Error("persist tool call failed", "conversation_id", t.conversationID, "tool_call_id", rec.callID, "error", err)
			return
		}
	}
	rec.writtenLen = rec.partial.Len()
	rec.lastWrite = time.Now()
	rec.dirty = false
	t.touchLocked(ctx)
}

// dueLocked decides whether a dirty unit should be written now. A zero
// lastWrite counts as overdue, so a unit's first content lands immediately.
func (t *transcript) dueLocked(force bool, grown int, lastWrite time.Time) bool {
	if force {
		return true
	}
	if grown >= t.flushChars {
		return true
	}
	return time.Since(lastWrite) >= t.flushInterval
}

func (t *transcript) touchLocked(ctx context.Context) {
	if err := t.store.TouchConversation(ctx, t.conversationID); err != nil {
		t.logger.Warn("touch conversation failed", "conversation_id", t.conversationID, "error", err)
	}
}
