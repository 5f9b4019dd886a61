package service

import (
	"context"
	"sync"
)

type runEntry struct {
	token  string
	cancel context.CancelFunc
	once   sync.Once
}

func (e *runEntry) stop() {
	e.once.Do(e.cancel)
}

// RunRegistry tracks the single live generation run per conversation.
// Starting a new run cancels and replaces the previous one in one step, so
// there is never a moment with two live runs for the same conversation.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]*runEntry
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*runEntry)}
}

// Begin registers a new run for the conversation, cancelling any predecessor.
// It returns the new run's token and the superseded run's token ("" if the
// conversation was idle).
func (r *RunRegistry) Begin(conversationID, token string, cancel context.CancelFunc) (superseded string) {
	r.mu.Lock()
	prev := r.runs[conversationID]
	r.runs[conversationID] = &runEntry{token: token, cancel: cancel}
	r.mu.Unlock()

	if prev != nil {
		prev.stop()
		return prev.token
	}
	return ""
}

// Cancel stops the conversation's live run, if any, and removes it. It
// reports whether a run was live. Cancelling twice is harmless: the
// underlying cancel fires at most once.
func (r *RunRegistry) Cancel(conversationID string) bool {
	r.mu.Lock()
	entry := r.runs[conversationID]
	delete(r.runs, conversationID)
	r.mu.Unlock()

	if entry == nil {
		return false
	}
	entry.stop()
	return true
}

// Complete removes the run only if token still identifies the live run. A
// superseded run completing late must not evict its replacement.
func (r *RunRegistry) Complete(conversationID, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.runs[conversationID]
	if entry == nil || entry.token != token {
		return false
	}
	delete(r.runs, conversationID)
	return true
}

// IsActive reports whether the conversation has a live run.
func (r *RunRegistry) IsActive(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[conversationID]
	return ok
}
