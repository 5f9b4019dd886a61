package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/relaydeck/relaydeck/pkg/config"
	"github.com/relaydeck/relaydeck/pkg/db"
	"github.com/relaydeck/relaydeck/pkg/event"
	"github.com/relaydeck/relaydeck/pkg/models"
	"github.com/relaydeck/relaydeck/pkg/provider"
	"github.com/relaydeck/relaydeck/pkg/stream"
	"github.com/relaydeck/relaydeck/pkg/utils"
)

// ErrConversationNotFound is returned when a conversation id resolves to nothing.
var ErrConversationNotFound = errors.New("conversation not found")

// Run terminal states reported in RunCompletedEvent.
const (
	runStatusCompleted = "completed"
	runStatusError     = "error"
	runStatusCancelled = "cancelled"
)

// ChatService owns conversations, their transcripts, and the live generation
// runs that produce them. Streaming persistence is detached from the client
// connection: a disconnected client never aborts a run's transcript.
type ChatService struct {
	db        *gorm.DB
	generator provider.Generator
	registry  *RunRegistry
	store     TranscriptStore
	logger    *slog.Logger

	ephemeral     bool
	flushChars    int
	flushInterval time.Duration

	wg sync.WaitGroup // live persistence tasks, for graceful shutdown
}

func NewChatService(gdb *gorm.DB, gen provider.Generator, cfg *config.AppConfig) *ChatService {
	return &ChatService{
		db:            gdb,
		generator:     gen,
		registry:      NewRunRegistry(),
		store:         NewTranscriptStore(gdb),
		logger:        utils.GetLogger(),
		ephemeral:     cfg.Ephemeral(),
		flushChars:    cfg.FlushChars(),
		flushInterval: cfg.FlushInterval(),
	}
}

// RunStream is the client-facing side of a live run. Next yields verbatim
// backend bytes; CloseClient detaches the client without touching the
// persistence branch.
type RunStream struct {
	ConversationID string
	RunToken       string
	ContentType    string
	Header         http.Header

	client     *stream.Branch
	transcript *transcript
	closeOnce  sync.Once
}

// Next returns the next raw chunk for the client.
func (rs *RunStream) Next() ([]byte, error) {
	return rs.client.Next()
}

// CloseClient stops the client branch and forces a best-effort flush of what
// the run has accumulated so far. The run itself keeps going.
func (rs *RunStream) CloseClient() {
	rs.closeOnce.Do(func() {
		rs.client.Cancel()
		if rs.transcript != nil {
			rs.transcript.FlushAll(context.Background())
		}
	})
}

// ChatStream starts a streaming run and returns its client branch. Any live
// run on the same conversation is cancelled before the backend is invoked.
// The run is ephemeral (nothing persisted) when the service is configured
// ephemeral or the request carries no user token.
func (s *ChatService) ChatStream(ctx context.Context, req *models.ChatRequest) (*RunStream, error) {
	persist := !s.ephemeral && req.UserToken != ""
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	if persist {
		if err := s.ensureConversation(ctx, convID, req.Prompt); err != nil {
			return nil, err
		}
		if err := s.persistUserMessage(ctx, convID, req.Prompt); err != nil {
			return nil, err
		}
	}

	token := uuid.NewString()
	// Detached from the request context: the run and its persistence must
	// outlive the client connection.
	runCtx, cancel := context.WithCancel(context.Background())
	if superseded := s.registry.Begin(convID, token, cancel); superseded != "" {
		event.Emit(event.RunSupersededEvent{ConversationID: convID, RunToken: superseded})
	}

	res, err := s.generator.Generate(runCtx, provider.Request{
		ConversationID: convID,
		Prompt:         req.Prompt,
		Model:          req.Model,
		Stream:         true,
	})
	if err != nil {
		s.registry.Complete(convID, token)
		cancel()
		return nil, err
	}

	body := res.Body
	contentType := res.ContentType
	header := res.Header
	if !res.IsStream() {
		// Backend chose to answer synchronously; relay it as a one-chunk
		// plain stream so clients and persistence see a single code path.
		contentType = "text/plain; charset=utf-8"
		body = io.NopCloser(strings.NewReader(res.Text))
		header = http.Header{"Content-Type": {contentType}}
	}

	clientBranch, persistBranch := stream.Split(body)

	var tr *transcript
	if persist {
		tr = newTranscript(s.store, convID, token, s.flushChars, s.flushInterval)
	}

	event.Emit(event.RunStartedEvent{ConversationID: convID, RunToken: token})
	s.wg.Add(1)
	go s.persistRun(runCtx, cancel, body, persistBranch, tr, contentType, convID, token)

	return &RunStream{
		ConversationID: convID,
		RunToken:       token,
		ContentType:    contentType,
		Header:         header,
		client:         clientBranch,
		transcript:     tr,
	}, nil
}

// persistRun drains the persistence branch to the end of the stream, feeding
// the transcript, then finalizes and releases the run. Store writes use a
// background context: neither client disconnect nor run cancellation may
// abort the final flush.
func (s *ChatService) persistRun(runCtx context.Context, cancel context.CancelFunc, body io.Closer, br *stream.Branch, tr *transcript, contentType, convID, token string) {
	defer s.wg.Done()
	defer cancel()
	defer body.Close()

	ctx := context.Background()
	dec := stream.NewDecoder(contentType)
	status := runStatusCompleted
	for {
		chunk, err := br.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case runCtx.Err() != nil || errors.Is(err, context.Canceled):
				status = runStatusCancelled
			default:
				status = runStatusError
				s.logger.Error("generation stream failed", "conversation_id", convID, "run_token", token, "error", err)
			}
			break
		}
		if tr == nil {
			continue
		}
		for _, ev := range dec.Feed(chunk) {
			tr.Apply(ctx, ev)
		}
	}

	if tr != nil {
		for _, ev := range dec.Close() {
			tr.Apply(ctx, ev)
		}
		msgStatus := db.MessageStatusCompleted
		if status == runStatusError {
			msgStatus = db.MessageStatusError
		}
		tr.Finalize(ctx, msgStatus)
	}

	s.registry.Complete(convID, token)
	event.Emit(event.RunCompletedEvent{ConversationID: convID, RunToken: token, Status: status})
	if tr != nil {
		event.Emit(event.ConversationUpdatedEvent{ConversationID: convID})
	}
	s.logger.Info("run finished", "conversation_id", convID, "run_token", token, "status", status)
}

// Chat handles the non-streaming path: invoke the backend, persist the full
// exchange, return the text. It still claims the conversation's run slot so
// concurrent turns supersede each other.
func (s *ChatService) Chat(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	persist := !s.ephemeral && req.UserToken != ""
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	if persist {
		if err := s.ensureConversation(ctx, convID, req.Prompt); err != nil {
			return nil, err
		}
		if err := s.persistUserMessage(ctx, convID, req.Prompt); err != nil {
			return nil, err
		}
	}

	token := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if superseded := s.registry.Begin(convID, token, cancel); superseded != "" {
		event.Emit(event.RunSupersededEvent{ConversationID: convID, RunToken: superseded})
	}
	defer s.registry.Complete(convID, token)

	res, err := s.generator.Generate(runCtx, provider.Request{
		ConversationID: convID,
		Prompt:         req.Prompt,
		Model:          req.Model,
		Stream:         false,
	})
	if err != nil {
		return nil, err
	}

	text := res.Text
	if res.IsStream() {
		text, err = collectStreamText(res)
		if err != nil {
			return nil, err
		}
	}

	resp := &models.ChatResponse{ConversationID: convID, Text: text}
	if persist {
		msg := &db.Message{
			ConversationID: convID,
			Role:           db.RoleAssistant,
			TraceID:        token,
			Parts:          db.TextPart(text),
			Status:         db.MessageStatusCompleted,
		}
		if err := s.store.CreateMessage(ctx, msg); err != nil {
			return nil, err
		}
		if err := s.store.TouchConversation(ctx, convID); err != nil {
			s.logger.Warn("touch conversation failed", "conversation_id", convID, "error", err)
		}
		resp.MessageID = msg.ID
		event.Emit(event.ConversationUpdatedEvent{ConversationID: convID})
	}
	return resp, nil
}

// collectStreamText drains a stream result into plain text, for backends
// that stream even when asked not to.
func collectStreamText(res *provider.Result) (string, error) {
	defer res.Body.Close()
	dec := stream.NewDecoder(res.ContentType)
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if ev.Kind == stream.KindTextDelta {
					sb.WriteString(ev.Text)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "read generation stream")
		}
	}
	for _, ev := range dec.Close() {
		if ev.Kind == stream.KindTextDelta {
			sb.WriteString(ev.Text)
		}
	}
	return sb.String(), nil
}

// CancelRun stops the conversation's live run, if any.
func (s *ChatService) CancelRun(conversationID string) bool {
	return s.registry.Cancel(conversationID)
}

// IsRunning reports whether the conversation has a live run.
func (s *ChatService) IsRunning(conversationID string) bool {
	return s.registry.IsActive(conversationID)
}

// Shutdown waits for in-flight persistence tasks to drain, or returns the
// context's error if they don't finish in time.
func (s *ChatService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for persistence tasks")
	}
}

func (s *ChatService) ensureConversation(ctx context.Context, id, prompt string) error {
	conv := db.Conversation{
		ID:     id,
		Title:  titleFromPrompt(prompt),
		Status: db.ConversationStatusActive,
	}
	err := s.db.WithContext(ctx).Where("id = ?", id).FirstOrCreate(&conv).Error
	return errors.Wrap(err, "ensure conversation")
}

func (s *ChatService) persistUserMessage(ctx context.Context, convID, prompt string) error {
	msg := &db.Message{
		ConversationID: convID,
		Role:           db.RoleUser,
		Parts:          db.TextPart(prompt),
		Status:         db.MessageStatusCompleted,
	}
	return s.store.CreateMessage(ctx, msg)
}

func titleFromPrompt(prompt string) string {
	title := strings.TrimSpace(prompt)
	if title == "" {
		return "New Chat"
	}
	runes := []rune(title)
	if len(runes) > 64 {
		return string(runes[:64])
	}
	return title
}
