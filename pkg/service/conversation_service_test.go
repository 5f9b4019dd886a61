package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"

	"github.com/relaydeck/relaydeck/pkg/db"
	"github.com/relaydeck/relaydeck/pkg/models"
	"github.com/relaydeck/relaydeck/pkg/provider"
)

func TestConversationCRUD(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{generate: func(context.Context, provider.Request) (*provider.Result, error) {
		return &provider.Result{Text: "ok"}, nil
	}}
	svc, _ := newTestService(t, gen)

	conv, err := svc.CreateConversation(ctx, &models.CreateConversationRequest{Title: "notes"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conv.ID == "" || conv.Status != db.ConversationStatusActive {
		t.Fatalf("created conversation = %+v", conv)
	}

	got, err := svc.GetConversation(ctx, conv.ID)
	if err != nil || got.Title != "notes" {
		t.Fatalf("get: %+v, %v", got, err)
	}

	updated, err := svc.UpdateConversation(ctx, conv.ID, &models.UpdateConversationRequest{
		Title: "renamed", Status: db.ConversationStatusArchived,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "renamed" || updated.Status != db.ConversationStatusArchived {
		t.Fatalf("updated conversation = %+v", updated)
	}

	if _, err := svc.UpdateConversation(ctx, conv.ID, &models.UpdateConversationRequest{Status: "bogus"}); err == nil {
		t.Fatal("invalid status accepted")
	}

	if err := svc.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetConversation(ctx, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("get after delete = %v, want ErrConversationNotFound", err)
	}
	if err := svc.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("double delete = %v", err)
	}
}

func TestListConversationsFilterAndPaging(t *testing.T) {
	ctx := context.Background()
	svc, gdb := newTestService(t, &fakeGenerator{})

	for i := 0; i < 3; i++ {
		if _, err := svc.CreateConversation(ctx, &models.CreateConversationRequest{Title: fmt.Sprintf("c%d", i)}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// Archive one of them directly.
	var conv db.Conversation
	gdb.First(&conv)
	gdb.Model(&conv).Update("status", db.ConversationStatusArchived)

	active, err := svc.ListConversations(ctx, db.ConversationStatusActive, 0, 0)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active.Conversations) != 2 {
		t.Fatalf("active count = %d", len(active.Conversations))
	}

	page, err := svc.ListConversations(ctx, "", 2, 0)
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page.Conversations) != 2 || !page.HasMore {
		t.Fatalf("page = %d items, has_more = %v", len(page.Conversations), page.HasMore)
	}
}

func TestListMessagesCursorPaging(t *testing.T) {
	ctx := context.Background()
	svc, gdb := newTestService(t, &fakeGenerator{})

	conv, err := svc.CreateConversation(ctx, &models.CreateConversationRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 5; i++ {
		msg := &db.Message{
			ConversationID: conv.ID,
			Role:           db.RoleUser,
			Parts:          db.TextPart(fmt.Sprintf("m%d", i)),
			Status:         db.MessageStatusCompleted,
		}
		if err := gdb.Create(msg).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	first, err := svc.ListMessages(ctx, conv.ID, 0, 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Messages) != 2 || !first.HasMore {
		t.Fatalf("first page = %+v", first)
	}
	if first.Messages[0].TextContent() != "m0" {
		t.Fatalf("first message = %q", first.Messages[0].TextContent())
	}

	second, err := svc.ListMessages(ctx, conv.ID, first.NextCursor, 10)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Messages) != 3 || second.HasMore {
		t.Fatalf("second page = %+v", second)
	}
	if second.Messages[0].TextContent() != "m2" {
		t.Fatalf("cursor resumed at %q", second.Messages[0].TextContent())
	}

	if _, err := svc.ListMessages(ctx, "missing", 0, 10); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("missing conversation = %v", err)
	}
}
