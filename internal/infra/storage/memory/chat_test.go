package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "threadmarket/internal/domain/chat"
	domainuser "threadmarket/internal/domain/user"
)

func seedStore(t *testing.T) (*ChatStore, *domainchat.Conversation) {
	t.Helper()
	users := NewUserRepository()
	ctx := context.Background()
	for _, name := range []string{"amara", "kenji"} {
		u, err := domainuser.New(domainuser.CreateParams{ID: "u-" + name, Username: name})
		if err != nil {
			t.Fatalf("user fixture: %v", err)
		}
		if err := users.Save(ctx, u); err != nil {
			t.Fatalf("user save: %v", err)
		}
	}
	store := NewChatStore(users, NewListingRepository())
	conv, err := store.CreateConversation(ctx, "u-amara", "u-kenji", "")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return store, conv
}

func TestCreateConversationIdempotent(t *testing.T) {
	store, conv := seedStore(t)
	ctx := context.Background()

	// Same pair in either order maps to the same row.
	again, err := store.CreateConversation(ctx, "u-kenji", "u-amara", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if again.ID != conv.ID {
		t.Errorf("expected existing conversation %s, got %s", conv.ID, again.ID)
	}

	// A different listing scope is a different conversation.
	scoped, err := store.CreateConversation(ctx, "u-amara", "u-kenji", "l1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if scoped.ID == conv.ID {
		t.Error("listing-scoped conversation should be distinct")
	}
}

func TestCreateConversationRejectsSelf(t *testing.T) {
	store, _ := seedStore(t)
	if _, err := store.CreateConversation(context.Background(), "u-amara", "u-amara", ""); !errors.Is(err, domainchat.ErrParticipantsRequired) {
		t.Errorf("expected participants error, got %v", err)
	}
}

func TestInsertMessageBumpsUnreadAndPreview(t *testing.T) {
	store, conv := seedStore(t)
	ctx := context.Background()

	msg, err := store.InsertMessage(ctx, domainchat.InsertMessageParams{
		ConversationID: conv.ID,
		SenderID:       "u-amara",
		Type:           domainchat.MessageText,
		Content:        "is this still available?",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if msg.Sender.Username != "amara" {
		t.Errorf("sender profile not joined: %+v", msg.Sender)
	}

	reloaded, err := store.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Unread["u-kenji"] != 1 {
		t.Errorf("recipient unread = %d, want 1", reloaded.Unread["u-kenji"])
	}
	if reloaded.Unread["u-amara"] != 0 {
		t.Errorf("sender unread = %d, want 0", reloaded.Unread["u-amara"])
	}
	if reloaded.LastMessage == nil || reloaded.LastMessage.ID != msg.ID {
		t.Error("last message preview not updated")
	}
}

func TestInsertMessageRejectsOutsider(t *testing.T) {
	store, conv := seedStore(t)
	_, err := store.InsertMessage(context.Background(), domainchat.InsertMessageParams{
		ConversationID: conv.ID,
		SenderID:       "u-stranger",
		Content:        "hi",
	})
	if !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Errorf("expected participant error, got %v", err)
	}
}

func TestMessagesPaginationWithBeforeCursor(t *testing.T) {
	store, conv := seedStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		if _, err := store.InsertMessage(ctx, domainchat.InsertMessageParams{
			ConversationID: conv.ID,
			SenderID:       "u-amara",
			Content:        "msg",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	page, err := store.Messages(ctx, conv.ID, 10, time.Time{})
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if len(page) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(page))
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.Before(page[i-1].CreatedAt) {
			t.Errorf("page not ascending at %d", i)
		}
	}

	older, err := store.Messages(ctx, conv.ID, 10, page[0].CreatedAt)
	if err != nil {
		t.Fatalf("older page failed: %v", err)
	}
	if len(older) != 10 {
		t.Fatalf("expected 10 older messages, got %d", len(older))
	}
	// Exclusive cursor: nothing in the older page overlaps the first page.
	if !older[len(older)-1].CreatedAt.Before(page[0].CreatedAt) {
		t.Error("cursor boundary is not exclusive")
	}
}

func TestMessagesUnknownConversation(t *testing.T) {
	store, _ := seedStore(t)
	if _, err := store.Messages(context.Background(), "missing", 10, time.Time{}); !errors.Is(err, domainchat.ErrConversationNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMarkConversationReadIsIdempotent(t *testing.T) {
	store, conv := seedStore(t)
	ctx := context.Background()
	if _, err := store.InsertMessage(ctx, domainchat.InsertMessageParams{
		ConversationID: conv.ID,
		SenderID:       "u-amara",
		Content:        "hello",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.MarkConversationRead(ctx, conv.ID, "u-kenji"); err != nil {
			t.Fatalf("mark read failed: %v", err)
		}
	}

	reloaded, err := store.Conversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Unread["u-kenji"] != 0 {
		t.Errorf("unread = %d, want 0", reloaded.Unread["u-kenji"])
	}

	messages, err := store.Messages(ctx, conv.ID, 10, time.Time{})
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if messages[0].ReadAt == nil {
		t.Error("inbound message not stamped read")
	}
}

func TestDeleteMessageSoftDeletes(t *testing.T) {
	store, conv := seedStore(t)
	ctx := context.Background()
	msg, err := store.InsertMessage(ctx, domainchat.InsertMessageParams{
		ConversationID: conv.ID,
		SenderID:       "u-amara",
		Content:        "typo",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	if _, err := store.DeleteMessage(ctx, conv.ID, msg.ID, "u-kenji"); !errors.Is(err, domainchat.ErrNotParticipant) {
		t.Errorf("non-sender delete should fail, got %v", err)
	}

	deleted, err := store.DeleteMessage(ctx, conv.ID, msg.ID, "u-amara")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !deleted.Deleted || deleted.Content != domainchat.DeletedPlaceholder {
		t.Errorf("message not soft-deleted: %+v", deleted)
	}

	// The row survives in the history.
	messages, err := store.Messages(ctx, conv.ID, 10, time.Time{})
	if err != nil {
		t.Fatalf("messages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("soft delete removed the row, got %d messages", len(messages))
	}
}

func TestToggleReactionAddsAndRemoves(t *testing.T) {
	store, conv := seedStore(t)
	ctx := context.Background()
	msg, err := store.InsertMessage(ctx, domainchat.InsertMessageParams{
		ConversationID: conv.ID,
		SenderID:       "u-amara",
		Content:        "love this",
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	withReaction, err := store.ToggleReaction(ctx, conv.ID, msg.ID, "u-kenji", "❤️")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if users := withReaction.Reactions["❤️"]; len(users) != 1 || users[0] != "u-kenji" {
		t.Errorf("reaction not added: %+v", withReaction.Reactions)
	}

	without, err := store.ToggleReaction(ctx, conv.ID, msg.ID, "u-kenji", "❤️")
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if len(without.Reactions) != 0 {
		t.Errorf("reaction not removed: %+v", without.Reactions)
	}
}

func TestUserConversationsOrderedByActivity(t *testing.T) {
	store, first := seedStore(t)
	ctx := context.Background()
	second, err := store.CreateConversation(ctx, "u-amara", "u-kenji", "l1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := store.InsertMessage(ctx, domainchat.InsertMessageParams{
		ConversationID: second.ID,
		SenderID:       "u-kenji",
		Content:        "newer",
	}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	summaries, err := store.UserConversations(ctx, "u-amara")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(summaries))
	}
	if summaries[0].ID != second.ID || summaries[1].ID != first.ID {
		t.Error("rows not ordered by most recent activity")
	}
	if summaries[0].Peer.Username != "kenji" {
		t.Errorf("peer profile not joined: %+v", summaries[0].Peer)
	}
	if summaries[0].Unread != 1 {
		t.Errorf("unread = %d, want 1", summaries[0].Unread)
	}
}
