package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

func TestThreadLoadFetchesRecentPage(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		api.seedMessage("c1", "u2", "hello", base.Add(time.Duration(i)*time.Minute))
	}

	thread := NewThread(api, nil, "c1", "me")
	if err := thread.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	messages := thread.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
	if thread.Conversation() == nil {
		t.Error("conversation metadata not loaded")
	}
	if thread.Loading() {
		t.Error("loading flag stuck")
	}
}

func TestThreadApplyDeduplicatesByID(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	thread := NewThread(api, nil, "c1", "me")
	if err := thread.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// The send response lands first, then the transport echoes the same row.
	sent, err := thread.Send(context.Background(), domainchat.SendParams{Type: domainchat.MessageText, Content: "hi"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if added := thread.Apply(*sent); added {
		t.Error("duplicate echo was applied")
	}
	if got := len(thread.Messages()); got != 1 {
		t.Errorf("expected 1 message, got %d", got)
	}
}

func TestThreadApplyInsertsOutOfOrder(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	thread := NewThread(api, nil, "c1", "me")
	if err := thread.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	now := time.Now()
	thread.Apply(domainchat.Message{ID: "a", ConversationID: "c1", CreatedAt: now})
	thread.Apply(domainchat.Message{ID: "b", ConversationID: "c1", CreatedAt: now.Add(time.Second)})
	// late arrival with an earlier timestamp
	thread.Apply(domainchat.Message{ID: "c", ConversationID: "c1", CreatedAt: now.Add(-time.Second)})

	messages := thread.Messages()
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[0].ID != "c" || messages[1].ID != "a" || messages[2].ID != "b" {
		t.Errorf("unexpected order: %s %s %s", messages[0].ID, messages[1].ID, messages[2].ID)
	}
}

func TestThreadApplyRejectsForeignConversation(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	thread := NewThread(api, nil, "c1", "me")

	if added := thread.Apply(domainchat.Message{ID: "x", ConversationID: "other", CreatedAt: time.Now()}); added {
		t.Error("message for another conversation was applied")
	}
}

func TestThreadLoadMorePrependsOlderHistory(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 60; i++ {
		api.seedMessage("c1", "u2", "msg", base.Add(time.Duration(i)*time.Second))
	}

	thread := NewThread(api, nil, "c1", "me")
	if err := thread.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := len(thread.Messages()); got != 50 {
		t.Fatalf("expected initial page of 50, got %d", got)
	}
	oldest := thread.Messages()[0]

	added, err := thread.LoadMore(context.Background())
	if err != nil {
		t.Fatalf("load more failed: %v", err)
	}
	if added != 10 {
		t.Errorf("expected 10 older messages, got %d", added)
	}
	messages := thread.Messages()
	if len(messages) != 60 {
		t.Fatalf("expected 60 messages, got %d", len(messages))
	}
	if !messages[9].CreatedAt.Before(oldest.CreatedAt) {
		t.Error("older page was not prepended before the previous window")
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestThreadLoadMoreCursorUnaffectedByNewTail(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 55; i++ {
		api.seedMessage("c1", "u2", "msg", base.Add(time.Duration(i)*time.Second))
	}

	thread := NewThread(api, nil, "c1", "me")
	if err := thread.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// New activity lands at the tail between the load and the page-back.
	tail := api.seedMessage("c1", "u2", "new", time.Now())
	thread.Apply(tail)

	added, err := thread.LoadMore(context.Background())
	if err != nil {
		t.Fatalf("load more failed: %v", err)
	}
	if added != 5 {
		t.Errorf("expected the 5 remaining older messages, got %d", added)
	}
	if got := len(thread.Messages()); got != 56 {
		t.Errorf("expected 56 messages, got %d", got)
	}
}

func TestThreadLoadMoreOnEmptyFallsBackToLoad(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	api.seedMessage("c1", "u2", "only", time.Now())

	thread := NewThread(api, nil, "c1", "me")
	added, err := thread.LoadMore(context.Background())
	if err != nil {
		t.Fatalf("load more failed: %v", err)
	}
	if added != 1 {
		t.Errorf("expected 1 message from fallback load, got %d", added)
	}
}

func TestThreadLoadErrorIsSticky(t *testing.T) {
	api := newFakeChatAPI()
	api.seedConversation("c1", "me", "u2")
	boom := errors.New("store down")
	api.msgErr = boom

	thread := NewThread(api, nil, "c1", "me")
	if err := thread.Load(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if !errors.Is(thread.Err(), boom) {
		t.Error("error not held as state")
	}
	if thread.Loading() {
		t.Error("loading flag stuck after failure")
	}

	api.msgErr = nil
	if err := thread.Load(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if thread.Err() != nil {
		t.Error("error not cleared after successful reload")
	}
}
