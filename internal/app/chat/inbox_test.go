package chat

import (
	"context"
	"errors"
	"testing"

	domainchat "threadmarket/internal/domain/chat"
)

func TestInboxLoadCachesSummaries(t *testing.T) {
	api := newFakeChatAPI()
	api.summaries["me"] = []domainchat.Summary{
		{ID: "c1", Unread: 2},
		{ID: "c2", Unread: 0},
	}

	inbox := NewInbox(api, nil, "me")
	if err := inbox.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := len(inbox.Summaries()); got != 2 {
		t.Errorf("expected 2 rows, got %d", got)
	}
	if got := inbox.Unread("c1"); got != 2 {
		t.Errorf("expected unread 2, got %d", got)
	}
}

func TestInboxLoadFailureKeepsPreviousRows(t *testing.T) {
	api := newFakeChatAPI()
	api.summaries["me"] = []domainchat.Summary{{ID: "c1", Unread: 1}}

	inbox := NewInbox(api, nil, "me")
	if err := inbox.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	boom := errors.New("backend down")
	api.listErr = boom
	if err := inbox.Load(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if got := len(inbox.Summaries()); got != 1 {
		t.Errorf("stale rows should stay visible, got %d", got)
	}
	if !errors.Is(inbox.Err(), boom) {
		t.Error("error not held as state")
	}
	if inbox.Loading() {
		t.Error("loading flag stuck after failure")
	}
}

func TestInboxMarkReadZeroesLocallyBeforeRemote(t *testing.T) {
	api := newFakeChatAPI()
	api.summaries["me"] = []domainchat.Summary{{ID: "c1", Unread: 5}}

	inbox := NewInbox(api, nil, "me")
	if err := inbox.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	// Even when the remote commit fails the local counter is already zero;
	// the next reload restores the authoritative value.
	api.markErr = errors.New("commit failed")
	if err := inbox.MarkConversationRead(context.Background(), "c1"); err == nil {
		t.Error("expected remote error to surface")
	}
	if got := inbox.Unread("c1"); got != 0 {
		t.Errorf("expected optimistic zero, got %d", got)
	}
	if api.markReadCount() != 1 {
		t.Errorf("expected 1 remote commit, got %d", api.markReadCount())
	}
}

func TestInboxCreateConversationReloads(t *testing.T) {
	api := newFakeChatAPI()
	inbox := NewInbox(api, nil, "me")

	conversation, err := inbox.CreateConversation(context.Background(), "u2", "l1")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if conversation.ID == "" {
		t.Error("expected a conversation id")
	}

	again, err := inbox.CreateConversation(context.Background(), "u2", "l1")
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if again.ID != conversation.ID {
		t.Errorf("creation not idempotent: %s vs %s", conversation.ID, again.ID)
	}
}

func TestInboxesNotifyRefreshesWarmOnly(t *testing.T) {
	api := newFakeChatAPI()
	inboxes := NewInboxes(api, nil)

	warm := inboxes.For("me")
	if err := warm.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	api.summaries["me"] = []domainchat.Summary{{ID: "c1", Unread: 1}}
	api.summaries["cold"] = []domainchat.Summary{{ID: "c9", Unread: 4}}

	inboxes.Notify(context.Background(), "me", "cold")

	if got := len(warm.Summaries()); got != 1 {
		t.Errorf("warm inbox not refreshed, got %d rows", got)
	}
	// The cold user gets a fresh, unloaded inbox on first access.
	cold := inboxes.For("cold")
	if got := len(cold.Summaries()); got != 0 {
		t.Errorf("cold inbox should not have been warmed by notify, got %d rows", got)
	}
}
