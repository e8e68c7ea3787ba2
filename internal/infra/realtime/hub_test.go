package realtime

import (
	"context"
	"testing"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

func recvEvent(t *testing.T, sub domainchat.Subscription) domainchat.Event {
	t.Helper()
	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domainchat.Event{}
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	a, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	b, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	other, err := hub.Subscribe(ctx, "c2")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	msg := domainchat.Message{ID: "m1", ConversationID: "c1"}
	if err := hub.Publish(ctx, "c1", domainchat.Event{Kind: domainchat.EventMessage, Message: &msg}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for _, sub := range []domainchat.Subscription{a, b} {
		event := recvEvent(t, sub)
		if event.Kind != domainchat.EventMessage || event.Message.ID != "m1" {
			t.Errorf("unexpected event: %+v", event)
		}
	}
	select {
	case event := <-other.Events():
		t.Errorf("cross-conversation leak: %+v", event)
	default:
	}
}

func TestSubscribeDeliversCurrentPresenceSnapshot(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	if err := hub.Track(ctx, "c1", domainchat.Presence{UserID: "u1", Username: "amara"}); err != nil {
		t.Fatalf("track failed: %v", err)
	}

	sub, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	event := recvEvent(t, sub)
	if event.Kind != domainchat.EventPresence {
		t.Fatalf("expected presence snapshot first, got %v", event.Kind)
	}
	if len(event.Presence) != 1 || event.Presence[0].UserID != "u1" {
		t.Errorf("unexpected snapshot: %+v", event.Presence)
	}
}

func TestPresenceSnapshotsReplaceNotDiff(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	_ = hub.Track(ctx, "c1", domainchat.Presence{UserID: "u1"})
	_ = hub.Track(ctx, "c1", domainchat.Presence{UserID: "u2"})
	_ = hub.Untrack(ctx, "c1", "u1")

	var last domainchat.Event
	for i := 0; i < 3; i++ {
		last = recvEvent(t, sub)
		if last.Kind != domainchat.EventPresence {
			t.Fatalf("expected presence event, got %v", last.Kind)
		}
	}
	if len(last.Presence) != 1 || last.Presence[0].UserID != "u2" {
		t.Errorf("final snapshot should hold only u2, got %+v", last.Presence)
	}
}

func TestPresenceSnapshotSortedByUserID(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	_ = hub.Track(ctx, "c1", domainchat.Presence{UserID: "z"})
	_ = hub.Track(ctx, "c1", domainchat.Presence{UserID: "a"})

	recvEvent(t, sub)
	second := recvEvent(t, sub)
	if len(second.Presence) != 2 || second.Presence[0].UserID != "a" || second.Presence[1].UserID != "z" {
		t.Errorf("snapshot not sorted: %+v", second.Presence)
	}
}

func TestClosedSubscriptionReceivesNothing(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	sub.Close()
	sub.Close() // idempotent

	msg := domainchat.Message{ID: "m1", ConversationID: "c1"}
	if err := hub.Publish(ctx, "c1", domainchat.Event{Kind: domainchat.EventMessage, Message: &msg}); err != nil {
		t.Fatalf("publish after close failed: %v", err)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("closed subscription delivered an event")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(nil)
	hub.buffer = 1
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "c1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		msg := domainchat.Message{ID: "m", ConversationID: "c1"}
		if err := hub.Publish(ctx, "c1", domainchat.Event{Kind: domainchat.EventMessage, Message: &msg}); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	// Exactly one event fits the buffer; the rest are dropped, not queued.
	recvEvent(t, sub)
	select {
	case event := <-sub.Events():
		t.Errorf("expected drops beyond buffer, got %+v", event)
	default:
	}
}
