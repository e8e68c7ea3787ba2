package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	domainchat "threadmarket/internal/domain/chat"
	domainuser "threadmarket/internal/domain/user"
	"threadmarket/internal/infra/realtime"
	"threadmarket/internal/infra/storage/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []domainchat.ChangeEvent
}

func (n *recordingNotifier) ConversationChanged(_ context.Context, event domainchat.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) kinds() []domainchat.ChangeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domainchat.ChangeKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *memory.BlockStore, *recordingNotifier) {
	t.Helper()
	users := memory.NewUserRepository()
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
	blocks := memory.NewBlockStore()
	notifier := &recordingNotifier{}
	store := memory.NewChatStore(users, memory.NewListingRepository())
	svc := New(store, blocks, realtime.NewHub(nil), notifier, nil)
	return svc, blocks, notifier
}

func TestSendDeliversAndNotifies(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "u-amara", "u-kenji", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	sub, err := svc.Transport.Subscribe(ctx, conversation.ID)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	message, err := svc.Send(ctx, domainchat.SendParams{
		ConversationID: conversation.ID,
		SenderID:       "u-amara",
		Content:        "still available?",
	})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if message.Type != domainchat.MessageText {
		t.Errorf("empty type should default to text, got %q", message.Type)
	}

	event := <-sub.Events()
	if event.Kind != domainchat.EventMessage || event.Message.ID != message.ID {
		t.Errorf("unexpected fan-out event: %+v", event)
	}

	kinds := notifier.kinds()
	if len(kinds) != 2 || kinds[0] != domainchat.ChangeConversationCreated || kinds[1] != domainchat.ChangeMessageCreated {
		t.Errorf("unexpected change notifications: %v", kinds)
	}
}

func TestSendRejectedWhenRecipientBlockedSender(t *testing.T) {
	svc, blocks, _ := newTestService(t)
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "u-amara", "u-kenji", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := blocks.Block(ctx, "u-kenji", "u-amara"); err != nil {
		t.Fatalf("block failed: %v", err)
	}

	_, err = svc.Send(ctx, domainchat.SendParams{
		ConversationID: conversation.ID,
		SenderID:       "u-amara",
		Content:        "hello?",
	})
	if !errors.Is(err, domainchat.ErrBlocked) {
		t.Errorf("expected blocked error, got %v", err)
	}

	// The block is directional: the blocker can still write.
	if _, err := svc.Send(ctx, domainchat.SendParams{
		ConversationID: conversation.ID,
		SenderID:       "u-kenji",
		Content:        "do not contact me again",
	}); err != nil {
		t.Errorf("blocker send failed: %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "u-amara", "u-kenji", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	cases := []struct {
		name   string
		params domainchat.SendParams
		want   error
	}{
		{
			name:   "text requires content",
			params: domainchat.SendParams{ConversationID: conversation.ID, SenderID: "u-amara", Content: "   "},
			want:   domainchat.ErrContentRequired,
		},
		{
			name:   "image requires url",
			params: domainchat.SendParams{ConversationID: conversation.ID, SenderID: "u-amara", Type: domainchat.MessageImage},
			want:   domainchat.ErrContentRequired,
		},
		{
			name:   "offer requires amount",
			params: domainchat.SendParams{ConversationID: conversation.ID, SenderID: "u-amara", Type: domainchat.MessageOffer, Content: "offer"},
			want:   domainchat.ErrOfferAmountRequired,
		},
		{
			name:   "unknown type rejected",
			params: domainchat.SendParams{ConversationID: conversation.ID, SenderID: "u-amara", Type: "voice", Content: "hi"},
			want:   domainchat.ErrInvalidMessageType,
		},
		{
			name:   "outsider rejected",
			params: domainchat.SendParams{ConversationID: conversation.ID, SenderID: "u-stranger", Content: "hi"},
			want:   domainchat.ErrNotParticipant,
		},
	}
	for _, tc := range cases {
		if _, err := svc.Send(ctx, tc.params); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateConversationValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateConversation(ctx, "u-amara", "u-amara", ""); !errors.Is(err, domainchat.ErrSelfConversation) {
		t.Errorf("expected self error, got %v", err)
	}
	if _, err := svc.CreateConversation(ctx, "u-amara", "  ", ""); !errors.Is(err, domainchat.ErrParticipantsRequired) {
		t.Errorf("expected participants error, got %v", err)
	}
}

func TestMarkReadNotifiesOnlyTheReader(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	conversation, err := svc.CreateConversation(ctx, "u-amara", "u-kenji", "")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.MarkRead(ctx, conversation.ID, "u-kenji"); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}

	notifier.mu.Lock()
	last := notifier.events[len(notifier.events)-1]
	notifier.mu.Unlock()
	if last.Kind != domainchat.ChangeConversationRead {
		t.Errorf("expected read notification, got %s", last.Kind)
	}
	if len(last.Participants) != 1 || last.Participants[0] != "u-kenji" {
		t.Errorf("read notification should target the reader, got %v", last.Participants)
	}
}
