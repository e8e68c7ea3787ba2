package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

const (
	initialPageSize = 50
	olderPageSize   = 20
)

// MessageAPI is the remote surface a Thread loads from and sends through.
type MessageAPI interface {
	Conversation(ctx context.Context, id string) (*domainchat.Conversation, error)
	Messages(ctx context.Context, conversationID string, limit int, before time.Time) ([]domainchat.Message, error)
	Send(ctx context.Context, params domainchat.SendParams) (*domainchat.Message, error)
}

// Thread is the in-memory message list for one open conversation: the most
// recent page ascending by creation time, extended backwards by cursor
// pagination and forwards by transport pushes. Message ids deduplicate the
// race between a send response and the push notification of the same row.
type Thread struct {
	api            MessageAPI
	logger         *slog.Logger
	conversationID string
	userID         string

	mu           sync.Mutex
	conversation *domainchat.Conversation
	messages     []domainchat.Message
	known        map[string]struct{}
	loading      bool
	err          error
}

func NewThread(api MessageAPI, logger *slog.Logger, conversationID, userID string) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	return &Thread{
		api:            api,
		logger:         logger,
		conversationID: conversationID,
		userID:         userID,
		known:          make(map[string]struct{}),
	}
}

// Load fetches conversation metadata and the most recent page of messages.
// Remote errors become a sticky error state; loading always ends.
func (t *Thread) Load(ctx context.Context) error {
	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()

	conversation, err := t.api.Conversation(ctx, t.conversationID)
	if err != nil {
		t.fail("load conversation", err)
		return err
	}
	messages, err := t.api.Messages(ctx, t.conversationID, initialPageSize, time.Time{})
	if err != nil {
		t.fail("load messages", err)
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.conversation = conversation
	t.messages = t.messages[:0]
	t.known = make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		t.messages = append(t.messages, msg)
		t.known[msg.ID] = struct{}{}
	}
	t.loading = false
	t.err = nil
	return nil
}

// LoadMore fetches up to olderPageSize messages strictly older than the
// oldest loaded one and prepends them. The cursor is the oldest visible
// creation timestamp, so concurrent inserts at the tail cannot shift the
// window. Returns how many messages were added.
func (t *Thread) LoadMore(ctx context.Context) (int, error) {
	t.mu.Lock()
	if len(t.messages) == 0 {
		t.mu.Unlock()
		if err := t.Load(ctx); err != nil {
			return 0, err
		}
		t.mu.Lock()
		n := len(t.messages)
		t.mu.Unlock()
		return n, nil
	}
	cursor := t.messages[0].CreatedAt
	t.mu.Unlock()

	older, err := t.api.Messages(ctx, t.conversationID, olderPageSize, cursor)
	if err != nil {
		t.fail("load older messages", err)
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fresh := make([]domainchat.Message, 0, len(older))
	for _, msg := range older {
		if _, ok := t.known[msg.ID]; ok {
			continue
		}
		fresh = append(fresh, msg)
		t.known[msg.ID] = struct{}{}
	}
	t.messages = append(fresh, t.messages...)
	return len(fresh), nil
}

// Send validates and persists a message, then appends the created row
// locally so the caller sees it before the transport echo arrives.
func (t *Thread) Send(ctx context.Context, params domainchat.SendParams) (*domainchat.Message, error) {
	params.ConversationID = t.conversationID
	params.SenderID = t.userID
	message, err := t.api.Send(ctx, params)
	if err != nil {
		return nil, err
	}
	t.Apply(*message)
	return message, nil
}

// Apply inserts a message in timestamp order, ignoring ids already known.
// Returns whether the message was new.
func (t *Thread) Apply(message domainchat.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if message.ConversationID != t.conversationID {
		return false
	}
	if _, ok := t.known[message.ID]; ok {
		return false
	}
	t.known[message.ID] = struct{}{}

	// New messages almost always belong at the tail; walk back only for
	// out-of-order arrivals.
	pos := len(t.messages)
	for pos > 0 && t.messages[pos-1].CreatedAt.After(message.CreatedAt) {
		pos--
	}
	t.messages = append(t.messages, domainchat.Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = message
	return true
}

// Messages returns a copy of the current ascending list.
func (t *Thread) Messages() []domainchat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domainchat.Message(nil), t.messages...)
}

// Conversation returns the loaded metadata, nil before Load.
func (t *Thread) Conversation() *domainchat.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversation
}

// Err returns the sticky error from the last failed load.
func (t *Thread) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Loading reports whether a load is in flight.
func (t *Thread) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

func (t *Thread) fail(action string, err error) {
	t.logger.Error("thread load failed", "action", action, "conversation_id", t.conversationID, "error", err)
	t.mu.Lock()
	t.err = err
	t.loading = false
	t.mu.Unlock()
}
