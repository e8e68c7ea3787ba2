package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

// fakeChatAPI is an in-memory stand-in for the chat service.
type fakeChatAPI struct {
	mu            sync.Mutex
	conversations map[string]*domainchat.Conversation
	messages      map[string][]domainchat.Message
	summaries     map[string][]domainchat.Summary
	nextID        int

	listErr   error
	msgErr    error
	sendErr   error
	markErr   error
	markCalls []string
}

func newFakeChatAPI() *fakeChatAPI {
	return &fakeChatAPI{
		conversations: make(map[string]*domainchat.Conversation),
		messages:      make(map[string][]domainchat.Message),
		summaries:     make(map[string][]domainchat.Summary),
	}
}

func (f *fakeChatAPI) seedConversation(id string, participants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id] = &domainchat.Conversation{
		ID:           id,
		Participants: append([]string(nil), participants...),
		Unread:       make(map[string]int),
		CreatedAt:    time.Now(),
	}
}

func (f *fakeChatAPI) seedMessage(conversationID, senderID, content string, at time.Time) domainchat.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg := domainchat.Message{
		ID:             fmt.Sprintf("m-%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           domainchat.MessageText,
		Content:        content,
		CreatedAt:      at,
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return msg
}

func (f *fakeChatAPI) Conversation(_ context.Context, id string) (*domainchat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	c, ok := f.conversations[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return c, nil
}

func (f *fakeChatAPI) Messages(_ context.Context, conversationID string, limit int, before time.Time) ([]domainchat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.msgErr != nil {
		return nil, f.msgErr
	}
	var filtered []domainchat.Message
	for _, msg := range f.messages[conversationID] {
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		filtered = append(filtered, msg)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

func (f *fakeChatAPI) Send(_ context.Context, params domainchat.SendParams) (*domainchat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.nextID++
	msg := domainchat.Message{
		ID:             fmt.Sprintf("m-%d", f.nextID),
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Type:           params.Type,
		Content:        params.Content,
		CreatedAt:      time.Now(),
	}
	f.messages[params.ConversationID] = append(f.messages[params.ConversationID], msg)
	return &msg, nil
}

func (f *fakeChatAPI) Conversations(_ context.Context, userID string) ([]domainchat.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domainchat.Summary(nil), f.summaries[userID]...), nil
}

func (f *fakeChatAPI) MarkRead(_ context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, conversationID+":"+userID)
	return f.markErr
}

func (f *fakeChatAPI) CreateConversation(_ context.Context, userID, peerID, listingID string) (*domainchat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("c-%s-%s-%s", userID, peerID, listingID)
	if c, ok := f.conversations[id]; ok {
		return c, nil
	}
	c := &domainchat.Conversation{
		ID:           id,
		ListingID:    listingID,
		Participants: domainchat.NormalizeParticipants(userID, peerID),
		Unread:       make(map[string]int),
		CreatedAt:    time.Now(),
	}
	f.conversations[id] = c
	return c, nil
}

func (f *fakeChatAPI) markReadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markCalls)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
