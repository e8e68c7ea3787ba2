package chat

import (
	"context"
	"log/slog"
	"sync"
)

// Inboxes keeps one Inbox per user with at least one warm conversation list.
// Change notifications fan out here: every affected user's list is reloaded
// in full, never patched.
type Inboxes struct {
	api    ConversationAPI
	logger *slog.Logger

	mu     sync.Mutex
	byUser map[string]*Inbox
}

func NewInboxes(api ConversationAPI, logger *slog.Logger) *Inboxes {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inboxes{api: api, logger: logger, byUser: make(map[string]*Inbox)}
}

// For returns the user's inbox, creating an empty one on first use.
func (s *Inboxes) For(userID string) *Inbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	inbox, ok := s.byUser[userID]
	if !ok {
		inbox = NewInbox(s.api, s.logger, userID)
		s.byUser[userID] = inbox
	}
	return inbox
}

// Notify reloads the inboxes of the given users. Users without a warm inbox
// are skipped; they will load fresh rows on first request anyway.
func (s *Inboxes) Notify(ctx context.Context, userIDs ...string) {
	for _, userID := range userIDs {
		s.mu.Lock()
		inbox := s.byUser[userID]
		s.mu.Unlock()
		if inbox != nil {
			inbox.Refresh(ctx)
		}
	}
}

// Drop forgets a user's inbox, e.g. on logout.
func (s *Inboxes) Drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byUser, userID)
}
