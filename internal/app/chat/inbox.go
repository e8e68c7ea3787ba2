package chat

import (
	"context"
	"log/slog"
	"sync"

	domainchat "threadmarket/internal/domain/chat"
)

// ConversationAPI is the remote surface the Inbox aggregates over.
type ConversationAPI interface {
	Conversations(ctx context.Context, userID string) ([]domainchat.Summary, error)
	MarkRead(ctx context.Context, conversationID, userID string) error
	CreateConversation(ctx context.Context, userID, peerID, listingID string) (*domainchat.Conversation, error)
}

// Inbox caches one user's conversation list. The server rows are the source
// of truth: any change notification triggers a full reload instead of local
// diffing, and the only optimistic mutation is zeroing an unread counter
// ahead of the mark-read round trip.
type Inbox struct {
	api    ConversationAPI
	logger *slog.Logger
	userID string

	mu        sync.Mutex
	summaries []domainchat.Summary
	loading   bool
	err       error
}

func NewInbox(api ConversationAPI, logger *slog.Logger, userID string) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{api: api, logger: logger, userID: userID}
}

// Load fetches the denormalized conversation rows. Errors are logged and
// held as sticky state; the previous rows stay visible and loading always
// completes so nothing hangs on a failed reload.
func (i *Inbox) Load(ctx context.Context) error {
	i.mu.Lock()
	i.loading = true
	i.mu.Unlock()

	summaries, err := i.api.Conversations(ctx, i.userID)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.loading = false
	if err != nil {
		i.logger.Error("conversation list load failed", "user_id", i.userID, "error", err)
		i.err = err
		return err
	}
	i.summaries = summaries
	i.err = nil
	return nil
}

// Refresh re-runs the full load; called on every change notification that
// touches this user.
func (i *Inbox) Refresh(ctx context.Context) {
	_ = i.Load(ctx)
}

// MarkConversationRead zeroes the cached unread counter immediately, then
// commits the reset remotely. The remote counter stays authoritative; a
// failed call surfaces to the caller and the next reload restores truth.
func (i *Inbox) MarkConversationRead(ctx context.Context, conversationID string) error {
	i.mu.Lock()
	for idx := range i.summaries {
		if i.summaries[idx].ID == conversationID {
			i.summaries[idx].Unread = 0
			break
		}
	}
	i.mu.Unlock()

	return i.api.MarkRead(ctx, conversationID, i.userID)
}

// CreateConversation starts (or finds) a thread with the peer, optionally
// about a listing, and reloads the list on success.
func (i *Inbox) CreateConversation(ctx context.Context, peerID, listingID string) (*domainchat.Conversation, error) {
	conversation, err := i.api.CreateConversation(ctx, i.userID, peerID, listingID)
	if err != nil {
		return nil, err
	}
	i.Refresh(ctx)
	return conversation, nil
}

// Summaries returns a copy of the cached rows.
func (i *Inbox) Summaries() []domainchat.Summary {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]domainchat.Summary(nil), i.summaries...)
}

// Unread returns the cached counter for one conversation.
func (i *Inbox) Unread(conversationID string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range i.summaries {
		if s.ID == conversationID {
			return s.Unread
		}
	}
	return 0
}

// Err returns the sticky error from the last failed load.
func (i *Inbox) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Loading reports whether a reload is in flight.
func (i *Inbox) Loading() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loading
}
