package chat

import (
	"context"
	"log/slog"
)

// ReadAPI commits a read-state reset remotely.
type ReadAPI interface {
	MarkRead(ctx context.Context, conversationID, userID string) error
}

// ReadCommitter issues mark-as-read calls when a conversation is selected
// and again whenever an inbound message lands while it is active. Resetting
// a counter to zero is idempotent server-side, so at-least-once duplicates
// are harmless. Failures are logged, never surfaced: a missed read receipt
// must not break the conversation view.
type ReadCommitter struct {
	api    ReadAPI
	logger *slog.Logger
	userID string
}

func NewReadCommitter(api ReadAPI, logger *slog.Logger, userID string) *ReadCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadCommitter{api: api, logger: logger, userID: userID}
}

// Commit resets the user's unread counter for the conversation.
func (r *ReadCommitter) Commit(ctx context.Context, conversationID string) {
	if err := r.api.MarkRead(ctx, conversationID, r.userID); err != nil {
		r.logger.Error("mark read failed", "conversation_id", conversationID, "user_id", r.userID, "error", err)
	}
}
