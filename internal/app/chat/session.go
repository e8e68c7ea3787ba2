package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

// Session is one user's live attachment to one conversation: it owns the
// thread state, the typing/presence tracker and the read committer, and runs
// the event loop that reconciles transport events into them. All remote
// fetches are async from the caller's point of view; a session that has been
// closed silently drops whatever still arrives.
type Session struct {
	conversationID string
	user           domainchat.Profile

	thread    *Thread
	typing    *TypingTracker
	committer *ReadCommitter
	transport domainchat.Transport
	sub       domainchat.Subscription
	logger    *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
	watch     chan domainchat.Event
}

func newSession(transport domainchat.Transport, api Service, logger *slog.Logger, user domainchat.Profile, conversationID string, typingTTL time.Duration) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		conversationID: conversationID,
		user:           user,
		thread:         NewThread(api, logger, conversationID, user.ID),
		typing:         NewTypingTracker(user.ID, typingTTL),
		committer:      NewReadCommitter(api, logger, user.ID),
		transport:      transport,
		logger:         logger,
		done:           make(chan struct{}),
		watch:          make(chan domainchat.Event, 64),
	}
}

// start subscribes to the conversation channel, announces presence, commits
// the selection read and loads the initial page. A failed initial load is
// sticky on the thread but does not kill the session; pushes still apply.
func (s *Session) start(ctx context.Context) error {
	sub, err := s.transport.Subscribe(ctx, s.conversationID)
	if err != nil {
		return err
	}
	s.sub = sub

	if err := s.transport.Track(ctx, s.conversationID, domainchat.Presence{
		UserID:    s.user.ID,
		Username:  s.user.Username,
		AvatarURL: s.user.AvatarURL,
		OnlineAt:  time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("presence track failed", "conversation_id", s.conversationID, "error", err)
	}

	s.committer.Commit(ctx, s.conversationID)
	if err := s.thread.Load(ctx); err != nil {
		s.logger.Warn("initial thread load failed", "conversation_id", s.conversationID, "error", err)
	}

	go s.loop()
	return nil
}

func (s *Session) loop() {
	defer close(s.done)
	defer close(s.watch)
	for event := range s.sub.Events() {
		s.handle(event)
		select {
		case s.watch <- event:
		default:
		}
	}
}

// Events taps the reconciled event stream, e.g. for a websocket forwarder.
// The channel closes when the session does; slow consumers miss events.
func (s *Session) Events() <-chan domainchat.Event { return s.watch }

func (s *Session) handle(event domainchat.Event) {
	switch event.Kind {
	case domainchat.EventMessage:
		if event.Message == nil {
			return
		}
		added := s.thread.Apply(*event.Message)
		// An inbound message while the conversation is active is read by
		// definition; recommit so the server counter stays at zero.
		if added && event.Message.SenderID != s.user.ID {
			s.committer.Commit(context.Background(), s.conversationID)
		}
	case domainchat.EventTyping:
		if event.Typing != nil {
			s.typing.SetTyping(event.Typing.UserID, event.Typing.Username)
		}
	case domainchat.EventStopTyping:
		if event.Typing != nil {
			s.typing.ClearTyping(event.Typing.UserID)
		}
	case domainchat.EventPresence:
		s.typing.ApplyPresence(event.Presence)
	}
}

// Send posts a message through the thread.
func (s *Session) Send(ctx context.Context, params domainchat.SendParams) (*domainchat.Message, error) {
	return s.thread.Send(ctx, params)
}

// BroadcastTyping announces that the local user is composing.
func (s *Session) BroadcastTyping(ctx context.Context) error {
	return s.transport.Publish(ctx, s.conversationID, domainchat.Event{
		Kind: domainchat.EventTyping,
		Typing: &domainchat.TypingEvent{
			ConversationID: s.conversationID,
			UserID:         s.user.ID,
			Username:       s.user.Username,
		},
	})
}

// BroadcastStopTyping announces that the local user stopped composing.
func (s *Session) BroadcastStopTyping(ctx context.Context) error {
	return s.transport.Publish(ctx, s.conversationID, domainchat.Event{
		Kind: domainchat.EventStopTyping,
		Typing: &domainchat.TypingEvent{
			ConversationID: s.conversationID,
			UserID:         s.user.ID,
			Username:       s.user.Username,
		},
	})
}

// Thread exposes the message state for rendering.
func (s *Session) Thread() *Thread { return s.thread }

// TypingUsers lists remote users currently composing.
func (s *Session) TypingUsers() []string { return s.typing.TypingUsers() }

// Online lists the last presence snapshot.
func (s *Session) Online() []domainchat.Presence { return s.typing.Online() }

// MarkRead recommits the read state, e.g. when the client refocuses.
func (s *Session) MarkRead(ctx context.Context) {
	s.committer.Commit(ctx, s.conversationID)
}

// Close detaches from the channel, cancels pending typing expiries and waits
// for the event loop to drain. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.transport.Untrack(ctx, s.conversationID, s.user.ID); err != nil {
			s.logger.Debug("presence untrack failed", "conversation_id", s.conversationID, "error", err)
		}
		if s.sub != nil {
			s.sub.Close()
			<-s.done
		}
		s.typing.Stop()
	})
}
