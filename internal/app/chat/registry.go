package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

// Service is the full remote surface the chat core consumes.
type Service interface {
	MessageAPI
	ConversationAPI
}

type sessionKey struct {
	userID         string
	conversationID string
}

// Registry owns the live sessions, one per (user, conversation) pair. It
// replaces the ambient module-level channel map of the original design with
// an injected object whose only mutators are Open, Close and Release, which
// keeps the subscription lifecycle testable. Re-opening a conversation the
// same user already holds replaces the prior session rather than duplicating
// it; different participants of one conversation attach independently.
type Registry struct {
	transport domainchat.Transport
	api       Service
	logger    *slog.Logger
	typingTTL time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

func NewRegistry(transport domainchat.Transport, api Service, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		transport: transport,
		api:       api,
		logger:    logger,
		typingTTL: DefaultTypingTTL,
		sessions:  make(map[sessionKey]*Session),
	}
}

// SetTypingTTL overrides the typing expiry for sessions opened afterwards.
func (r *Registry) SetTypingTTL(ttl time.Duration) {
	if ttl > 0 {
		r.typingTTL = ttl
	}
}

// Open attaches the user to a conversation and starts its event loop. Any
// existing session held by the same user for the same conversation is closed
// first.
func (r *Registry) Open(ctx context.Context, user domainchat.Profile, conversationID string) (*Session, error) {
	key := sessionKey{userID: user.ID, conversationID: conversationID}
	r.mu.Lock()
	prev := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	session := newSession(r.transport, r.api, r.logger, user, conversationID, r.typingTTL)
	if err := session.start(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[key] = session
	r.mu.Unlock()
	return session, nil
}

// Session returns the user's live session for a conversation, if any.
func (r *Registry) Session(userID, conversationID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{userID: userID, conversationID: conversationID}]
	return s, ok
}

// Close tears down the user's session for one conversation.
func (r *Registry) Close(userID, conversationID string) {
	r.mu.Lock()
	key := sessionKey{userID: userID, conversationID: conversationID}
	session := r.sessions[key]
	delete(r.sessions, key)
	r.mu.Unlock()
	if session != nil {
		session.Close()
	}
}

// Release closes exactly the given session, deregistering it only if it is
// still the one on record. A socket that was already replaced by a reconnect
// tears down its own stale session without touching the replacement.
func (r *Registry) Release(session *Session) {
	if session == nil {
		return
	}
	key := sessionKey{userID: session.user.ID, conversationID: session.conversationID}
	r.mu.Lock()
	if r.sessions[key] == session {
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	session.Close()
}

// CloseAll tears down every session; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for key, s := range r.sessions {
		sessions = append(sessions, s)
		delete(r.sessions, key)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
