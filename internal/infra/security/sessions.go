package security

import (
	"strings"
	"sync"
)

// SessionStore maps opaque bearer tokens to user ids. Tokens are issued at
// startup from fixtures or minted through the dev login endpoint; there is no
// expiry, revocation drops the mapping.
type SessionStore struct {
	mu     sync.RWMutex
	tokens map[string]string
	gen    RandomTokenGenerator
}

func NewSessionStore() *SessionStore {
	return &SessionStore{tokens: make(map[string]string)}
}

// Issue mints a fresh token bound to the given user.
func (s *SessionStore) Issue(userID string) (string, error) {
	token, err := s.gen.NewToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
	return token, nil
}

// Register binds a pre-defined token to a user. Used for fixture tokens.
func (s *SessionStore) Register(token, userID string) {
	token = strings.TrimSpace(token)
	if token == "" || userID == "" {
		return
	}
	s.mu.Lock()
	s.tokens[token] = userID
	s.mu.Unlock()
}

// Resolve returns the user id bound to the token.
func (s *SessionStore) Resolve(token string) (string, bool) {
	s.mu.RLock()
	userID, ok := s.tokens[token]
	s.mu.RUnlock()
	return userID, ok
}

func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}
