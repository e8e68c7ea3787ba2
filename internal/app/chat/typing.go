package chat

import (
	"sort"
	"sync"
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

// DefaultTypingTTL is how long a typing indicator survives without renewal.
const DefaultTypingTTL = 5 * time.Second

// TypingTracker reconciles ephemeral typing broadcasts and presence
// snapshots for one conversation. Each remote user is either idle or typing;
// a typing broadcast arms a fresh expiry timer that replaces any pending one,
// so the indicator dies on explicit stop or on silence, whichever comes
// first. Presence snapshots replace the held list wholesale, so a user who
// drops ungracefully stays "online" until the next snapshot.
type TypingTracker struct {
	localUser string
	ttl       time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	typing map[string]string
	online []domainchat.Presence
	closed bool
}

func NewTypingTracker(localUser string, ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &TypingTracker{
		localUser: localUser,
		ttl:       ttl,
		timers:    make(map[string]*time.Timer),
		typing:    make(map[string]string),
	}
}

// SetTyping marks the user as typing and (re)arms their expiry timer.
// Broadcast echoes of the local user are ignored.
func (t *TypingTracker) SetTyping(userID, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || userID == "" || userID == t.localUser {
		return
	}
	if prev, ok := t.timers[userID]; ok {
		prev.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(t.ttl, func() { t.expire(userID, timer) })
	t.timers[userID] = timer
	t.typing[userID] = username
}

// ClearTyping handles an explicit stop-typing broadcast.
func (t *TypingTracker) ClearTyping(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}
	delete(t.typing, userID)
}

// expire fires from the timer goroutine. A stale timer that was already
// replaced by a renewal must not clear the fresh indicator, hence the
// identity check.
func (t *TypingTracker) expire(userID string, timer *time.Timer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.timers[userID] != timer {
		return
	}
	delete(t.timers, userID)
	delete(t.typing, userID)
}

// TypingUsers returns the usernames currently typing, sorted for stable
// rendering.
func (t *TypingTracker) TypingUsers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.typing))
	for _, name := range t.typing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyPresence replaces the online list with the snapshot.
func (t *TypingTracker) ApplyPresence(snapshot []domainchat.Presence) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.online = append([]domainchat.Presence(nil), snapshot...)
}

// Online returns the last presence snapshot.
func (t *TypingTracker) Online() []domainchat.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domainchat.Presence(nil), t.online...)
}

// Stop cancels every pending expiry timer. After Stop no timer callback or
// event mutates the tracker, so teardown cannot leak state updates.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.typing = make(map[string]string)
	t.online = nil
}
