package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	domainchat "threadmarket/internal/domain/chat"
)

const defaultBuffer = 64

// Hub is the in-process channel transport: per-conversation subscriber sets,
// ephemeral broadcasts and presence membership. Presence changes always fan
// out as full snapshots, never as diffs, so subscribers replace their state
// wholesale. Slow subscribers lose events instead of blocking the hub; the
// durable rows stay in the store.
type Hub struct {
	logger *slog.Logger
	buffer int

	mu       sync.Mutex
	subs     map[string]map[*subscription]struct{}
	presence map[string]map[string]domainchat.Presence
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		buffer:   defaultBuffer,
		subs:     make(map[string]map[*subscription]struct{}),
		presence: make(map[string]map[string]domainchat.Presence),
	}
}

type subscription struct {
	hub            *Hub
	conversationID string
	events         chan domainchat.Event
	closeOnce      sync.Once
}

func (s *subscription) Events() <-chan domainchat.Event { return s.events }

// Close detaches the subscription; the events channel is closed and no
// further events arrive.
func (s *subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.conversationID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.conversationID)
			}
		}
		close(s.events)
	})
}

// Subscribe attaches to a conversation channel. The current presence
// snapshot is delivered immediately so a fresh subscriber does not wait for
// the next membership change.
func (h *Hub) Subscribe(ctx context.Context, conversationID string) (domainchat.Subscription, error) {
	sub := &subscription{
		hub:            h,
		conversationID: conversationID,
		events:         make(chan domainchat.Event, h.buffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*subscription]struct{})
	}
	h.subs[conversationID][sub] = struct{}{}
	if snapshot := h.snapshotLocked(conversationID); len(snapshot) > 0 {
		h.deliverLocked(sub, domainchat.Event{Kind: domainchat.EventPresence, Presence: snapshot})
	}
	return sub, nil
}

// Publish fans an event out to every subscriber of the conversation.
func (h *Hub) Publish(ctx context.Context, conversationID string, event domainchat.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[conversationID] {
		h.deliverLocked(sub, event)
	}
	return nil
}

// Track adds or refreshes a user's presence and broadcasts the snapshot.
func (h *Hub) Track(ctx context.Context, conversationID string, p domainchat.Presence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.presence[conversationID] == nil {
		h.presence[conversationID] = make(map[string]domainchat.Presence)
	}
	h.presence[conversationID][p.UserID] = p
	h.broadcastPresenceLocked(conversationID)
	return nil
}

// Untrack removes a user's presence and broadcasts the snapshot.
func (h *Hub) Untrack(ctx context.Context, conversationID, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.presence[conversationID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.presence, conversationID)
		}
	}
	h.broadcastPresenceLocked(conversationID)
	return nil
}

func (h *Hub) broadcastPresenceLocked(conversationID string) {
	snapshot := h.snapshotLocked(conversationID)
	for sub := range h.subs[conversationID] {
		h.deliverLocked(sub, domainchat.Event{Kind: domainchat.EventPresence, Presence: snapshot})
	}
}

func (h *Hub) snapshotLocked(conversationID string) []domainchat.Presence {
	members := h.presence[conversationID]
	snapshot := make([]domainchat.Presence, 0, len(members))
	for _, p := range members {
		snapshot = append(snapshot, p)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].UserID < snapshot[j].UserID })
	return snapshot
}

func (h *Hub) deliverLocked(sub *subscription, event domainchat.Event) {
	select {
	case sub.events <- event:
	default:
		h.logger.Warn("dropping event for slow subscriber", "conversation_id", sub.conversationID, "kind", event.Kind)
	}
}
