package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "threadmarket/internal/domain/chat"
	domainlistings "threadmarket/internal/domain/listings"
	domainuser "threadmarket/internal/domain/user"
)

// ChatStore is the in-memory reference implementation of the chat store.
// It backs tests and the dev mode; production uses the Scylla store.
type ChatStore struct {
	users    domainuser.Repository
	listings domainlistings.Repository

	mu            sync.RWMutex
	conversations map[string]*domainchat.Conversation
	messages      map[string][]domainchat.Message
}

func NewChatStore(users domainuser.Repository, listings domainlistings.Repository) *ChatStore {
	return &ChatStore{
		users:         users,
		listings:      listings,
		conversations: make(map[string]*domainchat.Conversation),
		messages:      make(map[string][]domainchat.Message),
	}
}

// CreateConversation returns the existing row for the same participant pair
// and listing instead of creating a duplicate.
func (s *ChatStore) CreateConversation(ctx context.Context, userA, userB, listingID string) (*domainchat.Conversation, error) {
	participants := domainchat.NormalizeParticipants(userA, userB)
	if len(participants) != 2 {
		return nil, domainchat.ErrParticipantsRequired
	}
	listingID = strings.TrimSpace(listingID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conv := range s.conversations {
		if conv.ListingID == listingID && sameParticipants(conv.Participants, participants) {
			return cloneConversation(conv), nil
		}
	}

	now := time.Now().UTC()
	conv := &domainchat.Conversation{
		ID:           uuid.NewString(),
		ListingID:    listingID,
		Participants: participants,
		Unread:       map[string]int{participants[0]: 0, participants[1]: 0},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

func (s *ChatStore) Conversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

// UserConversations returns denormalized rows, most recent activity first.
func (s *ChatStore) UserConversations(ctx context.Context, userID string) ([]domainchat.Summary, error) {
	s.mu.RLock()
	matches := make([]*domainchat.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			matches = append(matches, cloneConversation(conv))
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return lastActivity(matches[i]).After(lastActivity(matches[j]))
	})

	summaries := make([]domainchat.Summary, 0, len(matches))
	for _, conv := range matches {
		summary := domainchat.Summary{
			ID:            conv.ID,
			Peer:          s.profile(ctx, conv.Peer(userID)),
			LastMessage:   conv.LastMessage,
			LastMessageAt: conv.LastMessageAt,
			Unread:        conv.Unread[userID],
			CreatedAt:     conv.CreatedAt,
		}
		if conv.ListingID != "" {
			if listing, err := s.listings.ByID(ctx, conv.ListingID); err == nil {
				summary.Listing = &domainchat.ListingSummary{
					ID:         listing.ID,
					Title:      listing.Title,
					Images:     append([]string(nil), listing.Images...),
					PriceCents: listing.PriceCents,
				}
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Messages returns the most recent limit messages ascending; a non-zero
// before restricts to strictly older rows, again the newest of those.
func (s *ChatStore) Messages(ctx context.Context, conversationID string, limit int, before time.Time) ([]domainchat.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	all := s.messages[conversationID]
	filtered := make([]domainchat.Message, 0, len(all))
	for _, msg := range all {
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		filtered = append(filtered, cloneMessage(msg))
	}
	if len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

func (s *ChatStore) InsertMessage(ctx context.Context, params domainchat.InsertMessageParams) (*domainchat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[params.ConversationID]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	if !conv.HasParticipant(params.SenderID) {
		return nil, domainchat.ErrNotParticipant
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	msg := domainchat.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		Sender:         s.profile(ctx, params.SenderID),
		Type:           params.Type,
		Content:        params.Content,
		ImageURL:       params.ImageURL,
		Metadata:       params.Metadata,
		CreatedAt:      createdAt.UTC(),
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	// Keep the slice ascending even if a backdated timestamp was supplied.
	sort.SliceStable(s.messages[conv.ID], func(i, j int) bool {
		return s.messages[conv.ID][i].CreatedAt.Before(s.messages[conv.ID][j].CreatedAt)
	})

	preview := cloneMessage(msg)
	conv.LastMessage = &preview
	conv.LastMessageAt = msg.CreatedAt
	conv.UpdatedAt = msg.CreatedAt
	for _, p := range conv.Participants {
		if p != params.SenderID {
			conv.Unread[p]++
		}
	}
	result := cloneMessage(msg)
	return &result, nil
}

// MarkConversationRead zeroes the counter and stamps inbound unread rows.
func (s *ChatStore) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conv.Unread[userID] = 0
	now := time.Now().UTC()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != userID && msgs[i].ReadAt == nil {
			readAt := now
			msgs[i].ReadAt = &readAt
		}
	}
	return nil
}

func (s *ChatStore) DeleteMessage(ctx context.Context, conversationID, messageID, senderID string) (*domainchat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].SenderID != senderID {
			return nil, domainchat.ErrNotParticipant
		}
		msgs[i].Deleted = true
		msgs[i].Content = domainchat.DeletedPlaceholder
		msgs[i].ImageURL = ""
		result := cloneMessage(msgs[i])
		return &result, nil
	}
	return nil, domainchat.ErrMessageNotFound
}

func (s *ChatStore) ToggleReaction(ctx context.Context, conversationID, messageID, userID, emoji string) (*domainchat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if msgs[i].Reactions == nil {
			msgs[i].Reactions = make(map[string][]string)
		}
		users := msgs[i].Reactions[emoji]
		removed := false
		for j, id := range users {
			if id == userID {
				msgs[i].Reactions[emoji] = append(users[:j], users[j+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			msgs[i].Reactions[emoji] = append(users, userID)
		} else if len(msgs[i].Reactions[emoji]) == 0 {
			delete(msgs[i].Reactions, emoji)
		}
		result := cloneMessage(msgs[i])
		return &result, nil
	}
	return nil, domainchat.ErrMessageNotFound
}

func (s *ChatStore) profile(ctx context.Context, userID string) domainchat.Profile {
	if s.users != nil {
		if u, err := s.users.ByID(ctx, userID); err == nil {
			return domainchat.Profile{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
		}
	}
	return domainchat.Profile{ID: userID}
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Unread = make(map[string]int, len(c.Unread))
	for k, v := range c.Unread {
		out.Unread[k] = v
	}
	if c.LastMessage != nil {
		last := cloneMessage(*c.LastMessage)
		out.LastMessage = &last
	}
	return &out
}

func cloneMessage(m domainchat.Message) domainchat.Message {
	out := m
	if m.ReadAt != nil {
		readAt := *m.ReadAt
		out.ReadAt = &readAt
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			out.Reactions[emoji] = append([]string(nil), users...)
		}
	}
	return out
}

func sameParticipants(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func lastActivity(c *domainchat.Conversation) time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}
