package dto

import (
	"time"

	domainchat "threadmarket/internal/domain/chat"
)

// ChatProfile is the public slice of a user embedded in chat payloads.
type ChatProfile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ChatListing is the listing context attached to a conversation.
type ChatListing struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Images     []string `json:"images,omitempty"`
	PriceCents int64    `json:"price_cents"`
}

// ChatMessage is one message row as returned to clients.
type ChatMessage struct {
	ID             string              `json:"id"`
	ConversationID string              `json:"conversation_id"`
	SenderID       string              `json:"sender_id"`
	Sender         ChatProfile         `json:"sender"`
	Type           string              `json:"type"`
	Content        string              `json:"content"`
	ImageURL       string              `json:"image_url,omitempty"`
	OfferCents     int64               `json:"offer_cents,omitempty"`
	Reactions      map[string][]string `json:"reactions,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	ReadAt         *time.Time          `json:"read_at,omitempty"`
	Deleted        bool                `json:"deleted,omitempty"`
}

// ChatConversation is one inbox row.
type ChatConversation struct {
	ID            string       `json:"id"`
	Peer          ChatProfile  `json:"peer"`
	Listing       *ChatListing `json:"listing,omitempty"`
	LastMessage   *ChatMessage `json:"last_message,omitempty"`
	LastMessageAt time.Time    `json:"last_message_at"`
	Unread        int          `json:"unread"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ChatPresence is one user attached to a conversation channel.
type ChatPresence struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	OnlineAt  time.Time `json:"online_at"`
}

func MapChatProfile(p domainchat.Profile) ChatProfile {
	return ChatProfile{ID: p.ID, Username: p.Username, AvatarURL: p.AvatarURL}
}

func MapChatMessage(m *domainchat.Message) *ChatMessage {
	if m == nil {
		return nil
	}
	return &ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Sender:         MapChatProfile(m.Sender),
		Type:           string(m.Type),
		Content:        m.Content,
		ImageURL:       m.ImageURL,
		OfferCents:     m.Metadata.OfferCents,
		Reactions:      m.Reactions,
		CreatedAt:      m.CreatedAt,
		ReadAt:         m.ReadAt,
		Deleted:        m.Deleted,
	}
}

func MapChatMessages(messages []domainchat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for i := range messages {
		out = append(out, *MapChatMessage(&messages[i]))
	}
	return out
}

func MapChatConversation(s domainchat.Summary) ChatConversation {
	row := ChatConversation{
		ID:            s.ID,
		Peer:          MapChatProfile(s.Peer),
		LastMessage:   MapChatMessage(s.LastMessage),
		LastMessageAt: s.LastMessageAt,
		Unread:        s.Unread,
		CreatedAt:     s.CreatedAt,
	}
	if s.Listing != nil {
		row.Listing = &ChatListing{
			ID:         s.Listing.ID,
			Title:      s.Listing.Title,
			Images:     s.Listing.Images,
			PriceCents: s.Listing.PriceCents,
		}
	}
	return row
}

func MapChatConversations(summaries []domainchat.Summary) []ChatConversation {
	out := make([]ChatConversation, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, MapChatConversation(s))
	}
	return out
}

func MapChatPresence(list []domainchat.Presence) []ChatPresence {
	out := make([]ChatPresence, 0, len(list))
	for _, p := range list {
		out = append(out, ChatPresence{
			UserID:    p.UserID,
			Username:  p.Username,
			AvatarURL: p.AvatarURL,
			OnlineAt:  p.OnlineAt,
		})
	}
	return out
}
