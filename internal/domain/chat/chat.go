package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrMessageNotFound      = errors.New("chat: message not found")
	ErrNotParticipant       = errors.New("chat: user is not a participant")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation with yourself")
	ErrParticipantsRequired = errors.New("chat: two participants are required")
	ErrContentRequired      = errors.New("chat: message content is required")
	ErrInvalidMessageType   = errors.New("chat: invalid message type")
	ErrOfferAmountRequired  = errors.New("chat: offer messages require a positive amount")
	ErrBlocked              = errors.New("chat: recipient has blocked the sender")
)

// DeletedPlaceholder replaces the content of soft-deleted messages.
const DeletedPlaceholder = "This message was deleted"

type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageOffer   MessageType = "offer"
	MessageInquiry MessageType = "inquiry"
)

// ParseMessageType validates a wire value, defaulting empty to text.
func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MessageText:
		return MessageText, nil
	case MessageImage:
		return MessageImage, nil
	case MessageOffer:
		return MessageOffer, nil
	case MessageInquiry:
		return MessageInquiry, nil
	default:
		return "", ErrInvalidMessageType
	}
}

// Profile carries the public fields of a user joined into chat payloads.
type Profile struct {
	ID        string
	Username  string
	AvatarURL string
}

// Metadata holds optional structured fields attached to a message.
type Metadata struct {
	OfferCents int64 `json:"offer_cents,omitempty"`
}

// Message belongs to exactly one conversation and is ordered by CreatedAt.
// ID is the deduplication key: the same message can arrive both as the
// response to an insert and as a transport push.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Sender         Profile
	Type           MessageType
	Content        string
	ImageURL       string
	Metadata       Metadata
	Reactions      map[string][]string
	CreatedAt      time.Time
	ReadAt         *time.Time
	Deleted        bool
}

// Conversation pairs two users, optionally scoped to one listing.
// At most one conversation exists per (participants, listing) triple.
type Conversation struct {
	ID            string
	ListingID     string
	Participants  []string
	Unread        map[string]int
	LastMessage   *Message
	LastMessageAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the other participant for a two-party conversation.
func (c *Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ListingSummary is the denormalized listing context carried on summaries.
type ListingSummary struct {
	ID         string
	Title      string
	Images     []string
	PriceCents int64
}

// Summary is one denormalized conversation row as shown in a user's inbox.
type Summary struct {
	ID            string
	Peer          Profile
	Listing       *ListingSummary
	LastMessage   *Message
	LastMessageAt time.Time
	Unread        int
	CreatedAt     time.Time
}

// Presence describes one user attached to a conversation channel.
type Presence struct {
	UserID    string
	Username  string
	AvatarURL string
	OnlineAt  time.Time
}

// NormalizeParticipants trims, deduplicates and sorts participant ids so the
// (participants, listing) identity of a conversation is canonical.
func NormalizeParticipants(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SendParams is the user-facing send request, validated before any insert.
type SendParams struct {
	ConversationID string
	SenderID       string
	Type           MessageType
	Content        string
	ImageURL       string
	OfferCents     int64
}

// InsertMessageParams describe a message row to create.
type InsertMessageParams struct {
	ConversationID string
	SenderID       string
	Type           MessageType
	Content        string
	ImageURL       string
	Metadata       Metadata
	CreatedAt      time.Time
}

// Store is the durable backend for conversations and messages. Unread
// counters are authoritative here; callers only cache them.
type Store interface {
	// UserConversations returns denormalized summaries ordered by most
	// recent activity first.
	UserConversations(ctx context.Context, userID string) ([]Summary, error)

	// Conversation loads one conversation or ErrConversationNotFound.
	Conversation(ctx context.Context, id string) (*Conversation, error)

	// CreateConversation is idempotent: an existing row for the same
	// participant pair and listing is returned instead of a duplicate.
	CreateConversation(ctx context.Context, userA, userB, listingID string) (*Conversation, error)

	// MarkConversationRead zeroes the user's unread counter and stamps
	// unread inbound messages as read. Safe to call repeatedly.
	MarkConversationRead(ctx context.Context, conversationID, userID string) error

	// Messages returns up to limit messages ascending by creation time.
	// A non-zero before acts as an exclusive upper-bound cursor.
	Messages(ctx context.Context, conversationID string, limit int, before time.Time) ([]Message, error)

	// InsertMessage creates a message, bumps the conversation's activity
	// and the recipient's unread counter, and returns the row joined with
	// the sender profile.
	InsertMessage(ctx context.Context, params InsertMessageParams) (*Message, error)

	// DeleteMessage soft-deletes: content is replaced with a placeholder
	// and the flag set; the row is never removed.
	DeleteMessage(ctx context.Context, conversationID, messageID, senderID string) (*Message, error)

	// ToggleReaction adds or removes the user's emoji reaction.
	ToggleReaction(ctx context.Context, conversationID, messageID, userID, emoji string) (*Message, error)
}
