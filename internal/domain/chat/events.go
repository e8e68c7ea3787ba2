package chat

import (
	"context"
	"time"
)

// EventKind discriminates the events a conversation channel can deliver.
type EventKind string

const (
	// EventMessage is a durable row-insert notification for a new message.
	EventMessage EventKind = "message"
	// EventTyping and EventStopTyping are ephemeral broadcasts.
	EventTyping     EventKind = "typing"
	EventStopTyping EventKind = "stop_typing"
	// EventPresence carries the full snapshot of users on the channel.
	// Snapshots replace prior state wholesale; they are never diffed.
	EventPresence EventKind = "presence"
)

// TypingEvent identifies who is composing in which conversation.
type TypingEvent struct {
	ConversationID string
	UserID         string
	Username       string
}

// Event is the typed envelope delivered to channel subscribers. Exactly one
// payload field is set, matching Kind.
type Event struct {
	Kind     EventKind
	Message  *Message
	Typing   *TypingEvent
	Presence []Presence
}

// Subscription is a live attachment to one conversation's channel. After
// Close the events channel is closed and no further events are delivered.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// Transport is the publish/subscribe channel abstraction the chat core rides
// on. Durability, ordering and fan-out are the transport's problem; the core
// only reconciles what arrives.
type Transport interface {
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
	Publish(ctx context.Context, conversationID string, event Event) error
	Track(ctx context.Context, conversationID string, p Presence) error
	Untrack(ctx context.Context, conversationID, userID string) error
}

// ChangeKind labels conversation-level change notifications.
type ChangeKind string

const (
	ChangeConversationCreated ChangeKind = "conversation_created"
	ChangeMessageCreated      ChangeKind = "message_created"
	ChangeConversationRead    ChangeKind = "conversation_read"
)

// ChangeEvent tells listeners that rows touching the given participants
// changed. Listeners reload rather than diff, so at-least-once delivery and
// duplicate events are harmless.
type ChangeEvent struct {
	Kind           ChangeKind `json:"kind"`
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id,omitempty"`
	Participants   []string   `json:"participants"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// Notifier fans out change events to whoever keeps conversation lists warm.
type Notifier interface {
	ConversationChanged(ctx context.Context, event ChangeEvent) error
}

// NopNotifier drops events; used when no broker is configured.
type NopNotifier struct{}

func (NopNotifier) ConversationChanged(context.Context, ChangeEvent) error { return nil }
