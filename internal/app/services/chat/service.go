package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	domainchat "threadmarket/internal/domain/chat"
	domainuser "threadmarket/internal/domain/user"
)

// Service coordinates the chat store with the realtime transport and the
// change-notification broker. Every mutation lands in the store first;
// transport and broker fan-out are best-effort because listeners reload from
// the store anyway.
type Service struct {
	Store     domainchat.Store
	Blocks    domainuser.BlockStore
	Transport domainchat.Transport
	Notifier  domainchat.Notifier
	Logger    *slog.Logger
}

func New(store domainchat.Store, blocks domainuser.BlockStore, transport domainchat.Transport, notifier domainchat.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = domainchat.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Blocks: blocks, Transport: transport, Notifier: notifier, Logger: logger}
}

// Conversations returns the user's denormalized conversation rows.
func (s *Service) Conversations(ctx context.Context, userID string) ([]domainchat.Summary, error) {
	return s.Store.UserConversations(ctx, userID)
}

// Conversation loads one conversation.
func (s *Service) Conversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	return s.Store.Conversation(ctx, id)
}

// CreateConversation starts a thread between two users, optionally scoped to
// a listing. Creation is idempotent: the existing row wins.
func (s *Service) CreateConversation(ctx context.Context, userID, peerID, listingID string) (*domainchat.Conversation, error) {
	userID = strings.TrimSpace(userID)
	peerID = strings.TrimSpace(peerID)
	if userID == "" || peerID == "" {
		return nil, domainchat.ErrParticipantsRequired
	}
	if userID == peerID {
		return nil, domainchat.ErrSelfConversation
	}
	conversation, err := s.Store.CreateConversation(ctx, userID, peerID, listingID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, domainchat.ChangeEvent{
		Kind:           domainchat.ChangeConversationCreated,
		ConversationID: conversation.ID,
		Participants:   conversation.Participants,
		OccurredAt:     time.Now().UTC(),
	})
	return conversation, nil
}

// Messages returns up to limit messages ascending, older than before when
// the cursor is set.
func (s *Service) Messages(ctx context.Context, conversationID string, limit int, before time.Time) ([]domainchat.Message, error) {
	return s.Store.Messages(ctx, conversationID, limit, before)
}

// Send validates the request, checks the block relation, persists the
// message and fans it out. The created row is returned so the caller can
// render it without waiting for the transport echo.
func (s *Service) Send(ctx context.Context, params domainchat.SendParams) (*domainchat.Message, error) {
	if err := validateSend(&params); err != nil {
		return nil, err
	}
	conversation, err := s.Store.Conversation(ctx, params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(params.SenderID) {
		return nil, domainchat.ErrNotParticipant
	}
	recipient := conversation.Peer(params.SenderID)
	blocked, err := s.Blocks.IsBlocked(ctx, recipient, params.SenderID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, domainchat.ErrBlocked
	}

	message, err := s.Store.InsertMessage(ctx, domainchat.InsertMessageParams{
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Type:           params.Type,
		Content:        params.Content,
		ImageURL:       params.ImageURL,
		Metadata:       domainchat.Metadata{OfferCents: params.OfferCents},
	})
	if err != nil {
		return nil, err
	}

	if err := s.Transport.Publish(ctx, conversation.ID, domainchat.Event{
		Kind:    domainchat.EventMessage,
		Message: message,
	}); err != nil {
		s.Logger.Warn("message fan-out failed", "conversation_id", conversation.ID, "message_id", message.ID, "error", err)
	}
	s.notify(ctx, domainchat.ChangeEvent{
		Kind:           domainchat.ChangeMessageCreated,
		ConversationID: conversation.ID,
		MessageID:      message.ID,
		Participants:   conversation.Participants,
		OccurredAt:     message.CreatedAt,
	})
	return message, nil
}

// MarkRead zeroes the user's unread counter. Idempotent.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) error {
	if err := s.Store.MarkConversationRead(ctx, conversationID, userID); err != nil {
		return err
	}
	s.notify(ctx, domainchat.ChangeEvent{
		Kind:           domainchat.ChangeConversationRead,
		ConversationID: conversationID,
		Participants:   []string{userID},
		OccurredAt:     time.Now().UTC(),
	})
	return nil
}

// DeleteMessage soft-deletes the sender's own message.
func (s *Service) DeleteMessage(ctx context.Context, conversationID, messageID, senderID string) (*domainchat.Message, error) {
	return s.Store.DeleteMessage(ctx, conversationID, messageID, senderID)
}

// ToggleReaction flips the user's emoji reaction on a message.
func (s *Service) ToggleReaction(ctx context.Context, conversationID, messageID, userID, emoji string) (*domainchat.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, domainchat.ErrContentRequired
	}
	return s.Store.ToggleReaction(ctx, conversationID, messageID, userID, emoji)
}

func (s *Service) notify(ctx context.Context, event domainchat.ChangeEvent) {
	if err := s.Notifier.ConversationChanged(ctx, event); err != nil {
		s.Logger.Warn("change notification failed", "kind", event.Kind, "conversation_id", event.ConversationID, "error", err)
	}
}

func validateSend(params *domainchat.SendParams) error {
	msgType, err := domainchat.ParseMessageType(string(params.Type))
	if err != nil {
		return err
	}
	params.Type = msgType
	params.Content = strings.TrimSpace(params.Content)
	params.ImageURL = strings.TrimSpace(params.ImageURL)

	switch msgType {
	case domainchat.MessageImage:
		if params.ImageURL == "" {
			return domainchat.ErrContentRequired
		}
	case domainchat.MessageOffer:
		if params.OfferCents <= 0 {
			return domainchat.ErrOfferAmountRequired
		}
	default:
		if params.Content == "" {
			return domainchat.ErrContentRequired
		}
	}
	return nil
}
