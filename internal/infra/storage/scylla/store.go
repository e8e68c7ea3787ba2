package scylla

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	domainchat "threadmarket/internal/domain/chat"
	domainlistings "threadmarket/internal/domain/listings"
	domainuser "threadmarket/internal/domain/user"
)

// readStampLimit bounds the best-effort pass that back-fills read_at on
// inbound rows; the unread counter reset itself is a single update.
const readStampLimit = 100

// Store implements the chat store on Scylla: conversations in one table,
// messages clustered by (conversation_id, created_at desc).
type Store struct {
	session  *gocql.Session
	users    domainuser.Repository
	listings domainlistings.Repository
	logger   *slog.Logger
}

func NewStore(session *gocql.Session, users domainuser.Repository, listings domainlistings.Repository, logger *slog.Logger) *Store {
	return &Store{session: session, users: users, listings: listings, logger: logger}
}

type conversationRow struct {
	ID            gocql.UUID
	ListingID     string
	Participants  []string
	Unread        map[string]int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastMessageAt time.Time
	LastMessageID gocql.UUID
	LastSenderID  string
	LastType      string
	LastText      string
}

const conversationColumns = `id, listing_id, participants, unread, created_at, updated_at, last_message_at, last_message_id, last_message_sender, last_message_type, last_message_text`

func (s *Store) Conversation(ctx context.Context, id string) (*domainchat.Conversation, error) {
	cid, err := gocql.ParseUUID(strings.TrimSpace(id))
	if err != nil {
		return nil, domainchat.ErrConversationNotFound
	}
	var row conversationRow
	if err := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, cid).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(&row.ID, &row.ListingID, &row.Participants, &row.Unread, &row.CreatedAt, &row.UpdatedAt,
			&row.LastMessageAt, &row.LastMessageID, &row.LastSenderID, &row.LastType, &row.LastText); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return s.toConversation(row), nil
}

// CreateConversation scans the listing's threads for the participant pair
// before inserting, keeping creation idempotent per (participants, listing).
func (s *Store) CreateConversation(ctx context.Context, userA, userB, listingID string) (*domainchat.Conversation, error) {
	participants := domainchat.NormalizeParticipants(userA, userB)
	if len(participants) != 2 {
		return nil, domainchat.ErrParticipantsRequired
	}
	listingID = strings.TrimSpace(listingID)

	iter := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE listing_id = ? ALLOW FILTERING`, listingID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	var row conversationRow
	for iter.Scan(&row.ID, &row.ListingID, &row.Participants, &row.Unread, &row.CreatedAt, &row.UpdatedAt,
		&row.LastMessageAt, &row.LastMessageID, &row.LastSenderID, &row.LastType, &row.LastText) {
		if sameParticipants(row.Participants, participants) {
			existing := row
			if err := iter.Close(); err != nil {
				return nil, err
			}
			return s.toConversation(existing), nil
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	id := gocql.UUIDFromTime(time.Now())
	now := time.Now().UTC()
	unread := map[string]int{participants[0]: 0, participants[1]: 0}
	if err := s.session.
		Query(`INSERT INTO conversations (id, listing_id, participants, unread, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, listingID, participants, unread, now, now).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}
	return &domainchat.Conversation{
		ID:           id.String(),
		ListingID:    listingID,
		Participants: participants,
		Unread:       unread,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (s *Store) UserConversations(ctx context.Context, userID string) ([]domainchat.Summary, error) {
	iter := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE participants CONTAINS ? ALLOW FILTERING`, userID).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	rows := make([]conversationRow, 0)
	var row conversationRow
	for iter.Scan(&row.ID, &row.ListingID, &row.Participants, &row.Unread, &row.CreatedAt, &row.UpdatedAt,
		&row.LastMessageAt, &row.LastMessageID, &row.LastSenderID, &row.LastType, &row.LastText) {
		rows = append(rows, conversationRow{
			ID:            row.ID,
			ListingID:     row.ListingID,
			Participants:  append([]string(nil), row.Participants...),
			Unread:        copyUnread(row.Unread),
			CreatedAt:     row.CreatedAt,
			UpdatedAt:     row.UpdatedAt,
			LastMessageAt: row.LastMessageAt,
			LastMessageID: row.LastMessageID,
			LastSenderID:  row.LastSenderID,
			LastType:      row.LastType,
			LastText:      row.LastText,
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		return lastActivity(rows[i]).After(lastActivity(rows[j]))
	})

	summaries := make([]domainchat.Summary, 0, len(rows))
	for _, r := range rows {
		conv := s.toConversation(r)
		summary := domainchat.Summary{
			ID:            conv.ID,
			Peer:          s.profile(ctx, conv.Peer(userID)),
			LastMessage:   conv.LastMessage,
			LastMessageAt: conv.LastMessageAt,
			Unread:        conv.Unread[userID],
			CreatedAt:     conv.CreatedAt,
		}
		if conv.ListingID != "" && s.listings != nil {
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

// Messages returns the newest rows ascending; a non-zero before acts as an
// exclusive upper bound on created_at.
func (s *Store) Messages(ctx context.Context, conversationID string, limit int, before time.Time) ([]domainchat.Message, error) {
	cid, err := gocql.ParseUUID(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, domainchat.ErrConversationNotFound
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var iter *gocql.Iter
	if !before.IsZero() {
		iter = s.session.
			Query(`SELECT id, conversation_id, sender_id, message_type, content, image_url, offer_cents, reactions, created_at, read_at, deleted FROM messages WHERE conversation_id = ? AND created_at < ? LIMIT ?`,
				cid, before.UTC(), limit).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
	} else {
		iter = s.session.
			Query(`SELECT id, conversation_id, sender_id, message_type, content, image_url, offer_cents, reactions, created_at, read_at, deleted FROM messages WHERE conversation_id = ? LIMIT ?`,
				cid, limit).
			WithContext(ctx).
			Consistency(gocql.One).
			Iter()
	}

	messages, err := s.scanMessages(ctx, iter)
	if err != nil {
		return nil, err
	}
	// Rows arrive newest first; callers want ascending.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) InsertMessage(ctx context.Context, params domainchat.InsertMessageParams) (*domainchat.Message, error) {
	conv, err := s.Conversation(ctx, params.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(params.SenderID) {
		return nil, domainchat.ErrNotParticipant
	}
	cid, _ := gocql.ParseUUID(conv.ID)

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()
	id, err := gocql.ParseUUID(uuid.NewString())
	if err != nil {
		return nil, err
	}

	if err := s.session.
		Query(`INSERT INTO messages (conversation_id, created_at, id, sender_id, message_type, content, image_url, offer_cents, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, false)`,
			cid, createdAt, id, params.SenderID, string(params.Type), params.Content, params.ImageURL, params.Metadata.OfferCents).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}

	// Best-effort denormalized update; readers fall back to the messages
	// table if this loses a race.
	unread := copyUnread(conv.Unread)
	for _, p := range conv.Participants {
		if p != params.SenderID {
			unread[p]++
		}
	}
	if err := s.session.
		Query(`UPDATE conversations SET last_message_at = ?, last_message_id = ?, last_message_sender = ?, last_message_type = ?, last_message_text = ?, unread = ?, updated_at = ? WHERE id = ?`,
			createdAt, id, params.SenderID, string(params.Type), trimSnippet(params.Content, 500), unread, createdAt, cid).
		WithContext(ctx).
		Consistency(gocql.One).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update conversation meta", "error", err, "conversation_id", conv.ID)
	}

	return &domainchat.Message{
		ID:             id.String(),
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		Sender:         s.profile(ctx, params.SenderID),
		Type:           params.Type,
		Content:        params.Content,
		ImageURL:       params.ImageURL,
		Metadata:       params.Metadata,
		CreatedAt:      createdAt,
	}, nil
}

func (s *Store) MarkConversationRead(ctx context.Context, conversationID, userID string) error {
	cid, err := gocql.ParseUUID(strings.TrimSpace(conversationID))
	if err != nil {
		return domainchat.ErrConversationNotFound
	}
	if err := s.session.
		Query(`UPDATE conversations SET unread[?] = 0 WHERE id = ?`, userID, cid).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return err
	}

	// Back-fill read receipts on recent inbound rows; bounded because the
	// counter above is what the inbox actually renders.
	iter := s.session.
		Query(`SELECT created_at, id, sender_id, read_at FROM messages WHERE conversation_id = ? LIMIT ?`, cid, readStampLimit).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	now := time.Now().UTC()
	var (
		createdAt time.Time
		id        gocql.UUID
		senderID  string
		readAt    *time.Time
	)
	type pending struct {
		createdAt time.Time
		id        gocql.UUID
	}
	var stamps []pending
	for iter.Scan(&createdAt, &id, &senderID, &readAt) {
		if senderID != userID && readAt == nil {
			stamps = append(stamps, pending{createdAt, id})
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, p := range stamps {
		if err := s.session.
			Query(`UPDATE messages SET read_at = ? WHERE conversation_id = ? AND created_at = ? AND id = ?`,
				now, cid, p.createdAt, p.id).
			WithContext(ctx).
			Consistency(gocql.One).
			Exec(); err != nil && s.logger != nil {
			s.logger.Warn("read receipt update failed", "conversation_id", conversationID, "message_id", p.id.String(), "error", err)
		}
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, conversationID, messageID, senderID string) (*domainchat.Message, error) {
	msg, key, err := s.findMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, domainchat.ErrNotParticipant
	}
	if err := s.session.
		Query(`UPDATE messages SET deleted = true, content = ?, image_url = '' WHERE conversation_id = ? AND created_at = ? AND id = ?`,
			domainchat.DeletedPlaceholder, key.conversationID, key.createdAt, key.id).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}
	msg.Deleted = true
	msg.Content = domainchat.DeletedPlaceholder
	msg.ImageURL = ""
	return msg, nil
}

func (s *Store) ToggleReaction(ctx context.Context, conversationID, messageID, userID, emoji string) (*domainchat.Message, error) {
	msg, key, err := s.findMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string][]string)
	}
	users := msg.Reactions[emoji]
	removed := false
	for i, id := range users {
		if id == userID {
			msg.Reactions[emoji] = append(users[:i], users[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		msg.Reactions[emoji] = append(users, userID)
	} else if len(msg.Reactions[emoji]) == 0 {
		delete(msg.Reactions, emoji)
	}
	if err := s.session.
		Query(`UPDATE messages SET reactions = ? WHERE conversation_id = ? AND created_at = ? AND id = ?`,
			msg.Reactions, key.conversationID, key.createdAt, key.id).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return nil, err
	}
	return msg, nil
}

type messageKey struct {
	conversationID gocql.UUID
	createdAt      time.Time
	id             gocql.UUID
}

func (s *Store) findMessage(ctx context.Context, conversationID, messageID string) (*domainchat.Message, messageKey, error) {
	cid, err := gocql.ParseUUID(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, messageKey{}, domainchat.ErrConversationNotFound
	}
	mid, err := gocql.ParseUUID(strings.TrimSpace(messageID))
	if err != nil {
		return nil, messageKey{}, domainchat.ErrMessageNotFound
	}
	iter := s.session.
		Query(`SELECT id, conversation_id, sender_id, message_type, content, image_url, offer_cents, reactions, created_at, read_at, deleted FROM messages WHERE conversation_id = ? AND id = ? ALLOW FILTERING`, cid, mid).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()
	messages, err := s.scanMessages(ctx, iter)
	if err != nil {
		return nil, messageKey{}, err
	}
	if len(messages) == 0 {
		return nil, messageKey{}, domainchat.ErrMessageNotFound
	}
	msg := messages[0]
	return &msg, messageKey{conversationID: cid, createdAt: msg.CreatedAt, id: mid}, nil
}

func (s *Store) scanMessages(ctx context.Context, iter *gocql.Iter) ([]domainchat.Message, error) {
	messages := make([]domainchat.Message, 0)
	var (
		id         gocql.UUID
		cid        gocql.UUID
		senderID   string
		msgType    string
		content    string
		imageURL   string
		offerCents int64
		reactions  map[string][]string
		createdAt  time.Time
		readAt     *time.Time
		deleted    bool
	)
	for iter.Scan(&id, &cid, &senderID, &msgType, &content, &imageURL, &offerCents, &reactions, &createdAt, &readAt, &deleted) {
		msg := domainchat.Message{
			ID:             id.String(),
			ConversationID: cid.String(),
			SenderID:       senderID,
			Sender:         s.profile(ctx, senderID),
			Type:           domainchat.MessageType(msgType),
			Content:        content,
			ImageURL:       imageURL,
			Metadata:       domainchat.Metadata{OfferCents: offerCents},
			CreatedAt:      createdAt,
			Deleted:        deleted,
		}
		if readAt != nil {
			stamped := *readAt
			msg.ReadAt = &stamped
		}
		if len(reactions) > 0 {
			msg.Reactions = make(map[string][]string, len(reactions))
			for emoji, users := range reactions {
				msg.Reactions[emoji] = append([]string(nil), users...)
			}
		}
		messages = append(messages, msg)
		reactions = nil
		readAt = nil
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) toConversation(row conversationRow) *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:            row.ID.String(),
		ListingID:     row.ListingID,
		Participants:  append([]string(nil), row.Participants...),
		Unread:        copyUnread(row.Unread),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		LastMessageAt: row.LastMessageAt,
	}
	if row.LastSenderID != "" {
		conv.LastMessage = &domainchat.Message{
			ID:             row.LastMessageID.String(),
			ConversationID: conv.ID,
			SenderID:       row.LastSenderID,
			Type:           domainchat.MessageType(row.LastType),
			Content:        row.LastText,
			CreatedAt:      row.LastMessageAt,
		}
	}
	return conv
}

func (s *Store) profile(ctx context.Context, userID string) domainchat.Profile {
	if s.users != nil {
		if u, err := s.users.ByID(ctx, userID); err == nil {
			return domainchat.Profile{ID: u.ID, Username: u.Username, AvatarURL: u.AvatarURL}
		}
	}
	return domainchat.Profile{ID: userID}
}

func copyUnread(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func trimSnippet(text string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}

func sameParticipants(a, b []string) bool {
	aNorm := domainchat.NormalizeParticipants(a...)
	bNorm := domainchat.NormalizeParticipants(b...)
	if len(aNorm) != len(bNorm) {
		return false
	}
	for i := range aNorm {
		if aNorm[i] != bNorm[i] {
			return false
		}
	}
	return true
}

func lastActivity(r conversationRow) time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}
