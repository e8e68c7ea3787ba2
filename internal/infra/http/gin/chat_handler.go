package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"threadmarket/internal/app/dto"
	chatservice "threadmarket/internal/app/services/chat"
	domainchat "threadmarket/internal/domain/chat"
	"threadmarket/internal/infra/storage/s3"
)

const maxAttachmentBytes = 10 << 20

// ChatHandler exposes the conversation and message endpoints.
type ChatHandler struct {
	Chat     *chatservice.Service
	Uploader s3.Uploader
	Logger   *slog.Logger
}

// ListConversations returns the caller's inbox rows, most recent first.
func (h ChatHandler) ListConversations(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	summaries, err := h.Chat.Conversations(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err, "list conversations", "user_id", user.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.MapChatConversations(summaries)})
}

type createConversationRequest struct {
	PeerID    string `json:"peer_id"`
	ListingID string `json:"listing_id"`
}

// CreateConversation starts (or returns) the thread with a peer.
func (h ChatHandler) CreateConversation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conversation, err := h.Chat.CreateConversation(c.Request.Context(), user.ID, req.PeerID, req.ListingID)
	if err != nil {
		h.respondError(c, err, "create conversation", "user_id", user.ID, "peer_id", req.PeerID)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": conversation.ID})
}

// ListMessages pages a conversation ascending by creation time. A "before"
// timestamp acts as an exclusive cursor for loading older history.
func (h ChatHandler) ListMessages(c *gin.Context) {
	user, conversation, ok := h.requireParticipant(c)
	if !ok {
		return
	}
	limit := parsePositiveInt(c.Query("limit"), 50)
	var before time.Time
	if raw := strings.TrimSpace(c.Query("before")); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be RFC3339"})
			return
		}
		before = parsed
	}
	messages, err := h.Chat.Messages(c.Request.Context(), conversation.ID, limit, before)
	if err != nil {
		h.respondError(c, err, "list messages", "conversation_id", conversation.ID, "user_id", user.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dto.MapChatMessages(messages)})
}

type sendMessageRequest struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	ImageURL   string `json:"image_url"`
	OfferCents int64  `json:"offer_cents"`
}

// SendMessage persists and fans out one message.
func (h ChatHandler) SendMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	message, err := h.Chat.Send(c.Request.Context(), domainchat.SendParams{
		ConversationID: c.Param("id"),
		SenderID:       user.ID,
		Type:           domainchat.MessageType(req.Type),
		Content:        req.Content,
		ImageURL:       req.ImageURL,
		OfferCents:     req.OfferCents,
	})
	if err != nil {
		h.respondError(c, err, "send message", "conversation_id", c.Param("id"), "user_id", user.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapChatMessage(message))
}

// MarkRead zeroes the caller's unread counter. Idempotent.
func (h ChatHandler) MarkRead(c *gin.Context) {
	user, conversation, ok := h.requireParticipant(c)
	if !ok {
		return
	}
	if err := h.Chat.MarkRead(c.Request.Context(), conversation.ID, user.ID); err != nil {
		h.respondError(c, err, "mark read", "conversation_id", conversation.ID, "user_id", user.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessage soft-deletes the caller's own message.
func (h ChatHandler) DeleteMessage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	message, err := h.Chat.DeleteMessage(c.Request.Context(), c.Param("id"), c.Param("messageID"), user.ID)
	if err != nil {
		h.respondError(c, err, "delete message", "conversation_id", c.Param("id"), "message_id", c.Param("messageID"))
		return
	}
	c.JSON(http.StatusOK, dto.MapChatMessage(message))
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// ToggleReaction flips the caller's emoji reaction on a message.
func (h ChatHandler) ToggleReaction(c *gin.Context) {
	user, _, ok := h.requireParticipant(c)
	if !ok {
		return
	}
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	message, err := h.Chat.ToggleReaction(c.Request.Context(), c.Param("id"), c.Param("messageID"), user.ID, req.Emoji)
	if err != nil {
		h.respondError(c, err, "toggle reaction", "conversation_id", c.Param("id"), "message_id", c.Param("messageID"))
		return
	}
	c.JSON(http.StatusOK, dto.MapChatMessage(message))
}

// UploadAttachment stores an image and returns its URL for use in an image
// message.
func (h ChatHandler) UploadAttachment(c *gin.Context) {
	_, conversation, ok := h.requireParticipant(c)
	if !ok {
		return
	}
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachments unavailable"})
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	defer file.Close()
	if header.Size > maxAttachmentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
		return
	}
	url, err := h.Uploader.UploadAttachment(c.Request.Context(), conversation.ID, file, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, s3.ErrUnsupportedContentType) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return
		}
		h.respondError(c, err, "upload attachment", "conversation_id", conversation.ID)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

// requireParticipant loads the conversation and rejects outsiders.
func (h ChatHandler) requireParticipant(c *gin.Context) (principal, *domainchat.Conversation, bool) {
	user, ok := requireUser(c)
	if !ok {
		return principal{}, nil, false
	}
	conversation, err := h.Chat.Conversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "load conversation", "conversation_id", c.Param("id"), "user_id", user.ID)
		return principal{}, nil, false
	}
	if !conversation.HasParticipant(user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return principal{}, nil, false
	}
	return user, conversation, true
}

func (h ChatHandler) respondError(c *gin.Context, err error, action string, args ...any) {
	switch {
	case errors.Is(err, domainchat.ErrConversationNotFound),
		errors.Is(err, domainchat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrNotParticipant),
		errors.Is(err, domainchat.ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrParticipantsRequired),
		errors.Is(err, domainchat.ErrSelfConversation),
		errors.Is(err, domainchat.ErrContentRequired),
		errors.Is(err, domainchat.ErrInvalidMessageType),
		errors.Is(err, domainchat.ErrOfferAmountRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("chat "+action+" failed", append(args, "error", err)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePositiveInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

var _ ChatHTTP = ChatHandler{}
