package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	appchat "threadmarket/internal/app/chat"
	"threadmarket/internal/app/dto"
	chatservice "threadmarket/internal/app/services/chat"
	domainchat "threadmarket/internal/domain/chat"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WSHandler is the realtime gateway: one socket per open conversation. The
// socket drives a chat session; reconciled events flow back out as frames.
// The write pump is the only goroutine touching the connection for writes,
// read-side responses go through the outbox.
type WSHandler struct {
	Chat     *chatservice.Service
	Registry *appchat.Registry
	Logger   *slog.Logger
}

type inboundFrame struct {
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
	MsgType    string `json:"message_type,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	OfferCents int64  `json:"offer_cents,omitempty"`
}

type outboundFrame struct {
	Type     string             `json:"type"`
	Message  *dto.ChatMessage   `json:"message,omitempty"`
	Messages []dto.ChatMessage  `json:"messages,omitempty"`
	UserID   string             `json:"user_id,omitempty"`
	Username string             `json:"username,omitempty"`
	Typing   []string           `json:"typing,omitempty"`
	Online   []dto.ChatPresence `json:"online,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Conversation upgrades the request and attaches the caller to the
// conversation channel until the socket closes.
func (h WSHandler) Conversation(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	conversation, err := h.Chat.Conversation(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !conversation.HasParticipant(user.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "conversation_id", conversationID, "error", err)
		}
		return
	}

	session, err := h.Registry.Open(c.Request.Context(), domainchat.Profile{
		ID:        user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
	}, conversationID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "attach failed"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}

	outbox := make(chan outboundFrame, 16)
	// Initial history snapshot before the live stream starts.
	outbox <- outboundFrame{Type: "history", Messages: dto.MapChatMessages(session.Thread().Messages())}

	go h.writePump(conn, session, outbox)
	h.readPump(conn, session, conversationID, outbox)
}

func (h WSHandler) readPump(conn *websocket.Conn, session *appchat.Session, conversationID string, outbox chan<- outboundFrame) {
	defer func() {
		// Release, not Close: after a reconnect replaced this session the
		// registry holds the new one, which must survive this teardown.
		h.Registry.Release(session)
		conn.Close()
	}()
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && h.Logger != nil {
				h.Logger.Debug("websocket read failed", "conversation_id", conversationID, "error", err)
			}
			return
		}
		h.dispatch(session, frame, outbox)
	}
}

func (h WSHandler) dispatch(session *appchat.Session, frame inboundFrame, outbox chan<- outboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch frame.Type {
	case "send":
		_, err := session.Send(ctx, domainchat.SendParams{
			Type:       domainchat.MessageType(frame.MsgType),
			Content:    frame.Content,
			ImageURL:   frame.ImageURL,
			OfferCents: frame.OfferCents,
		})
		if err != nil {
			pushFrame(outbox, outboundFrame{Type: "error", Error: err.Error()})
		}
	case "typing":
		if err := session.BroadcastTyping(ctx); err != nil && h.Logger != nil {
			h.Logger.Debug("typing broadcast failed", "error", err)
		}
	case "stop_typing":
		if err := session.BroadcastStopTyping(ctx); err != nil && h.Logger != nil {
			h.Logger.Debug("stop typing broadcast failed", "error", err)
		}
	case "mark_read":
		session.MarkRead(ctx)
	default:
		pushFrame(outbox, outboundFrame{Type: "error", Error: "unknown frame type"})
	}
}

func (h WSHandler) writePump(conn *websocket.Conn, session *appchat.Session, outbox <-chan outboundFrame) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-outbox:
			if !writeFrame(conn, frame) {
				return
			}
		case event, ok := <-session.Events():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if frame, send := mapSessionEvent(session, event); send {
				if !writeFrame(conn, frame) {
					return
				}
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func mapSessionEvent(session *appchat.Session, event domainchat.Event) (outboundFrame, bool) {
	switch event.Kind {
	case domainchat.EventMessage:
		return outboundFrame{Type: "message", Message: dto.MapChatMessage(event.Message)}, true
	case domainchat.EventTyping:
		if event.Typing == nil {
			return outboundFrame{}, false
		}
		return outboundFrame{
			Type:     "typing",
			UserID:   event.Typing.UserID,
			Username: event.Typing.Username,
			Typing:   session.TypingUsers(),
		}, true
	case domainchat.EventStopTyping:
		if event.Typing == nil {
			return outboundFrame{}, false
		}
		return outboundFrame{
			Type:   "stop_typing",
			UserID: event.Typing.UserID,
			Typing: session.TypingUsers(),
		}, true
	case domainchat.EventPresence:
		return outboundFrame{Type: "presence", Online: dto.MapChatPresence(event.Presence)}, true
	default:
		return outboundFrame{}, false
	}
}

func writeFrame(conn *websocket.Conn, frame outboundFrame) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(frame) == nil
}

// pushFrame drops on a full outbox rather than stalling the read loop.
func pushFrame(outbox chan<- outboundFrame, frame outboundFrame) {
	select {
	case outbox <- frame:
	default:
	}
}

var _ WSHTTP = WSHandler{}
