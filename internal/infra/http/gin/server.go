package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"threadmarket/internal/infra/config"
	"threadmarket/internal/infra/obs"
)

type ChatHTTP interface {
	ListConversations(c *gin.Context)
	CreateConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteMessage(c *gin.Context)
	ToggleReaction(c *gin.Context)
	UploadAttachment(c *gin.Context)
}

type ListingHTTP interface {
	Catalog(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Publish(c *gin.Context)
	ContactSeller(c *gin.Context)
}

type UserHTTP interface {
	Me(c *gin.Context)
	Get(c *gin.Context)
	Block(c *gin.Context)
	Unblock(c *gin.Context)
	Report(c *gin.Context)
}

type WSHTTP interface {
	Conversation(c *gin.Context)
}

type Handlers struct {
	Chat           ChatHTTP
	Listing        ListingHTTP
	User           UserHTTP
	WS             WSHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Chat != nil {
		chatGroup := api.Group("/chat")
		chatGroup.GET("/conversations", h.Chat.ListConversations)
		chatGroup.POST("/conversations", h.Chat.CreateConversation)
		chatGroup.GET("/conversations/:id/messages", h.Chat.ListMessages)
		chatGroup.POST("/conversations/:id/messages", h.Chat.SendMessage)
		chatGroup.POST("/conversations/:id/read", h.Chat.MarkRead)
		chatGroup.DELETE("/conversations/:id/messages/:messageID", h.Chat.DeleteMessage)
		chatGroup.POST("/conversations/:id/messages/:messageID/reactions", h.Chat.ToggleReaction)
		chatGroup.POST("/conversations/:id/attachments", h.Chat.UploadAttachment)
	}
	if h.Listing != nil {
		api.GET("/listings", h.Listing.Catalog)
		api.POST("/listings", h.Listing.Create)
		api.GET("/listings/:id", h.Listing.Get)
		api.POST("/listings/:id/publish", h.Listing.Publish)
		api.POST("/listings/:id/contact", h.Listing.ContactSeller)
	}
	if h.User != nil {
		api.GET("/me", h.User.Me)
		api.GET("/users/:id", h.User.Get)
		api.POST("/users/:id/block", h.User.Block)
		api.DELETE("/users/:id/block", h.User.Unblock)
		api.POST("/users/:id/report", h.User.Report)
	}
	if h.WS != nil {
		router.GET("/ws/conversations/:id", h.WS.Conversation)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
