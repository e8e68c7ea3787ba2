package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	domainuser "threadmarket/internal/domain/user"
	"threadmarket/internal/infra/security"
)

const principalContextKey = "threadmarket.principal"

type principal struct {
	ID        string
	Username  string
	AvatarURL string
	Token     string
}

// AuthMiddleware resolves opaque bearer tokens into a request principal.
// Requests without a valid token pass through anonymous; handlers that need
// an identity gate on requireUser.
type AuthMiddleware struct {
	Sessions *security.SessionStore
	Users    domainuser.Repository
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		// websocket clients cannot set headers
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" || m.Sessions == nil {
		c.Next()
		return
	}
	userID, ok := m.Sessions.Resolve(token)
	if !ok {
		c.Next()
		return
	}
	user, err := m.Users.ByID(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, domainuser.ErrNotFound) && m.Logger != nil {
			m.Logger.Debug("principal lookup failed", "user_id", userID, "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{
		ID:        user.ID,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		Token:     token,
	})
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireUser(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
