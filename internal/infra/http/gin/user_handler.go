package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"threadmarket/internal/app/dto"
	domainuser "threadmarket/internal/domain/user"
)

// UserHandler exposes profiles plus the block and report surfaces.
type UserHandler struct {
	Users   domainuser.Repository
	Blocks  domainuser.BlockStore
	Reports domainuser.ReportStore
	Logger  *slog.Logger
}

// Me returns the caller's profile.
func (h UserHandler) Me(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	profile, err := h.Users.ByID(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err, "load self", "user_id", user.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapUser(profile))
}

// Get returns a public profile.
func (h UserHandler) Get(c *gin.Context) {
	profile, err := h.Users.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err, "load user", "user_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, dto.MapUser(profile))
}

// Block prevents the target from messaging the caller.
func (h UserHandler) Block(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.Blocks.Block(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		if errors.Is(err, domainuser.ErrSelfBlock) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err, "block user", "user_id", user.ID, "blocked_id", c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

// Unblock removes a block relation. Idempotent.
func (h UserHandler) Unblock(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.Blocks.Unblock(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.fail(c, err, "unblock user", "user_id", user.ID, "blocked_id", c.Param("id"))
		return
	}
	c.Status(http.StatusNoContent)
}

type reportRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

// Report files a trust-and-safety report against the target.
func (h UserHandler) Report(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.Reports.Save(c.Request.Context(), &domainuser.Report{
		ReporterID: user.ID,
		ReportedID: c.Param("id"),
		Reason:     req.Reason,
		Details:    req.Details,
	})
	if err != nil {
		if errors.Is(err, domainuser.ErrReasonRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err, "report user", "user_id", user.ID, "reported_id", c.Param("id"))
		return
	}
	c.Status(http.StatusCreated)
}

func (h UserHandler) fail(c *gin.Context, err error, action string, args ...any) {
	if h.Logger != nil {
		h.Logger.Error("user "+action+" failed", append(args, "error", err)...)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

var _ UserHTTP = UserHandler{}
