package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"threadmarket/internal/app/dto"
	chatservice "threadmarket/internal/app/services/chat"
	domainchat "threadmarket/internal/domain/chat"
	domainlistings "threadmarket/internal/domain/listings"
)

// ListingHandler exposes the garment catalog.
type ListingHandler struct {
	Listings domainlistings.Repository
	Chat     *chatservice.Service
	Logger   *slog.Logger
}

// Catalog searches active listings.
func (h ListingHandler) Catalog(c *gin.Context) {
	params := domainlistings.SearchParams{
		Query:    c.Query("q"),
		Culture:  c.Query("culture"),
		Category: c.Query("category"),
		Seller:   c.Query("seller"),
		MinCents: parseCents(c.Query("min_cents")),
		MaxCents: parseCents(c.Query("max_cents")),
		Limit:    parsePositiveInt(c.Query("limit"), 24),
		Offset:   parsePositiveInt(c.Query("offset"), 0),
	}
	result, err := h.Listings.Search(c.Request.Context(), params)
	if err != nil {
		h.fail(c, err, "catalog search")
		return
	}
	c.JSON(http.StatusOK, dto.MapListingPage(result))
}

// Get returns one listing.
func (h ListingHandler) Get(c *gin.Context) {
	listing, err := h.Listings.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err, "load listing", "listing_id", c.Param("id"))
		return
	}
	c.JSON(http.StatusOK, dto.MapListing(listing))
}

type createListingRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Culture     string   `json:"culture"`
	Category    string   `json:"category"`
	Size        string   `json:"size"`
	Condition   string   `json:"condition"`
	PriceCents  int64    `json:"price_cents"`
	Images      []string `json:"images"`
}

// Create drafts a new listing owned by the caller.
func (h ListingHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	listing, err := domainlistings.New(domainlistings.CreateParams{
		ID:          uuid.NewString(),
		SellerID:    user.ID,
		Title:       req.Title,
		Description: req.Description,
		Culture:     req.Culture,
		Category:    req.Category,
		Size:        req.Size,
		Condition:   req.Condition,
		PriceCents:  req.PriceCents,
		Images:      req.Images,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Listings.Save(c.Request.Context(), listing); err != nil {
		h.fail(c, err, "save listing", "listing_id", listing.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapListing(listing))
}

// Publish moves the caller's draft into the catalog.
func (h ListingHandler) Publish(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err, "load listing", "listing_id", c.Param("id"))
		return
	}
	if listing.SellerID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the listing owner"})
		return
	}
	listing.Activate(time.Now())
	if err := h.Listings.Save(c.Request.Context(), listing); err != nil {
		h.fail(c, err, "publish listing", "listing_id", listing.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapListing(listing))
}

type contactSellerRequest struct {
	Message string `json:"message"`
}

// ContactSeller opens (or reuses) the listing-scoped conversation with the
// seller and optionally sends a first inquiry message.
func (h ListingHandler) ContactSeller(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err, "load listing", "listing_id", c.Param("id"))
		return
	}
	var req contactSellerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	conversation, err := h.Chat.CreateConversation(c.Request.Context(), user.ID, listing.SellerID, listing.ID)
	if err != nil {
		switch {
		case errors.Is(err, domainchat.ErrSelfConversation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot contact yourself"})
		default:
			h.fail(c, err, "contact seller", "listing_id", listing.ID, "user_id", user.ID)
		}
		return
	}
	if msg := req.Message; msg != "" {
		if _, err := h.Chat.Send(c.Request.Context(), domainchat.SendParams{
			ConversationID: conversation.ID,
			SenderID:       user.ID,
			Type:           domainchat.MessageInquiry,
			Content:        msg,
		}); err != nil && h.Logger != nil {
			h.Logger.Warn("inquiry send failed", "conversation_id", conversation.ID, "error", err)
		}
	}
	c.JSON(http.StatusCreated, gin.H{"conversation_id": conversation.ID})
}

func (h ListingHandler) fail(c *gin.Context, err error, action string, args ...any) {
	if h.Logger != nil {
		h.Logger.Error("listing "+action+" failed", append(args, "error", err)...)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseCents(raw string) int64 {
	n := parsePositiveInt(raw, 0)
	return int64(n)
}

var _ ListingHTTP = ListingHandler{}
