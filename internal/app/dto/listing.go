package dto

import (
	"time"

	domainlistings "threadmarket/internal/domain/listings"
)

// Listing is the public catalog shape.
type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Culture     string    `json:"culture,omitempty"`
	Category    string    `json:"category,omitempty"`
	Size        string    `json:"size,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Images      []string  `json:"images,omitempty"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListingPage is a catalog search response.
type ListingPage struct {
	Items []Listing `json:"items"`
	Total int       `json:"total"`
}

func MapListing(l *domainlistings.Listing) Listing {
	if l == nil {
		return Listing{}
	}
	return Listing{
		ID:          l.ID,
		SellerID:    l.SellerID,
		Title:       l.Title,
		Description: l.Description,
		Culture:     l.Culture,
		Category:    l.Category,
		Size:        l.Size,
		Condition:   l.Condition,
		PriceCents:  l.PriceCents,
		Images:      l.Images,
		State:       string(l.State),
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

func MapListingPage(result domainlistings.SearchResult) ListingPage {
	page := ListingPage{Items: make([]Listing, 0, len(result.Items)), Total: result.Total}
	for _, l := range result.Items {
		page.Items = append(page.Items, MapListing(l))
	}
	return page
}
