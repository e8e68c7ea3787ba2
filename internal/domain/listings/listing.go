package listings

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired     = errors.New("listings: id is required")
	ErrSellerRequired = errors.New("listings: seller is required")
	ErrTitleRequired  = errors.New("listings: title is required")
	ErrInvalidPrice   = errors.New("listings: price must be positive")
	ErrNotFound       = errors.New("listings: not found")
)

type State string

const (
	StateDraft  State = "draft"
	StateActive State = "active"
	StateSold   State = "sold"
)

// Listing is one garment offered for sale: a sari, kimono, dashiki, huipil
// and so on. Culture tags what tradition the piece belongs to; items are
// second-hand so condition matters.
type Listing struct {
	ID          string
	SellerID    string
	Title       string
	Description string
	Culture     string
	Category    string
	Size        string
	Condition   string
	PriceCents  int64
	Images      []string
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type CreateParams struct {
	ID          string
	SellerID    string
	Title       string
	Description string
	Culture     string
	Category    string
	Size        string
	Condition   string
	PriceCents  int64
	Images      []string
	CreatedAt   time.Time
}

func New(params CreateParams) (*Listing, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	seller := strings.TrimSpace(params.SellerID)
	if seller == "" {
		return nil, ErrSellerRequired
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	if params.PriceCents <= 0 {
		return nil, ErrInvalidPrice
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Listing{
		ID:          id,
		SellerID:    seller,
		Title:       title,
		Description: params.Description,
		Culture:     strings.TrimSpace(params.Culture),
		Category:    strings.TrimSpace(params.Category),
		Size:        strings.TrimSpace(params.Size),
		Condition:   strings.TrimSpace(params.Condition),
		PriceCents:  params.PriceCents,
		Images:      append([]string(nil), params.Images...),
		State:       StateDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Activate publishes a draft listing to the catalog.
func (l *Listing) Activate(now time.Time) {
	l.State = StateActive
	l.UpdatedAt = now.UTC()
}

// SearchParams filter the catalog.
type SearchParams struct {
	Query    string
	Culture  string
	Category string
	Seller   string
	MinCents int64
	MaxCents int64
	Limit    int
	Offset   int
}

// Normalized applies defaults and bounds.
func (p SearchParams) Normalized() SearchParams {
	p.Query = strings.TrimSpace(p.Query)
	p.Culture = strings.TrimSpace(p.Culture)
	p.Category = strings.TrimSpace(p.Category)
	p.Seller = strings.TrimSpace(p.Seller)
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 24
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type SearchResult struct {
	Items []*Listing
	Total int
}

type Repository interface {
	ByID(ctx context.Context, id string) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
	Search(ctx context.Context, params SearchParams) (SearchResult, error)
}
