package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	domainlistings "threadmarket/internal/domain/listings"
)

// ListingRepository is an in-memory catalog implementation.
type ListingRepository struct {
	mu    sync.RWMutex
	items map[string]*domainlistings.Listing
}

func NewListingRepository() *ListingRepository {
	return &ListingRepository{items: make(map[string]*domainlistings.Listing)}
}

func (r *ListingRepository) ByID(ctx context.Context, id string) (*domainlistings.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	listing, ok := r.items[id]
	if !ok {
		return nil, domainlistings.ErrNotFound
	}
	return cloneListing(listing), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if listing == nil || strings.TrimSpace(listing.ID) == "" {
		return domainlistings.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[listing.ID] = cloneListing(listing)
	return nil
}

func (r *ListingRepository) Search(ctx context.Context, params domainlistings.SearchParams) (domainlistings.SearchResult, error) {
	opts := params.Normalized()

	r.mu.RLock()
	matches := make([]*domainlistings.Listing, 0, len(r.items))
	for _, listing := range r.items {
		if listing.State != domainlistings.StateActive {
			continue
		}
		if opts.Seller != "" && listing.SellerID != opts.Seller {
			continue
		}
		if opts.Culture != "" && !strings.EqualFold(listing.Culture, opts.Culture) {
			continue
		}
		if opts.Category != "" && !strings.EqualFold(listing.Category, opts.Category) {
			continue
		}
		if opts.MinCents > 0 && listing.PriceCents < opts.MinCents {
			continue
		}
		if opts.MaxCents > 0 && listing.PriceCents > opts.MaxCents {
			continue
		}
		if opts.Query != "" && !matchQuery(listing, opts.Query) {
			continue
		}
		matches = append(matches, cloneListing(listing))
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
	})

	total := len(matches)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	return domainlistings.SearchResult{Items: matches[start:end], Total: total}, nil
}

func matchQuery(l *domainlistings.Listing, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(l.Title), q) ||
		strings.Contains(strings.ToLower(l.Description), q) ||
		strings.Contains(strings.ToLower(l.Culture), q)
}

func cloneListing(l *domainlistings.Listing) *domainlistings.Listing {
	out := *l
	out.Images = append([]string(nil), l.Images...)
	return &out
}
