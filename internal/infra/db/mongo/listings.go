package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "threadmarket/internal/domain/listings"
)

type listingDoc struct {
	ID          string    `bson:"_id"`
	SellerID    string    `bson:"seller_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description,omitempty"`
	Culture     string    `bson:"culture,omitempty"`
	Category    string    `bson:"category,omitempty"`
	Size        string    `bson:"size,omitempty"`
	Condition   string    `bson:"condition,omitempty"`
	PriceCents  int64     `bson:"price_cents"`
	Images      []string  `bson:"images,omitempty"`
	State       string    `bson:"state"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

// ListingRepository persists listings in the "listings" collection.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(client *Client) *ListingRepository {
	return &ListingRepository{col: client.DB.Collection("listings")}
}

func (r *ListingRepository) ByID(ctx context.Context, id string) (*domainlistings.Listing, error) {
	var doc listingDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return fromListingDoc(doc), nil
}

func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	if l == nil || l.ID == "" {
		return domainlistings.ErrIDRequired
	}
	doc := listingDoc{
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
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": l.ID}, doc, opts)
	return err
}

func (r *ListingRepository) Search(ctx context.Context, params domainlistings.SearchParams) (domainlistings.SearchResult, error) {
	opts := params.Normalized()
	filter := bson.M{"state": string(domainlistings.StateActive)}
	if opts.Seller != "" {
		filter["seller_id"] = opts.Seller
	}
	if opts.Culture != "" {
		filter["culture"] = bson.M{"$regex": "^" + opts.Culture + "$", "$options": "i"}
	}
	if opts.Category != "" {
		filter["category"] = bson.M{"$regex": "^" + opts.Category + "$", "$options": "i"}
	}
	price := bson.M{}
	if opts.MinCents > 0 {
		price["$gte"] = opts.MinCents
	}
	if opts.MaxCents > 0 {
		price["$lte"] = opts.MaxCents
	}
	if len(price) > 0 {
		filter["price_cents"] = price
	}
	if opts.Query != "" {
		filter["$or"] = bson.A{
			bson.M{"title": bson.M{"$regex": opts.Query, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": opts.Query, "$options": "i"}},
			bson.M{"culture": bson.M{"$regex": opts.Query, "$options": "i"}},
		}
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return domainlistings.SearchResult{}, err
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))
	cursor, err := r.col.Find(ctx, filter, findOpts)
	if err != nil {
		return domainlistings.SearchResult{}, err
	}
	defer cursor.Close(ctx)

	result := domainlistings.SearchResult{Total: int(total)}
	for cursor.Next(ctx) {
		var doc listingDoc
		if err := cursor.Decode(&doc); err != nil {
			return domainlistings.SearchResult{}, err
		}
		result.Items = append(result.Items, fromListingDoc(doc))
	}
	return result, cursor.Err()
}

func fromListingDoc(doc listingDoc) *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:          doc.ID,
		SellerID:    doc.SellerID,
		Title:       doc.Title,
		Description: doc.Description,
		Culture:     doc.Culture,
		Category:    doc.Category,
		Size:        doc.Size,
		Condition:   doc.Condition,
		PriceCents:  doc.PriceCents,
		Images:      doc.Images,
		State:       domainlistings.State(doc.State),
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
