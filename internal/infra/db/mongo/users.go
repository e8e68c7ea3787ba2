package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "threadmarket/internal/domain/user"
)

type userDoc struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	AvatarURL string    `bson:"avatar_url,omitempty"`
	Bio       string    `bson:"bio,omitempty"`
	Location  string    `bson:"location,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// UserRepository persists user profiles in the "users" collection.
type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{col: client.DB.Collection("users")}
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*domainuser.User, error) {
	var doc userDoc
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return &domainuser.User{
		ID:        doc.ID,
		Username:  doc.Username,
		AvatarURL: doc.AvatarURL,
		Bio:       doc.Bio,
		Location:  doc.Location,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	if u == nil || u.ID == "" {
		return domainuser.ErrIDRequired
	}
	doc := userDoc{
		ID:        u.ID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		Bio:       u.Bio,
		Location:  u.Location,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": u.ID}, doc, opts)
	return err
}

type blockDoc struct {
	BlockerID string    `bson:"blocker_id"`
	BlockedID string    `bson:"blocked_id"`
	CreatedAt time.Time `bson:"created_at"`
}

// BlockStore persists block relations keyed by (blocker, blocked).
type BlockStore struct {
	col *mongo.Collection
}

func NewBlockStore(client *Client) *BlockStore {
	return &BlockStore{col: client.DB.Collection("blocked_users")}
}

func (s *BlockStore) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return domainuser.ErrSelfBlock
	}
	filter := bson.M{"blocker_id": blockerID, "blocked_id": blockedID}
	update := bson.M{"$setOnInsert": blockDoc{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: time.Now().UTC()}}
	opts := options.Update().SetUpsert(true)
	_, err := s.col.UpdateOne(ctx, filter, update, opts)
	return err
}

func (s *BlockStore) Unblock(ctx context.Context, blockerID, blockedID string) error {
	_, err := s.col.DeleteOne(ctx, bson.M{"blocker_id": blockerID, "blocked_id": blockedID})
	return err
}

func (s *BlockStore) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	err := s.col.FindOne(ctx, bson.M{"blocker_id": blockerID, "blocked_id": blockedID}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type reportDoc struct {
	ID         string    `bson:"_id"`
	ReporterID string    `bson:"reporter_id"`
	ReportedID string    `bson:"reported_id"`
	Reason     string    `bson:"reason"`
	Details    string    `bson:"details,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

// ReportStore appends trust-and-safety reports.
type ReportStore struct {
	col *mongo.Collection
}

func NewReportStore(client *Client) *ReportStore {
	return &ReportStore{col: client.DB.Collection("user_reports")}
}

func (s *ReportStore) Save(ctx context.Context, report *domainuser.Report) error {
	if report == nil || report.Reason == "" {
		return domainuser.ErrReasonRequired
	}
	doc := reportDoc{
		ID:         report.ID,
		ReporterID: report.ReporterID,
		ReportedID: report.ReportedID,
		Reason:     report.Reason,
		Details:    report.Details,
		CreatedAt:  report.CreatedAt,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := s.col.InsertOne(ctx, doc)
	return err
}
