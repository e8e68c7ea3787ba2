package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired       = errors.New("user: id is required")
	ErrUsernameRequired = errors.New("user: username is required")
	ErrNotFound         = errors.New("user: not found")
	ErrSelfBlock        = errors.New("user: cannot block yourself")
	ErrReasonRequired   = errors.New("user: report reason is required")
)

// User is a marketplace account. Buyers and sellers share one shape; selling
// is implied by owning listings.
type User struct {
	ID        string
	Username  string
	AvatarURL string
	Bio       string
	Location  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateParams struct {
	ID        string
	Username  string
	AvatarURL string
	Bio       string
	Location  string
	CreatedAt time.Time
}

func New(params CreateParams) (*User, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &User{
		ID:        id,
		Username:  username,
		AvatarURL: strings.TrimSpace(params.AvatarURL),
		Bio:       params.Bio,
		Location:  params.Location,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type Repository interface {
	ByID(ctx context.Context, id string) (*User, error)
	Save(ctx context.Context, user *User) error
}

// Block is one user blocking another. The blocker owns the relation; a block
// prevents the blocked user from messaging the blocker.
type Block struct {
	BlockerID string
	BlockedID string
	CreatedAt time.Time
}

type BlockStore interface {
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	// IsBlocked reports whether blocker has blocked the given user.
	IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error)
}

// Report is a trust-and-safety flag raised by one user against another.
type Report struct {
	ID         string
	ReporterID string
	ReportedID string
	Reason     string
	Details    string
	CreatedAt  time.Time
}

type ReportStore interface {
	Save(ctx context.Context, report *Report) error
}
