package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainuser "threadmarket/internal/domain/user"
)

// UserRepository stores users in memory. Not suitable for production.
type UserRepository struct {
	mu   sync.RWMutex
	byID map[string]*domainuser.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byID: make(map[string]*domainuser.User)}
}

func (r *UserRepository) ByID(ctx context.Context, id string) (*domainuser.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.byID[id]; ok {
		copyUser := *u
		return &copyUser, nil
	}
	return nil, domainuser.ErrNotFound
}

func (r *UserRepository) Save(ctx context.Context, u *domainuser.User) error {
	if u == nil || strings.TrimSpace(u.ID) == "" {
		return domainuser.ErrIDRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copyUser := *u
	r.byID[u.ID] = &copyUser
	return nil
}

type blockKey struct {
	blocker string
	blocked string
}

// BlockStore keeps block relations in memory.
type BlockStore struct {
	mu     sync.RWMutex
	blocks map[blockKey]time.Time
}

func NewBlockStore() *BlockStore {
	return &BlockStore{blocks: make(map[blockKey]time.Time)}
}

func (s *BlockStore) Block(ctx context.Context, blockerID, blockedID string) error {
	if blockerID == blockedID {
		return domainuser.ErrSelfBlock
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[blockKey{blockerID, blockedID}] = time.Now().UTC()
	return nil
}

func (s *BlockStore) Unblock(ctx context.Context, blockerID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, blockKey{blockerID, blockedID})
	return nil
}

func (s *BlockStore) IsBlocked(ctx context.Context, blockerID, blockedID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[blockKey{blockerID, blockedID}]
	return ok, nil
}

// ReportStore appends trust-and-safety reports in memory.
type ReportStore struct {
	mu      sync.Mutex
	reports []domainuser.Report
}

func NewReportStore() *ReportStore {
	return &ReportStore{}
}

func (s *ReportStore) Save(ctx context.Context, report *domainuser.Report) error {
	if report == nil || strings.TrimSpace(report.Reason) == "" {
		return domainuser.ErrReasonRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *report
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.reports = append(s.reports, stored)
	return nil
}

// All returns a copy of the stored reports; used by tests.
func (s *ReportStore) All() []domainuser.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domainuser.Report(nil), s.reports...)
}
