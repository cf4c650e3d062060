package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockHeld signals that someone else is editing the draft. Advisory: the
// UI warns, it never blocks a save.
var ErrLockHeld = errors.New("draft lock held")

// Lock is a claim on a draft document for one editing session.
type Lock struct {
	DocID     string
	Holder    string
	ExpiresAt time.Time
}

type LockService interface {
	// Acquire claims the draft for holder. Held by someone else and
	// unexpired, it returns the current lock and ErrLockHeld. Re-acquiring
	// your own lock refreshes it. Expired locks are reclaimed.
	Acquire(ctx context.Context, docID, holder string) (*Lock, error)
	// Release drops the lock if holder still owns it.
	Release(ctx context.Context, docID, holder string) error
	// Refresh extends the TTL if holder still owns it.
	Refresh(ctx context.Context, docID, holder string) (*Lock, error)
}

// MemoryLockService is the single-process implementation.
type MemoryLockService struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	locks map[string]Lock
}

func NewMemoryLockService(ttl time.Duration) *MemoryLockService {
	return &MemoryLockService{
		ttl:   ttl,
		clock: time.Now,
		locks: make(map[string]Lock),
	}
}

// WithClock overrides the time source, for tests.
func (s *MemoryLockService) WithClock(clock func() time.Time) *MemoryLockService {
	s.clock = clock
	return s
}

func (s *MemoryLockService) Acquire(ctx context.Context, docID, holder string) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if cur, ok := s.locks[docID]; ok && cur.ExpiresAt.After(now) && cur.Holder != holder {
		held := cur
		return &held, fmt.Errorf("%w by %s until %s", ErrLockHeld, cur.Holder, cur.ExpiresAt.Format(time.RFC3339))
	}

	lock := Lock{DocID: docID, Holder: holder, ExpiresAt: now.Add(s.ttl)}
	s.locks[docID] = lock
	return &lock, nil
}

func (s *MemoryLockService) Release(ctx context.Context, docID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.locks[docID]; ok && cur.Holder == holder {
		delete(s.locks, docID)
	}
	return nil
}

func (s *MemoryLockService) Refresh(ctx context.Context, docID, holder string) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	cur, ok := s.locks[docID]
	if !ok || !cur.ExpiresAt.After(now) || cur.Holder != holder {
		return nil, fmt.Errorf("%w: refresh by non-holder", ErrLockHeld)
	}
	cur.ExpiresAt = now.Add(s.ttl)
	s.locks[docID] = cur
	return &cur, nil
}

var _ LockService = (*MemoryLockService)(nil)
