package cache

import (
	"context"
	"sync"
	"time"

	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
	"github.com/juju/clock"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryRunLock implements migration.RunLock in process memory.
// It only excludes runs within one instance.
type InMemoryRunLock struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[uuid.UUID]lockEntry
}

// NewInMemoryRunLock creates an in-memory lock. A nil clock uses the wall clock.
func NewInMemoryRunLock(c clock.Clock) *InMemoryRunLock {
	if c == nil {
		c = clock.WallClock
	}
	return &InMemoryRunLock{clock: c, entries: make(map[uuid.UUID]lockEntry)}
}

// live returns the unexpired entry of org. Expired entries are dropped.
func (l *InMemoryRunLock) live(orgID uuid.UUID) (lockEntry, bool) {
	e, ok := l.entries[orgID]
	if !ok {
		return lockEntry{}, false
	}
	if !l.clock.Now().Before(e.expiresAt) {
		delete(l.entries, orgID)
		return lockEntry{}, false
	}
	return e, true
}

// Acquire takes the org lock for token unless a live holder exists
func (l *InMemoryRunLock) Acquire(_ context.Context, orgID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.live(orgID); held {
		return false, nil
	}
	l.entries[orgID] = lockEntry{token: token, expiresAt: l.clock.Now().Add(ttl)}
	return true, nil
}

// Release drops the org lock if token still holds it
func (l *InMemoryRunLock) Release(_ context.Context, orgID uuid.UUID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, held := l.live(orgID); held && e.token == token {
		delete(l.entries, orgID)
	}
	return nil
}

// ForceUnlock drops the org lock regardless of holder
func (l *InMemoryRunLock) ForceUnlock(_ context.Context, orgID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, held := l.live(orgID)
	delete(l.entries, orgID)
	return held, nil
}

// Holder returns the token holding the org lock, or "" when unlocked
func (l *InMemoryRunLock) Holder(_ context.Context, orgID uuid.UUID) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, _ := l.live(orgID)
	return e.token, nil
}

var _ migration.RunLock = (*InMemoryRunLock)(nil)
