package migration

import (
	"context"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/google/uuid"
)

// MappingRepository reads external id mappings
type MappingRepository interface {
	// FindByKey returns ErrMappingNotFound when no mapping exists
	FindByKey(ctx context.Context, key MappingKey) (*ExternalIDMapping, error)
}

// RecordWrite is everything needed to persist one entity and its mapping
type RecordWrite struct {
	Key         MappingKey
	InternalID  uuid.UUID
	Fingerprint string
	RunID       uuid.UUID
	Entity      crm.Entity
	Links       Links
	// Existing is true when the mapping was found during resolution
	Existing bool
}

// RecordStore persists destination entities together with their mappings.
//
// Commit writes the mapping and the entity row atomically. When a new
// mapping loses a race to a concurrent writer and the stored internal id
// differs from w.InternalID, nothing is written and a *WriteConflictError
// is returned.
type RecordStore interface {
	Commit(ctx context.Context, w RecordWrite) error
}

// RunRepository persists migration runs
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	// Finalize stores the terminal state. It returns ErrRunAlreadyFinalized
	// if the stored run is no longer running.
	Finalize(ctx context.Context, run *Run) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*Run, error)
	ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]*Run, error)
}

// RunLock provides per-org mutual exclusion for live migrations.
// Markers expire after ttl so a crashed holder cannot block an org forever.
type RunLock interface {
	Acquire(ctx context.Context, orgID uuid.UUID, token string, ttl time.Duration) (bool, error)
	// Release removes the marker only if it is still held by token
	Release(ctx context.Context, orgID uuid.UUID, token string) error
	// ForceUnlock removes the marker regardless of holder
	ForceUnlock(ctx context.Context, orgID uuid.UUID) (bool, error)
}

// ReportArchive stores the full error report of a run
type ReportArchive interface {
	Store(ctx context.Context, run *Run, errs []MigrationError) (string, error)
}
