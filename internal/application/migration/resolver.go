package migrationapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
)

// internalIDNamespace seeds the per-org namespaces of allocated internal ids
var internalIDNamespace = uuid.MustParse("3b8f2a4c-6d1e-5f70-9a8b-0c1d2e3f4a5b")

// Resolution is the identity of a record before it is written
type Resolution struct {
	InternalID uuid.UUID
	// Existing is true when a mapping was found
	Existing bool
	// Fingerprint of the stored content, empty for new records
	Fingerprint string
}

// IdempotencyResolver maps external ids to internal identities
type IdempotencyResolver struct {
	mappings migration.MappingRepository
}

// NewIdempotencyResolver creates a resolver over mappings
func NewIdempotencyResolver(mappings migration.MappingRepository) *IdempotencyResolver {
	return &IdempotencyResolver{mappings: mappings}
}

// AllocateInternalID returns the internal id a new record with key receives.
// Allocation is a pure function of the key, so simulated and live runs
// predict the same ids and concurrent writers of one key agree.
func AllocateInternalID(key migration.MappingKey) uuid.UUID {
	orgSpace := uuid.NewSHA1(internalIDNamespace, key.OrgID[:])
	name := fmt.Sprintf("%s/%s/%s", key.Source, key.Kind, key.ExternalID)
	return uuid.NewSHA1(orgSpace, []byte(name))
}

// Resolve returns the existing mapping of key or a freshly allocated id.
// Nothing is persisted.
func (r *IdempotencyResolver) Resolve(ctx context.Context, key migration.MappingKey) (Resolution, error) {
	m, err := r.mappings.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, migration.ErrMappingNotFound) {
			return Resolution{InternalID: AllocateInternalID(key)}, nil
		}
		return Resolution{}, fmt.Errorf("resolve %s: %w", key, err)
	}
	return Resolution{InternalID: m.InternalID, Existing: true, Fingerprint: m.Fingerprint}, nil
}

// Lookup returns the internal id of an already mapped record without allocating
func (r *IdempotencyResolver) Lookup(ctx context.Context, key migration.MappingKey) (uuid.UUID, bool, error) {
	m, err := r.mappings.FindByKey(ctx, key)
	if err != nil {
		if errors.Is(err, migration.ErrMappingNotFound) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return m.InternalID, true, nil
}
