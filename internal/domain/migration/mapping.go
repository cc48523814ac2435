package migration

import (
	"fmt"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/google/uuid"
)

// MappingKey identifies an external record within an org
type MappingKey struct {
	OrgID      uuid.UUID
	Source     Source
	Kind       crm.EntityKind
	ExternalID string
}

// KeyFor builds the mapping key of an entity
func KeyFor(e crm.Entity) MappingKey {
	ref := e.ExternalRef()
	return MappingKey{
		OrgID:      ref.OrgID,
		Source:     Source(ref.Source),
		Kind:       e.Kind(),
		ExternalID: ref.ExternalID,
	}
}

// String returns org/source/kind/externalId
func (k MappingKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.OrgID, k.Source, k.Kind, k.ExternalID)
}

// ExternalIDMapping links an external record to its internal identity.
// There is at most one mapping per key.
type ExternalIDMapping struct {
	Key         MappingKey
	InternalID  uuid.UUID
	Fingerprint string
	FirstRunID  uuid.UUID
	LastRunID   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Links holds the internal ids of records an entity references
type Links map[crm.EntityKind]uuid.UUID

// Get returns the linked id of kind, or nil
func (l Links) Get(kind crm.EntityKind) *uuid.UUID {
	id, ok := l[kind]
	if !ok {
		return nil
	}
	return &id
}
