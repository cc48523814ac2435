package migration

import (
	"context"
	"encoding/json"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/google/uuid"
)

// PageToken is an opaque pagination position. The empty token is the first page.
type PageToken string

// ProviderRecord is one raw record as returned by a provider
type ProviderRecord struct {
	Source     Source
	Kind       crm.EntityKind
	ExternalID string
	Payload    json.RawMessage
}

// RecordFailure describes a record the adapter could not turn into a
// ProviderRecord. ExternalID is empty when the record had none.
type RecordFailure struct {
	ExternalID string
	Payload    []byte
	Err        error
}

// Page is one batch of records from a provider
type Page struct {
	Records   []ProviderRecord
	Malformed []RecordFailure
	Next      PageToken
	Done      bool
}

// SourceAdapter retrieves and maps records from one provider.
//
// FetchPage returns a run-fatal error for credential, retry budget and
// non-retryable request failures. Map returns (nil, nil) when the record is
// deliberately skipped, for example because it is deleted upstream.
type SourceAdapter interface {
	Source() Source
	FetchPage(ctx context.Context, creds Credentials, kind crm.EntityKind, token PageToken) (*Page, error)
	Map(record ProviderRecord, orgID uuid.UUID) (crm.Entity, error)
}
