package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
)

// JobNimbusAdapter reads records from the JobNimbus REST API.
// Pagination is offset based: ?size=N&from=K.
type JobNimbusAdapter struct {
	client   *apiClient
	baseURL  string
	pageSize int
}

var _ migration.SourceAdapter = (*JobNimbusAdapter)(nil)

// NewJobNimbusAdapter creates a JobNimbus adapter
func NewJobNimbusAdapter(cfg Config, opts ...Option) *JobNimbusAdapter {
	cfg = cfg.withDefaults()
	return &JobNimbusAdapter{
		client:   newAPIClient(migration.SourceJobNimbus, cfg, opts...),
		baseURL:  cfg.JobNimbusBaseURL,
		pageSize: cfg.PageSize,
	}
}

// Source returns SourceJobNimbus
func (a *JobNimbusAdapter) Source() migration.Source {
	return migration.SourceJobNimbus
}

// FetchPage retrieves one page of kind starting at the offset in token
func (a *JobNimbusAdapter) FetchPage(ctx context.Context, creds migration.Credentials, kind crm.EntityKind, token migration.PageToken) (*migration.Page, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %s", migration.ErrUnsupportedKind, kind)
	}
	from := 0
	if token != "" {
		n, err := strconv.Atoi(string(token))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("jobnimbus: invalid page token %q", token)
		}
		from = n
	}

	q := url.Values{}
	q.Set("size", strconv.Itoa(a.pageSize))
	q.Set("from", strconv.Itoa(from))
	endpoint := fmt.Sprintf("%s/%s?%s", creds.ResolveBaseURL(a.baseURL), kind, q.Encode())

	body, err := a.client.getJSON(ctx, endpoint, func(req *http.Request) {
		req.Header.Set("Authorization", "bearer "+creds.APIKey)
	})
	if err != nil {
		return nil, fmt.Errorf("jobnimbus: fetch %s: %w", kind, err)
	}

	var resp jnListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: jobnimbus: failed to parse %s page: %v", migration.ErrProviderRequestFailed, kind, err)
	}

	records, malformed := splitObjects(migration.SourceJobNimbus, kind, resp.Results, "jnid")
	next := from + len(resp.Results)
	return &migration.Page{
		Records:   records,
		Malformed: malformed,
		Next:      migration.PageToken(strconv.Itoa(next)),
		Done:      len(resp.Results) == 0 || next >= resp.Count,
	}, nil
}

// Map converts a JobNimbus record to a canonical entity
func (a *JobNimbusAdapter) Map(record migration.ProviderRecord, orgID uuid.UUID) (crm.Entity, error) {
	ref := crm.ExternalRef{OrgID: orgID, Source: string(migration.SourceJobNimbus), ExternalID: record.ExternalID}
	switch record.Kind {
	case crm.KindContact:
		return mapJobNimbusContact(ref, record.Payload)
	case crm.KindProperty:
		return mapJobNimbusProperty(ref, record.Payload)
	case crm.KindClaim:
		return mapJobNimbusClaim(ref, record.Payload)
	case crm.KindLead:
		return mapJobNimbusLead(ref, record.Payload)
	}
	return nil, fmt.Errorf("%w: %s", migration.ErrUnsupportedKind, record.Kind)
}
