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

// AccuLynxAdapter reads records from the AccuLynx REST API.
// Pagination is cursor based: ?pageSize=N&cursor=C.
type AccuLynxAdapter struct {
	client   *apiClient
	baseURL  string
	pageSize int
}

var _ migration.SourceAdapter = (*AccuLynxAdapter)(nil)

// NewAccuLynxAdapter creates an AccuLynx adapter
func NewAccuLynxAdapter(cfg Config, opts ...Option) *AccuLynxAdapter {
	cfg = cfg.withDefaults()
	return &AccuLynxAdapter{
		client:   newAPIClient(migration.SourceAccuLynx, cfg, opts...),
		baseURL:  cfg.AccuLynxBaseURL,
		pageSize: cfg.PageSize,
	}
}

// Source returns SourceAccuLynx
func (a *AccuLynxAdapter) Source() migration.Source {
	return migration.SourceAccuLynx
}

// FetchPage retrieves the page of kind at the cursor in token
func (a *AccuLynxAdapter) FetchPage(ctx context.Context, creds migration.Credentials, kind crm.EntityKind, token migration.PageToken) (*migration.Page, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %s", migration.ErrUnsupportedKind, kind)
	}

	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(a.pageSize))
	if token != "" {
		q.Set("cursor", string(token))
	}
	endpoint := fmt.Sprintf("%s/%s?%s", creds.ResolveBaseURL(a.baseURL), kind, q.Encode())

	body, err := a.client.getJSON(ctx, endpoint, func(req *http.Request) {
		req.Header.Set("X-Api-Key", creds.APIKey)
	})
	if err != nil {
		return nil, fmt.Errorf("acculynx: fetch %s: %w", kind, err)
	}

	var resp alListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: acculynx: failed to parse %s page: %v", migration.ErrProviderRequestFailed, kind, err)
	}

	records, malformed := splitObjects(migration.SourceAccuLynx, kind, resp.Items, "id")
	return &migration.Page{
		Records:   records,
		Malformed: malformed,
		Next:      migration.PageToken(resp.NextCursor),
		Done:      resp.NextCursor == "",
	}, nil
}

// Map converts an AccuLynx record to a canonical entity
func (a *AccuLynxAdapter) Map(record migration.ProviderRecord, orgID uuid.UUID) (crm.Entity, error) {
	ref := crm.ExternalRef{OrgID: orgID, Source: string(migration.SourceAccuLynx), ExternalID: record.ExternalID}
	switch record.Kind {
	case crm.KindContact:
		return mapAccuLynxContact(ref, record.Payload)
	case crm.KindProperty:
		return mapAccuLynxProperty(ref, record.Payload)
	case crm.KindClaim:
		return mapAccuLynxClaim(ref, record.Payload)
	case crm.KindLead:
		return mapAccuLynxLead(ref, record.Payload)
	}
	return nil, fmt.Errorf("%w: %s", migration.ErrUnsupportedKind, record.Kind)
}
