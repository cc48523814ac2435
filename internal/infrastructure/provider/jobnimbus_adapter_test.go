package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newJobNimbusServer serves records for /contacts with offset pagination
func newJobNimbusServer(t *testing.T, records []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/contacts", r.URL.Path)

		size, _ := strconv.Atoi(r.URL.Query().Get("size"))
		from, _ := strconv.Atoi(r.URL.Query().Get("from"))
		end := min(from+size, len(records))
		if from > end {
			from = end
		}

		results := make([]json.RawMessage, 0, end-from)
		for _, rec := range records[from:end] {
			results = append(results, json.RawMessage(rec))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jnListResponse{Count: len(records), Results: results})
	}))
}

func TestJobNimbusAdapter_Source(t *testing.T) {
	adapter := NewJobNimbusAdapter(Config{})
	assert.Equal(t, migration.SourceJobNimbus, adapter.Source())
	assert.Equal(t, DefaultJobNimbusBaseURL, adapter.baseURL)
}

func TestJobNimbusAdapter_FetchPage_Paginates(t *testing.T) {
	server := newJobNimbusServer(t, []string{
		`{"jnid":"c1","first_name":"Ann"}`,
		`{"jnid":"c2","first_name":"Bob"}`,
		`{"jnid":"c3","first_name":"Cy"}`,
	})
	defer server.Close()

	adapter := NewJobNimbusAdapter(fastConfig())
	creds := migration.Credentials{APIKey: "test-key", BaseURL: server.URL}
	ctx := context.Background()

	page, err := adapter.FetchPage(ctx, creds, crm.KindContact, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "c1", page.Records[0].ExternalID)
	assert.Equal(t, crm.KindContact, page.Records[0].Kind)
	assert.Equal(t, migration.SourceJobNimbus, page.Records[0].Source)
	assert.Equal(t, migration.PageToken("2"), page.Next)
	assert.False(t, page.Done)

	page, err = adapter.FetchPage(ctx, creds, crm.KindContact, page.Next)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "c3", page.Records[0].ExternalID)
	assert.True(t, page.Done)
}

func TestJobNimbusAdapter_FetchPage_EmptyPageIsDone(t *testing.T) {
	server := newJobNimbusServer(t, nil)
	defer server.Close()

	adapter := NewJobNimbusAdapter(fastConfig())
	page, err := adapter.FetchPage(context.Background(), migration.Credentials{APIKey: "test-key", BaseURL: server.URL}, crm.KindContact, "")

	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.True(t, page.Done)
}

func TestJobNimbusAdapter_FetchPage_Malformed(t *testing.T) {
	server := newJobNimbusServer(t, []string{
		`"just a string"`,
		`{"first_name":"No Id"}`,
		`{"jnid":7,"first_name":"Numeric"}`,
	})
	defer server.Close()

	cfg := fastConfig()
	cfg.PageSize = 10
	adapter := NewJobNimbusAdapter(cfg)
	page, err := adapter.FetchPage(context.Background(), migration.Credentials{APIKey: "test-key", BaseURL: server.URL}, crm.KindContact, "")

	require.NoError(t, err)
	require.Len(t, page.Malformed, 2)
	for _, f := range page.Malformed {
		assert.ErrorIs(t, f.Err, migration.ErrMalformedRecord)
		assert.NotEmpty(t, f.Payload)
	}
	require.Len(t, page.Records, 1)
	assert.Equal(t, "7", page.Records[0].ExternalID)
}

func TestJobNimbusAdapter_FetchPage_InvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	adapter := NewJobNimbusAdapter(fastConfig())
	_, err := adapter.FetchPage(context.Background(), migration.Credentials{APIKey: "k", BaseURL: server.URL}, crm.KindContact, "")
	assert.ErrorIs(t, err, migration.ErrProviderRequestFailed)
}

func TestJobNimbusAdapter_FetchPage_BadInput(t *testing.T) {
	adapter := NewJobNimbusAdapter(fastConfig())
	creds := migration.Credentials{APIKey: "k", BaseURL: "http://127.0.0.1:0"}

	_, err := adapter.FetchPage(context.Background(), creds, crm.EntityKind("jobs"), "")
	assert.ErrorIs(t, err, migration.ErrUnsupportedKind)

	_, err = adapter.FetchPage(context.Background(), creds, crm.KindContact, "abc")
	assert.Error(t, err)
}

func TestJobNimbusAdapter_FetchPage_AllKinds(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = fmt.Fprint(w, `{"count":0,"results":[]}`)
	}))
	defer server.Close()

	adapter := NewJobNimbusAdapter(fastConfig())
	for _, kind := range crm.ImportOrder() {
		_, err := adapter.FetchPage(context.Background(), migration.Credentials{APIKey: "k", BaseURL: server.URL + "/"}, kind, "")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"/contacts", "/properties", "/claims", "/leads"}, paths)
}

func TestJobNimbusAdapter_Map_Dispatch(t *testing.T) {
	adapter := NewJobNimbusAdapter(Config{})
	orgID := uuid.New()

	entity, err := adapter.Map(migration.ProviderRecord{
		Source:     migration.SourceJobNimbus,
		Kind:       crm.KindProperty,
		ExternalID: "p1",
		Payload:    json.RawMessage(`{"jnid":"p1","address_line1":"1 Main St"}`),
	}, orgID)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, crm.KindProperty, entity.Kind())
	assert.Equal(t, orgID, entity.ExternalRef().OrgID)
	assert.Equal(t, "p1", entity.ExternalRef().ExternalID)

	_, err = adapter.Map(migration.ProviderRecord{Kind: crm.EntityKind("jobs")}, orgID)
	assert.ErrorIs(t, err, migration.ErrUnsupportedKind)
}
