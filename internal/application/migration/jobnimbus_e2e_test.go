package migrationapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/infrastructure/cache"
	"github.com/crmigrate/backend/internal/infrastructure/persistence"
	"github.com/crmigrate/backend/internal/infrastructure/persistence/models"
	"github.com/crmigrate/backend/internal/infrastructure/provider"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeJobNimbus serves JobNimbus list endpoints from fixed records
type fakeJobNimbus struct {
	mu      sync.Mutex
	apiKey  string
	records map[string][]map[string]any
	// unavailable answers this many requests with 503 before serving
	unavailable int
	requests    int
}

func (f *fakeJobNimbus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if r.Header.Get("Authorization") != "bearer "+f.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.unavailable > 0 {
		f.unavailable--
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	kind := strings.TrimPrefix(r.URL.Path, "/")
	all := f.records[kind]
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	from, _ := strconv.Atoi(r.URL.Query().Get("from"))
	end := min(from+size, len(all))
	page := []map[string]any{}
	if from < len(all) {
		page = all[from:end]
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"count": len(all), "results": page})
}

func setupE2EDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, persistence.AutoMigrate(db))
	return db
}

func newJobNimbusService(t *testing.T, db *gorm.DB, baseURL string) *MigrationService {
	t.Helper()
	adapter := provider.NewJobNimbusAdapter(provider.Config{
		PageSize:         2,
		HTTPTimeout:      5 * time.Second,
		Retry:            provider.RetryPolicy{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		JobNimbusBaseURL: baseURL,
	})
	return NewMigrationService(
		NewAdapterRegistry(adapter),
		persistence.NewGormRunRepository(db),
		persistence.NewGormMappingRepository(db),
		persistence.NewGormRecordStore(db),
		cache.NewInMemoryRunLock(clock.WallClock),
		Config{},
	)
}

func jobNimbusFixture() map[string][]map[string]any {
	return map[string][]map[string]any{
		"contacts": {
			{"jnid": "c1", "first_name": "Ada", "last_name": "Lovelace", "email": "ADA@Example.com", "address_line1": "1 Main St", "city": "Austin", "state_text": "Texas", "zip": "78701"},
			{"jnid": "c2", "first_name": "Grace", "last_name": "Hopper", "home_phone": "(512) 555-0100"},
			{"jnid": "c3", "company": "Turing Roofing LLC"},
		},
	}
}

func TestJobNimbusMigration_EndToEnd(t *testing.T) {
	const apiKey = "jn-live-key"
	upstream := &fakeJobNimbus{apiKey: apiKey, records: jobNimbusFixture()}
	server := httptest.NewServer(upstream)
	defer server.Close()

	db := setupE2EDB(t)
	svc := newJobNimbusService(t, db, server.URL)
	orgID := uuid.New()
	cmd := StartCommand{
		OrgID:       orgID,
		UserID:      uuid.New(),
		Source:      "jobnimbus",
		Credentials: migration.Credentials{APIKey: apiKey},
	}
	ctx := context.Background()

	first, err := svc.Run(ctx, cmd)
	require.NoError(t, err)

	assert.True(t, first.OK, "%+v", first.Errors)
	assert.Equal(t, migration.KindStats{Created: 3}, first.Stats[crm.KindContact])
	assert.Empty(t, first.Errors)

	var contacts []models.ContactModel
	require.NoError(t, db.Where("org_id = ?", orgID).Order("external_id").Find(&contacts).Error)
	require.Len(t, contacts, 3)
	assert.Equal(t, "Ada Lovelace", contacts[0].DisplayName)
	assert.Equal(t, "ada@example.com", contacts[0].Email)
	assert.Equal(t, "Turing Roofing LLC", contacts[2].DisplayName)

	t.Run("rerun skips unchanged records", func(t *testing.T) {
		second, err := svc.Run(ctx, cmd)
		require.NoError(t, err)

		assert.True(t, second.OK)
		assert.Equal(t, migration.KindStats{Skipped: 3}, second.Stats[crm.KindContact])

		var count int64
		require.NoError(t, db.Model(&models.ContactModel{}).Where("org_id = ?", orgID).Count(&count).Error)
		assert.Equal(t, int64(3), count)
	})

	t.Run("runs are persisted", func(t *testing.T) {
		runs, err := svc.ListRuns(ctx, orgID, 10)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		for _, run := range runs {
			assert.Equal(t, migration.RunStatusCompleted, run.Status)
			assert.Equal(t, migration.SourceJobNimbus, run.Source)
		}

		stored, err := svc.GetRun(ctx, orgID, first.MigrationID)
		require.NoError(t, err)
		assert.Equal(t, 3, stored.Stats[crm.KindContact].Created)
	})

	t.Run("dry run against an empty org writes nothing", func(t *testing.T) {
		dry := cmd
		dry.OrgID = uuid.New()
		dry.DryRun = true

		result, err := svc.Run(ctx, dry)
		require.NoError(t, err)

		assert.Equal(t, migration.KindStats{Created: 3}, result.Stats[crm.KindContact])
		var count int64
		require.NoError(t, db.Model(&models.ContactModel{}).Where("org_id = ?", dry.OrgID).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestJobNimbusMigration_TransientFailureIsRetried(t *testing.T) {
	const apiKey = "jn-live-key"
	upstream := &fakeJobNimbus{apiKey: apiKey, records: jobNimbusFixture(), unavailable: 1}
	server := httptest.NewServer(upstream)
	defer server.Close()

	svc := newJobNimbusService(t, setupE2EDB(t), server.URL)

	result, err := svc.Run(context.Background(), StartCommand{
		OrgID:       uuid.New(),
		Source:      "jobnimbus",
		Credentials: migration.Credentials{APIKey: apiKey},
	})
	require.NoError(t, err)

	assert.True(t, result.OK)
	assert.Equal(t, 3, result.Stats[crm.KindContact].Created)
}

func TestJobNimbusMigration_RejectedCredentials(t *testing.T) {
	upstream := &fakeJobNimbus{apiKey: "the-real-key", records: jobNimbusFixture()}
	server := httptest.NewServer(upstream)
	defer server.Close()

	db := setupE2EDB(t)
	svc := newJobNimbusService(t, db, server.URL)
	orgID := uuid.New()

	result, err := svc.Run(context.Background(), StartCommand{
		OrgID:       orgID,
		Source:      "jobnimbus",
		Credentials: migration.Credentials{APIKey: "wrong-key"},
	})
	require.NoError(t, err)

	assert.False(t, result.OK)
	assert.Equal(t, migration.AbortReasonCredentialInvalid, result.AbortReason)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, migration.CodeCredential, result.Errors[0].Code)
	assert.Equal(t, 1, upstream.requests, "credential failures are not retried")

	stored, err := svc.GetRun(context.Background(), orgID, result.MigrationID)
	require.NoError(t, err)
	assert.Equal(t, migration.RunStatusAborted, stored.Status)
}
