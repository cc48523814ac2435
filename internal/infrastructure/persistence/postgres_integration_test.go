//go:build integration

package persistence

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/infrastructure/persistence/models"
	"github.com/crmigrate/backend/internal/infrastructure/schema"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a PostgreSQL container and applies the SQL migrations
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("crmigrate_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	path := schema.FindMigrationsPath(cwd)
	require.NotEmpty(t, path, "migrations directory not found")

	migrator, err := schema.New(sqlDB, path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up())

	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	files, err := schema.ListMigrations(path)
	require.NoError(t, err)
	require.Equal(t, uint(len(files)), version)

	return db
}

func TestPostgres_RunRepository(t *testing.T) {
	db := setupPostgres(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	orgID := uuid.New()
	run := newTestRun(t, orgID, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, repo.Create(ctx, run))

	stats := migration.NewStats()
	stats.Record(crm.KindContact, migration.OutcomeCreated)
	errs := migration.NewErrorCollector(50, 100)
	errs.Record(migration.NewMigrationError(crm.KindContact, "jn-2", errors.New("bad email"), []byte(`{"email":"x"}`)))
	require.NoError(t, run.Complete(stats, errs, run.StartedAt.Add(1500*time.Millisecond)))
	require.NoError(t, repo.Finalize(ctx, run))

	got, err := repo.FindByID(ctx, orgID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, migration.RunStatusCompleted, got.Status)
	assert.Equal(t, 1, got.Stats[crm.KindContact].Created)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "jn-2", got.Errors[0].ExternalID)
	assert.Equal(t, int64(1500), got.DurationMs)

	assert.ErrorIs(t, repo.Finalize(ctx, run), migration.ErrRunAlreadyFinalized)

	_, err = repo.FindByID(ctx, uuid.New(), run.ID)
	assert.ErrorIs(t, err, migration.ErrRunNotFound)
}

func TestPostgres_RecordStore_ConcurrentCommits(t *testing.T) {
	db := setupPostgres(t)
	store := NewGormRecordStore(db)
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("same allocated id converges on one row", func(t *testing.T) {
		base := newContactWrite(t, newTestContact(orgID, "jn-1", "Jane"), uuid.New(), uuid.New(), false)

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				w := base
				w.RunID = uuid.New()
				errs[i] = store.Commit(ctx, w)
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			assert.NoError(t, err)
		}
		var mappings, rows int64
		require.NoError(t, db.Model(&models.ExternalIDMappingModel{}).Where("org_id = ?", orgID).Count(&mappings).Error)
		require.NoError(t, db.Model(&models.ContactModel{}).Where("org_id = ?", orgID).Count(&rows).Error)
		assert.Equal(t, int64(1), mappings)
		assert.Equal(t, int64(1), rows)
	})

	t.Run("different id loses with a write conflict", func(t *testing.T) {
		contact := newTestContact(orgID, "jn-1", "Jane")

		err := store.Commit(ctx, newContactWrite(t, contact, uuid.New(), uuid.New(), false))

		var conflict *migration.WriteConflictError
		require.ErrorAs(t, err, &conflict)
		var rows int64
		require.NoError(t, db.Model(&models.ContactModel{}).Where("org_id = ?", orgID).Count(&rows).Error)
		assert.Equal(t, int64(1), rows, "the losing write leaves nothing behind")
	})
}

func TestPostgres_SchemaRollback(t *testing.T) {
	db := setupPostgres(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	migrator, err := schema.New(sqlDB, schema.FindMigrationsPath(cwd), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, migrator.Down(0))
	version, _, err := migrator.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, db.Migrator().HasTable("migration_runs"))

	require.NoError(t, migrator.Up())
	assert.True(t, db.Migrator().HasTable("migration_runs"))
}
