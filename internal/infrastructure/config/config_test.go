package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "crmigrate", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "crmigrate", cfg.Database.DBName)
		assert.Equal(t, "disable", cfg.Database.SSLMode)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	})

	t.Run("loads migration defaults", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		m := cfg.Migration
		assert.Equal(t, 100, m.PageSize)
		assert.Equal(t, 50, m.MaxReportedErrors)
		assert.Equal(t, 10000, m.MaxArchivedErrors)
		assert.Equal(t, 10*time.Minute, m.MaxDuration)
		assert.Equal(t, 30*time.Minute, m.LockTTL)
		assert.Equal(t, "redis", m.LockBackend)
		assert.Equal(t, 5, m.RetryAttempts)
		assert.Equal(t, time.Second, m.RetryInitialDelay)
		assert.Equal(t, 30*time.Second, m.RetryMaxDelay)
		assert.Equal(t, "https://app.jobnimbus.com/api1", m.JobNimbusBaseURL)
		assert.Equal(t, "https://api.acculynx.com/api/v2", m.AccuLynxBaseURL)
		assert.False(t, cfg.Storage.Enabled)
	})

	t.Run("loads values from environment variables with CRMIGRATE prefix", func(t *testing.T) {
		t.Setenv("CRMIGRATE_APP_ENV", "testing")
		t.Setenv("CRMIGRATE_APP_PORT", "9000")
		t.Setenv("CRMIGRATE_DATABASE_HOST", "testdb.local")
		t.Setenv("CRMIGRATE_DATABASE_PORT", "5433")
		t.Setenv("CRMIGRATE_DATABASE_PASSWORD", "testpass")
		t.Setenv("CRMIGRATE_MIGRATION_PAGE_SIZE", "250")
		t.Setenv("CRMIGRATE_MIGRATION_MAX_DURATION", "2m")
		t.Setenv("CRMIGRATE_MIGRATION_LOCK_BACKEND", "memory")
		t.Setenv("CRMIGRATE_STORAGE_ENABLED", "true")
		t.Setenv("CRMIGRATE_STORAGE_BUCKET", "reports")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "testing", cfg.App.Env)
		assert.Equal(t, "9000", cfg.App.Port)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, "testpass", cfg.Database.Password)
		assert.Equal(t, 250, cfg.Migration.PageSize)
		assert.Equal(t, 2*time.Minute, cfg.Migration.MaxDuration)
		assert.Equal(t, "memory", cfg.Migration.LockBackend)
		assert.True(t, cfg.Storage.Enabled)
		assert.Equal(t, "reports", cfg.Storage.Bucket)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		t.Setenv("CRMIGRATE_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("CRMIGRATE_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("validates page size range", func(t *testing.T) {
		t.Setenv("CRMIGRATE_MIGRATION_PAGE_SIZE", "5000")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration.page_size")
	})

	t.Run("rejects unknown lock backend", func(t *testing.T) {
		t.Setenv("CRMIGRATE_MIGRATION_LOCK_BACKEND", "etcd")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration.lock_backend")
	})

	t.Run("lock ttl must outlive the run", func(t *testing.T) {
		t.Setenv("CRMIGRATE_MIGRATION_MAX_DURATION", "45m")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migration.lock_ttl")

		t.Setenv("CRMIGRATE_MIGRATION_LOCK_TTL", "50m")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 50*time.Minute, cfg.Migration.LockTTL)
	})

	t.Run("archive cap cannot be below report cap", func(t *testing.T) {
		t.Setenv("CRMIGRATE_MIGRATION_MAX_REPORTED_ERRORS", "100")
		t.Setenv("CRMIGRATE_MIGRATION_MAX_ARCHIVED_ERRORS", "10")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_archived_errors")
	})

	t.Run("storage requires a bucket when enabled", func(t *testing.T) {
		t.Setenv("CRMIGRATE_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})

	t.Run("profiling defaults to the app name and requires a server", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.Profiling.Enabled)
		assert.Equal(t, "crmigrate", cfg.Profiling.ApplicationName)
		assert.False(t, cfg.Telemetry.LogsEnabled)

		t.Setenv("CRMIGRATE_PROFILING_ENABLED", "true")
		_, err = Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "profiling.server_address")
	})

	t.Run("validates sampling ratio", func(t *testing.T) {
		t.Setenv("CRMIGRATE_TELEMETRY_SAMPLING_RATIO", "1.5")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sampling_ratio")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		t.Setenv("CRMIGRATE_APP_ENV", "production")
		t.Setenv("CRMIGRATE_DATABASE_PASSWORD", "secure-password")
		t.Setenv("CRMIGRATE_DATABASE_SSLMODE", "require")
	}

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("CRMIGRATE_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("CRMIGRATE_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("rejects in-memory lock in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("CRMIGRATE_MIGRATION_LOCK_BACKEND", "memory")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock_backend cannot be 'memory'")
	})

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "/testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}
