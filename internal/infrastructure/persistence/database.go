package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/crmigrate/backend/internal/infrastructure/config"
	"github.com/crmigrate/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the destination store connection pool.
type Database struct {
	DB *gorm.DB
}

// Open connects to PostgreSQL, sizes the pool from cfg and verifies the
// connection before returning.
func Open(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	d := &Database{DB: db}
	sqlDB, err := d.sqlDB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return d, nil
}

// Models lists every table this service owns.
func Models() []any {
	return []any{
		&models.MigrationRunModel{},
		&models.ExternalIDMappingModel{},
		&models.ContactModel{},
		&models.PropertyModel{},
		&models.ClaimModel{},
		&models.LeadModel{},
	}
}

// AutoMigrate creates the schema from the models. Production schemas are
// managed by the SQL migrations; this is for tests and local development.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

func (d *Database) sqlDB() (*sql.DB, error) {
	raw, err := d.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return raw, nil
}

// Close releases the pool.
func (d *Database) Close() error {
	sqlDB, err := d.sqlDB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health is the destination store's state as reported by the health endpoints.
type Health struct {
	Reachable   bool  `json:"reachable"`
	OpenConns   int   `json:"open_connections"`
	InUse       int   `json:"in_use"`
	Idle        int   `json:"idle"`
	WaitCount   int64 `json:"wait_count"`
	WaitMillis  int64 `json:"wait_duration_ms"`
	MaxOpenConn int   `json:"max_open_connections"`
}

// Check pings the database within ctx and snapshots the pool. A failed ping
// is returned as the error alongside the pool figures.
func (d *Database) Check(ctx context.Context) (Health, error) {
	sqlDB, err := d.sqlDB()
	if err != nil {
		return Health{}, err
	}
	pingErr := sqlDB.PingContext(ctx)
	s := sqlDB.Stats()
	return Health{
		Reachable:   pingErr == nil,
		OpenConns:   s.OpenConnections,
		InUse:       s.InUse,
		Idle:        s.Idle,
		WaitCount:   s.WaitCount,
		WaitMillis:  s.WaitDuration.Milliseconds(),
		MaxOpenConn: s.MaxOpenConnections,
	}, pingErr
}
