package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MigrationRunModel is the persistence model for the migration run audit record
type MigrationRunModel struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key"`
	OrgID           uuid.UUID      `gorm:"type:uuid;not null;index:idx_migration_runs_org_started,priority:1"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null"`
	Source          string         `gorm:"type:varchar(32);not null"`
	DryRun          bool           `gorm:"not null;default:false"`
	Status          string         `gorm:"type:varchar(16);not null;index"`
	AbortReason     string         `gorm:"type:varchar(32)"`
	Stats           datatypes.JSON `gorm:"type:jsonb"`
	Errors          datatypes.JSON `gorm:"type:jsonb"`
	ErrorsTruncated bool           `gorm:"not null;default:false"`
	TotalErrors     int            `gorm:"not null;default:0"`
	ReportKey       string         `gorm:"type:varchar(255)"`
	StartedAt       time.Time      `gorm:"not null;index:idx_migration_runs_org_started,priority:2,sort:desc"`
	CompletedAt     *time.Time
	DurationMs      int64 `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (MigrationRunModel) TableName() string {
	return "migration_runs"
}

// MigrationRunModelFromDomain creates a persistence model from a run
func MigrationRunModelFromDomain(r *migration.Run) (*MigrationRunModel, error) {
	stats, err := json.Marshal(r.Stats)
	if err != nil {
		return nil, fmt.Errorf("marshal stats: %w", err)
	}
	errs := r.Errors
	if errs == nil {
		errs = []migration.MigrationError{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("marshal errors: %w", err)
	}
	return &MigrationRunModel{
		ID:              r.ID,
		OrgID:           r.OrgID,
		UserID:          r.UserID,
		Source:          string(r.Source),
		DryRun:          r.DryRun,
		Status:          string(r.Status),
		AbortReason:     string(r.AbortReason),
		Stats:           datatypes.JSON(stats),
		Errors:          datatypes.JSON(errsJSON),
		ErrorsTruncated: r.ErrorsTruncated,
		TotalErrors:     r.TotalErrors,
		ReportKey:       r.ReportKey,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		DurationMs:      r.DurationMs,
	}, nil
}

// ToDomain converts the model to a run
func (m *MigrationRunModel) ToDomain() (*migration.Run, error) {
	stats := migration.NewStats()
	if len(m.Stats) > 0 {
		if err := json.Unmarshal(m.Stats, &stats); err != nil {
			return nil, fmt.Errorf("unmarshal stats: %w", err)
		}
	}
	var errs []migration.MigrationError
	if len(m.Errors) > 0 {
		if err := json.Unmarshal(m.Errors, &errs); err != nil {
			return nil, fmt.Errorf("unmarshal errors: %w", err)
		}
	}
	return &migration.Run{
		ID:              m.ID,
		OrgID:           m.OrgID,
		UserID:          m.UserID,
		Source:          migration.Source(m.Source),
		DryRun:          m.DryRun,
		Status:          migration.RunStatus(m.Status),
		AbortReason:     migration.AbortReason(m.AbortReason),
		Stats:           stats,
		Errors:          errs,
		ErrorsTruncated: m.ErrorsTruncated,
		TotalErrors:     m.TotalErrors,
		ReportKey:       m.ReportKey,
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
		DurationMs:      m.DurationMs,
	}, nil
}

// ExternalIDMappingModel is the persistence model for external id mappings.
// The unique key guarantees at most one internal record per provider record.
type ExternalIDMappingModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	OrgID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_external_id_mappings_key,priority:1"`
	Source      string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_external_id_mappings_key,priority:2"`
	EntityKind  string    `gorm:"type:varchar(32);not null;uniqueIndex:uq_external_id_mappings_key,priority:3"`
	ExternalID  string    `gorm:"type:varchar(128);not null;uniqueIndex:uq_external_id_mappings_key,priority:4"`
	InternalID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Fingerprint string    `gorm:"type:varchar(64);not null"`
	FirstRunID  uuid.UUID `gorm:"type:uuid;not null"`
	LastRunID   uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ExternalIDMappingModel) TableName() string {
	return "external_id_mappings"
}

// ToDomain converts the model to a mapping
func (m *ExternalIDMappingModel) ToDomain() *migration.ExternalIDMapping {
	return &migration.ExternalIDMapping{
		Key: migration.MappingKey{
			OrgID:      m.OrgID,
			Source:     migration.Source(m.Source),
			Kind:       crm.EntityKind(m.EntityKind),
			ExternalID: m.ExternalID,
		},
		InternalID:  m.InternalID,
		Fingerprint: m.Fingerprint,
		FirstRunID:  m.FirstRunID,
		LastRunID:   m.LastRunID,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
