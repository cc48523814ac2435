package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxRunListLimit caps ListByOrg
const MaxRunListLimit = 100

// GormRunRepository implements migration.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Create inserts a running migration run
func (r *GormRunRepository) Create(ctx context.Context, run *migration.Run) error {
	model, err := models.MigrationRunModelFromDomain(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(model).Error
}

// Finalize stores the terminal state of run. Only a running row is updated,
// so a run can be finalized exactly once.
func (r *GormRunRepository) Finalize(ctx context.Context, run *migration.Run) error {
	if !run.Status.IsTerminal() {
		return fmt.Errorf("finalize run %s: status %q is not terminal", run.ID, run.Status)
	}
	model, err := models.MigrationRunModelFromDomain(run)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.MigrationRunModel{}).
		Where("id = ? AND status = ?", run.ID, string(migration.RunStatusRunning)).
		Updates(map[string]any{
			"status":           model.Status,
			"abort_reason":     model.AbortReason,
			"stats":            model.Stats,
			"errors":           model.Errors,
			"errors_truncated": model.ErrorsTruncated,
			"total_errors":     model.TotalErrors,
			"report_key":       model.ReportKey,
			"completed_at":     model.CompletedAt,
			"duration_ms":      model.DurationMs,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.MigrationRunModel{}).Where("id = ?", run.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return migration.ErrRunNotFound
		}
		return migration.ErrRunAlreadyFinalized
	}
	return nil
}

// FindByID returns the run of orgID with id
func (r *GormRunRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*migration.Run, error) {
	var model models.MigrationRunModel
	err := r.db.WithContext(ctx).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, migration.ErrRunNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// ListByOrg returns the most recent runs of orgID, newest first
func (r *GormRunRepository) ListByOrg(ctx context.Context, orgID uuid.UUID, limit int) ([]*migration.Run, error) {
	if limit <= 0 || limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}
	var rows []models.MigrationRunModel
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	runs := make([]*migration.Run, 0, len(rows))
	for i := range rows {
		run, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
