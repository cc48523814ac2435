package persistence

import (
	"context"
	"errors"

	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormMappingRepository implements migration.MappingRepository using GORM
type GormMappingRepository struct {
	db *gorm.DB
}

// NewGormMappingRepository creates a new GormMappingRepository
func NewGormMappingRepository(db *gorm.DB) *GormMappingRepository {
	return &GormMappingRepository{db: db}
}

// FindByKey returns the mapping of key
func (r *GormMappingRepository) FindByKey(ctx context.Context, key migration.MappingKey) (*migration.ExternalIDMapping, error) {
	model, err := findMapping(r.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func findMapping(db *gorm.DB, key migration.MappingKey) (*models.ExternalIDMappingModel, error) {
	var model models.ExternalIDMappingModel
	err := db.
		Where("org_id = ? AND source = ? AND entity_kind = ? AND external_id = ?",
			key.OrgID, string(key.Source), string(key.Kind), key.ExternalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, migration.ErrMappingNotFound
		}
		return nil, err
	}
	return &model, nil
}
