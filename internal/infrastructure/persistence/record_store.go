package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	mappingKeyColumns = []clause.Column{
		{Name: "org_id"}, {Name: "source"}, {Name: "entity_kind"}, {Name: "external_id"},
	}

	addressColumns = []string{
		"address_street", "address_street2", "address_city",
		"address_state", "address_postal_code", "address_country",
	}

	contactUpdateColumns = append([]string{
		"updated_at", "last_run_id", "first_name", "last_name", "display_name", "company",
		"email", "phone", "mobile_phone", "tags", "notes", "source_created_at",
	}, addressColumns...)

	propertyUpdateColumns = append([]string{
		"updated_at", "last_run_id", "name", "property_type", "contact_id", "notes",
	}, addressColumns...)

	claimUpdateColumns = []string{
		"updated_at", "last_run_id", "claim_number", "insurance_company", "policy_number",
		"status", "date_of_loss", "approved_amount", "contact_id", "property_id",
	}

	leadUpdateColumns = []string{
		"updated_at", "last_run_id", "name", "status", "lead_source", "description",
		"estimated_value", "contact_id", "property_id", "claim_id", "source_created_at",
	}
)

// GormRecordStore implements migration.RecordStore using GORM.
// Each Commit runs in its own transaction.
type GormRecordStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRecordStore creates a new GormRecordStore
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Commit writes the mapping and the entity row of w atomically
func (s *GormRecordStore) Commit(ctx context.Context, w migration.RecordWrite) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := claimMapping(tx, w, now); err != nil {
			return err
		}
		if err := upsertEntity(tx, w, now); err != nil {
			return err
		}
		return tx.Model(&models.ExternalIDMappingModel{}).
			Where("org_id = ? AND source = ? AND entity_kind = ? AND external_id = ?",
				w.Key.OrgID, string(w.Key.Source), string(w.Key.Kind), w.Key.ExternalID).
			Updates(map[string]any{
				"fingerprint": w.Fingerprint,
				"last_run_id": w.RunID,
				"updated_at":  now,
			}).Error
	})
}

// claimMapping inserts the mapping of w unless one exists. An existing
// mapping must point at the internal id w was resolved to.
func claimMapping(tx *gorm.DB, w migration.RecordWrite, now time.Time) error {
	model := &models.ExternalIDMappingModel{
		ID:          uuid.New(),
		OrgID:       w.Key.OrgID,
		Source:      string(w.Key.Source),
		EntityKind:  string(w.Key.Kind),
		ExternalID:  w.Key.ExternalID,
		InternalID:  w.InternalID,
		Fingerprint: w.Fingerprint,
		FirstRunID:  w.RunID,
		LastRunID:   w.RunID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	result := tx.Clauses(clause.OnConflict{Columns: mappingKeyColumns, DoNothing: true}).Create(model)
	if result.Error != nil {
		return fmt.Errorf("insert mapping %s: %w", w.Key, result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	stored, err := findMapping(tx, w.Key)
	if err != nil {
		return fmt.Errorf("read mapping %s: %w", w.Key, err)
	}
	if stored.InternalID != w.InternalID {
		return &migration.WriteConflictError{
			Key:       w.Key,
			Allocated: w.InternalID,
			Stored:    stored.InternalID,
		}
	}
	return nil
}

func upsertEntity(tx *gorm.DB, w migration.RecordWrite, now time.Time) error {
	var (
		model   any
		columns []string
	)
	switch e := w.Entity.(type) {
	case *crm.Contact:
		m, err := models.ContactModelFromDomain(e, w.InternalID, w.RunID, now)
		if err != nil {
			return err
		}
		model, columns = m, contactUpdateColumns
	case *crm.Property:
		model = models.PropertyModelFromDomain(e, w.InternalID, w.RunID, w.Links.Get(crm.KindContact), now)
		columns = propertyUpdateColumns
	case *crm.Claim:
		model = models.ClaimModelFromDomain(e, w.InternalID, w.RunID,
			w.Links.Get(crm.KindContact), w.Links.Get(crm.KindProperty), now)
		columns = claimUpdateColumns
	case *crm.Lead:
		model = models.LeadModelFromDomain(e, w.InternalID, w.RunID,
			w.Links.Get(crm.KindContact), w.Links.Get(crm.KindProperty), w.Links.Get(crm.KindClaim), now)
		columns = leadUpdateColumns
	default:
		return fmt.Errorf("%w: %T", migration.ErrUnsupportedKind, w.Entity)
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", w.Key.Kind, w.InternalID, err)
	}
	return nil
}
