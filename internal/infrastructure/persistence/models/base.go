package models

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel provides common persistence fields for all models.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// OrgModel provides common persistence fields for org-scoped CRM records.
// Every migrated record remembers the provider record it came from.
type OrgModel struct {
	BaseModel
	OrgID      uuid.UUID `gorm:"type:uuid;not null;index"`
	Source     string    `gorm:"type:varchar(32);not null"`
	ExternalID string    `gorm:"type:varchar(128);not null"`
	LastRunID  uuid.UUID `gorm:"type:uuid;not null"`
}

// AddressModel is the embedded column set of a postal address
type AddressModel struct {
	Street     string `gorm:"type:varchar(255)"`
	Street2    string `gorm:"type:varchar(255)"`
	City       string `gorm:"type:varchar(100)"`
	State      string `gorm:"type:varchar(50)"`
	PostalCode string `gorm:"type:varchar(20)"`
	Country    string `gorm:"type:varchar(56)"`
}
