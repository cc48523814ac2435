package models

import (
	"encoding/json"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ContactModel is the persistence model for migrated contacts
type ContactModel struct {
	OrgModel
	FirstName       string       `gorm:"type:varchar(100)"`
	LastName        string       `gorm:"type:varchar(100)"`
	DisplayName     string       `gorm:"type:varchar(200);not null"`
	Company         string       `gorm:"type:varchar(200)"`
	Email           string       `gorm:"type:varchar(254);index"`
	Phone           string       `gorm:"type:varchar(32)"`
	MobilePhone     string       `gorm:"type:varchar(32)"`
	Address         AddressModel `gorm:"embedded;embeddedPrefix:address_"`
	Tags            datatypes.JSON
	Notes           string `gorm:"type:text"`
	SourceCreatedAt *time.Time
}

// TableName returns the table name for GORM
func (ContactModel) TableName() string {
	return "crm_contacts"
}

// PropertyModel is the persistence model for migrated properties
type PropertyModel struct {
	OrgModel
	Name         string       `gorm:"type:varchar(200)"`
	Address      AddressModel `gorm:"embedded;embeddedPrefix:address_"`
	PropertyType string       `gorm:"type:varchar(50)"`
	ContactID    *uuid.UUID   `gorm:"type:uuid;index"`
	Notes        string       `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string {
	return "crm_properties"
}

// ClaimModel is the persistence model for migrated insurance claims
type ClaimModel struct {
	OrgModel
	ClaimNumber      string `gorm:"type:varchar(64);not null"`
	InsuranceCompany string `gorm:"type:varchar(200)"`
	PolicyNumber     string `gorm:"type:varchar(64)"`
	Status           string `gorm:"type:varchar(50)"`
	DateOfLoss       *time.Time
	ApprovedAmount   *decimal.Decimal `gorm:"type:decimal(14,2)"`
	ContactID        *uuid.UUID       `gorm:"type:uuid;index"`
	PropertyID       *uuid.UUID       `gorm:"type:uuid;index"`
}

// TableName returns the table name for GORM
func (ClaimModel) TableName() string {
	return "crm_claims"
}

// LeadModel is the persistence model for migrated leads
type LeadModel struct {
	OrgModel
	Name            string           `gorm:"type:varchar(200)"`
	Status          string           `gorm:"type:varchar(50)"`
	LeadSource      string           `gorm:"type:varchar(100)"`
	Description     string           `gorm:"type:text"`
	EstimatedValue  *decimal.Decimal `gorm:"type:decimal(14,2)"`
	ContactID       *uuid.UUID       `gorm:"type:uuid;index"`
	PropertyID      *uuid.UUID       `gorm:"type:uuid;index"`
	ClaimID         *uuid.UUID       `gorm:"type:uuid;index"`
	SourceCreatedAt *time.Time
}

// TableName returns the table name for GORM
func (LeadModel) TableName() string {
	return "crm_leads"
}

func orgModel(ref crm.ExternalRef, id, runID uuid.UUID, now time.Time) OrgModel {
	return OrgModel{
		BaseModel:  BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
		OrgID:      ref.OrgID,
		Source:     ref.Source,
		ExternalID: ref.ExternalID,
		LastRunID:  runID,
	}
}

func (m OrgModel) ref() crm.ExternalRef {
	return crm.ExternalRef{OrgID: m.OrgID, Source: m.Source, ExternalID: m.ExternalID}
}

func addressModel(a crm.Address) AddressModel {
	return AddressModel(a)
}

func (m AddressModel) toDomain() crm.Address {
	return crm.Address(m)
}

// ContactModelFromDomain creates a persistence model for contact stored under id
func ContactModelFromDomain(c *crm.Contact, id, runID uuid.UUID, now time.Time) (*ContactModel, error) {
	var tags datatypes.JSON
	if len(c.Tags) > 0 {
		data, err := json.Marshal(c.Tags)
		if err != nil {
			return nil, err
		}
		tags = datatypes.JSON(data)
	}
	return &ContactModel{
		OrgModel:        orgModel(c.Ref, id, runID, now),
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		DisplayName:     c.DisplayName,
		Company:         c.Company,
		Email:           c.Email,
		Phone:           c.Phone,
		MobilePhone:     c.MobilePhone,
		Address:         addressModel(c.Address),
		Tags:            tags,
		Notes:           c.Notes,
		SourceCreatedAt: c.SourceCreatedAt,
	}, nil
}

// ToDomain converts the model back to a contact
func (m *ContactModel) ToDomain() (*crm.Contact, error) {
	var tags []string
	if len(m.Tags) > 0 {
		if err := json.Unmarshal(m.Tags, &tags); err != nil {
			return nil, err
		}
	}
	return &crm.Contact{
		Ref:             m.ref(),
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		DisplayName:     m.DisplayName,
		Company:         m.Company,
		Email:           m.Email,
		Phone:           m.Phone,
		MobilePhone:     m.MobilePhone,
		Address:         m.Address.toDomain(),
		Tags:            tags,
		Notes:           m.Notes,
		SourceCreatedAt: m.SourceCreatedAt,
	}, nil
}

// PropertyModelFromDomain creates a persistence model for property stored under id
func PropertyModelFromDomain(p *crm.Property, id, runID uuid.UUID, contactID *uuid.UUID, now time.Time) *PropertyModel {
	return &PropertyModel{
		OrgModel:     orgModel(p.Ref, id, runID, now),
		Name:         p.Name,
		Address:      addressModel(p.Address),
		PropertyType: p.PropertyType,
		ContactID:    contactID,
		Notes:        p.Notes,
	}
}

// ToDomain converts the model back to a property. Links are not restored.
func (m *PropertyModel) ToDomain() *crm.Property {
	return &crm.Property{
		Ref:          m.ref(),
		Name:         m.Name,
		Address:      m.Address.toDomain(),
		PropertyType: m.PropertyType,
		Notes:        m.Notes,
	}
}

// ClaimModelFromDomain creates a persistence model for claim stored under id
func ClaimModelFromDomain(c *crm.Claim, id, runID uuid.UUID, contactID, propertyID *uuid.UUID, now time.Time) *ClaimModel {
	return &ClaimModel{
		OrgModel:         orgModel(c.Ref, id, runID, now),
		ClaimNumber:      c.ClaimNumber,
		InsuranceCompany: c.InsuranceCompany,
		PolicyNumber:     c.PolicyNumber,
		Status:           c.Status,
		DateOfLoss:       c.DateOfLoss,
		ApprovedAmount:   c.ApprovedAmount,
		ContactID:        contactID,
		PropertyID:       propertyID,
	}
}

// ToDomain converts the model back to a claim. Links are not restored.
func (m *ClaimModel) ToDomain() *crm.Claim {
	return &crm.Claim{
		Ref:              m.ref(),
		ClaimNumber:      m.ClaimNumber,
		InsuranceCompany: m.InsuranceCompany,
		PolicyNumber:     m.PolicyNumber,
		Status:           m.Status,
		DateOfLoss:       m.DateOfLoss,
		ApprovedAmount:   m.ApprovedAmount,
	}
}

// LeadModelFromDomain creates a persistence model for lead stored under id
func LeadModelFromDomain(l *crm.Lead, id, runID uuid.UUID, contactID, propertyID, claimID *uuid.UUID, now time.Time) *LeadModel {
	return &LeadModel{
		OrgModel:        orgModel(l.Ref, id, runID, now),
		Name:            l.Name,
		Status:          l.Status,
		LeadSource:      l.LeadSource,
		Description:     l.Description,
		EstimatedValue:  l.EstimatedValue,
		ContactID:       contactID,
		PropertyID:      propertyID,
		ClaimID:         claimID,
		SourceCreatedAt: l.SourceCreatedAt,
	}
}

// ToDomain converts the model back to a lead. Links are not restored.
func (m *LeadModel) ToDomain() *crm.Lead {
	return &crm.Lead{
		Ref:             m.ref(),
		Name:            m.Name,
		Status:          m.Status,
		LeadSource:      m.LeadSource,
		Description:     m.Description,
		EstimatedValue:  m.EstimatedValue,
		SourceCreatedAt: m.SourceCreatedAt,
	}
}
