package crm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lead is a sales opportunity or job in progress
type Lead struct {
	Ref                ExternalRef      `json:"ref"`
	Name               string           `json:"name,omitempty" validate:"max=200"`
	Status             string           `json:"status,omitempty" validate:"max=50"`
	LeadSource         string           `json:"lead_source,omitempty" validate:"max=100"`
	Description        string           `json:"description,omitempty"`
	EstimatedValue     *decimal.Decimal `json:"estimated_value,omitempty"`
	ContactExternalID  string           `json:"contact_external_id,omitempty" validate:"max=128"`
	PropertyExternalID string           `json:"property_external_id,omitempty" validate:"max=128"`
	ClaimExternalID    string           `json:"claim_external_id,omitempty" validate:"max=128"`
	SourceCreatedAt    *time.Time       `json:"source_created_at,omitempty"`
}

// Kind returns KindLead
func (l *Lead) Kind() EntityKind { return KindLead }

// ExternalRef returns where the lead came from
func (l *Lead) ExternalRef() ExternalRef { return l.Ref }

// References returns every linked record
func (l *Lead) References() []Reference {
	refs := appendRef(nil, KindContact, l.ContactExternalID)
	refs = appendRef(refs, KindProperty, l.PropertyExternalID)
	return appendRef(refs, KindClaim, l.ClaimExternalID)
}

// Validate requires either a name or a linked contact
func (l *Lead) Validate() error {
	if l.Name == "" && l.ContactExternalID == "" {
		return ErrMissingIdentity
	}
	if err := checkAmount(l.EstimatedValue); err != nil {
		return err
	}
	return validateStruct(l)
}

// Fingerprint returns the content hash of the lead
func (l *Lead) Fingerprint() (string, error) {
	return fingerprint(l)
}
