package crm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Claim is an insurance claim tied to a property and its owner
type Claim struct {
	Ref                ExternalRef      `json:"ref"`
	ClaimNumber        string           `json:"claim_number" validate:"required,max=64"`
	InsuranceCompany   string           `json:"insurance_company,omitempty" validate:"max=200"`
	PolicyNumber       string           `json:"policy_number,omitempty" validate:"max=64"`
	Status             string           `json:"status,omitempty" validate:"max=50"`
	DateOfLoss         *time.Time       `json:"date_of_loss,omitempty"`
	ApprovedAmount     *decimal.Decimal `json:"approved_amount,omitempty"`
	ContactExternalID  string           `json:"contact_external_id,omitempty" validate:"max=128"`
	PropertyExternalID string           `json:"property_external_id,omitempty" validate:"max=128"`
}

// Kind returns KindClaim
func (c *Claim) Kind() EntityKind { return KindClaim }

// ExternalRef returns where the claim came from
func (c *Claim) ExternalRef() ExternalRef { return c.Ref }

// References returns the linked contact and property
func (c *Claim) References() []Reference {
	refs := appendRef(nil, KindContact, c.ContactExternalID)
	return appendRef(refs, KindProperty, c.PropertyExternalID)
}

// Validate checks that the claim has a number and a sane amount
func (c *Claim) Validate() error {
	if c.ClaimNumber == "" {
		return ErrMissingIdentity
	}
	if err := checkAmount(c.ApprovedAmount); err != nil {
		return err
	}
	return validateStruct(c)
}

// Fingerprint returns the content hash of the claim
func (c *Claim) Fingerprint() (string, error) {
	return fingerprint(c)
}
