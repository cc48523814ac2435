package crm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrMissingIdentity is returned when a record has none of the fields that
	// identify it to a human (name, address, claim number...).
	ErrMissingIdentity = errors.New("crm: record has no identifying fields")
	// ErrInvalidEntity wraps struct validation failures
	ErrInvalidEntity = errors.New("crm: invalid entity")
	// ErrNegativeAmount is returned for monetary fields below zero
	ErrNegativeAmount = errors.New("crm: amount cannot be negative")
	// ErrAmountOutOfRange is returned for amounts that do not fit the
	// destination columns (12 integer digits, 2 decimal places)
	ErrAmountOutOfRange = errors.New("crm: amount out of range")
)

const (
	amountIntegerDigits = 12
	amountDecimalPlaces = 2
)

// AmountFits reports whether d fits 12 integer digits and 2 decimal places.
// It only inspects the coefficient and exponent, so absurd exponents cost
// nothing.
func AmountFits(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	digits := d.NumDigits()
	exp := int(d.Exponent())
	if digits+exp > amountIntegerDigits {
		return false
	}
	scale := -exp - amountDecimalPlaces
	if scale <= 0 {
		return true
	}
	if scale >= digits {
		return false
	}
	coef := new(big.Int).Abs(d.Coefficient())
	pow := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(scale)), nil)
	return new(big.Int).Rem(coef, pow).Sign() == 0
}

func checkAmount(d *decimal.Decimal) error {
	if d == nil {
		return nil
	}
	if d.IsNegative() {
		return ErrNegativeAmount
	}
	if !AmountFits(*d) {
		return ErrAmountOutOfRange
	}
	return nil
}

// EntityKind identifies a family of records
type EntityKind string

const (
	KindContact  EntityKind = "contacts"
	KindProperty EntityKind = "properties"
	KindClaim    EntityKind = "claims"
	KindLead     EntityKind = "leads"
)

// IsValid returns true if the kind is known
func (k EntityKind) IsValid() bool {
	switch k {
	case KindContact, KindProperty, KindClaim, KindLead:
		return true
	}
	return false
}

// String returns the string representation of EntityKind
func (k EntityKind) String() string {
	return string(k)
}

// ImportOrder returns the kinds in dependency order. Kinds that are referenced
// by others come first so their identities exist when the referrers are written.
func ImportOrder() []EntityKind {
	return []EntityKind{KindContact, KindProperty, KindClaim, KindLead}
}

// Reference points at another record of the same source by external id
type Reference struct {
	Kind       EntityKind
	ExternalID string
}

// Entity is implemented by every canonical record
type Entity interface {
	Kind() EntityKind
	ExternalRef() ExternalRef
	// References lists the external records this entity links to
	References() []Reference
	Validate() error
	// Fingerprint hashes the entity content. Equal content always yields the
	// same fingerprint.
	Fingerprint() (string, error)
}

// ExternalRef records where an entity came from. OrgID is excluded from the
// fingerprint so identical upstream data hashes the same in every tenant.
type ExternalRef struct {
	OrgID      uuid.UUID `json:"-" validate:"required"`
	Source     string    `json:"source" validate:"required,max=32"`
	ExternalID string    `json:"external_id" validate:"required,max=128"`
}

// Address is a postal address value object
type Address struct {
	Street     string `json:"street,omitempty" validate:"max=255"`
	Street2    string `json:"street2,omitempty" validate:"max=255"`
	City       string `json:"city,omitempty" validate:"max=100"`
	State      string `json:"state,omitempty" validate:"max=50"`
	PostalCode string `json:"postal_code,omitempty" validate:"max=20"`
	Country    string `json:"country,omitempty" validate:"max=56"`
}

// IsZero returns true if no address field is set
func (a Address) IsZero() bool {
	return a == Address{}
}

// IsLocatable returns true if the address is precise enough to find a site
func (a Address) IsLocatable() bool {
	return a.Street != "" || (a.City != "" && a.PostalCode != "")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	return nil
}

func fingerprint(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("crm: fingerprint: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func appendRef(refs []Reference, kind EntityKind, externalID string) []Reference {
	if externalID == "" {
		return refs
	}
	return append(refs, Reference{Kind: kind, ExternalID: externalID})
}
