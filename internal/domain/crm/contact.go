package crm

import (
	"time"
)

// Contact is a person or company the tenant does business with
type Contact struct {
	Ref             ExternalRef `json:"ref"`
	FirstName       string      `json:"first_name,omitempty" validate:"max=100"`
	LastName        string      `json:"last_name,omitempty" validate:"max=100"`
	DisplayName     string      `json:"display_name" validate:"required,max=200"`
	Company         string      `json:"company,omitempty" validate:"max=200"`
	Email           string      `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone           string      `json:"phone,omitempty" validate:"max=32"`
	MobilePhone     string      `json:"mobile_phone,omitempty" validate:"max=32"`
	Address         Address     `json:"address"`
	Tags            []string    `json:"tags,omitempty" validate:"dive,max=64"`
	Notes           string      `json:"notes,omitempty"`
	SourceCreatedAt *time.Time  `json:"source_created_at,omitempty"`
}

// Kind returns KindContact
func (c *Contact) Kind() EntityKind { return KindContact }

// ExternalRef returns where the contact came from
func (c *Contact) ExternalRef() ExternalRef { return c.Ref }

// References returns nil, contacts do not link to other records
func (c *Contact) References() []Reference { return nil }

// Validate checks identity and field constraints
func (c *Contact) Validate() error {
	if c.DisplayName == "" && c.FirstName == "" && c.LastName == "" && c.Company == "" {
		return ErrMissingIdentity
	}
	return validateStruct(c)
}

// Fingerprint returns the content hash of the contact
func (c *Contact) Fingerprint() (string, error) {
	return fingerprint(c)
}

// ComposeDisplayName derives a display name from the name parts when the
// provider did not send one.
func ComposeDisplayName(first, last, company string) string {
	switch {
	case first != "" && last != "":
		return first + " " + last
	case first != "":
		return first
	case last != "":
		return last
	default:
		return company
	}
}
