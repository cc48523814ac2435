package crm

// Property is a physical site where work is performed
type Property struct {
	Ref               ExternalRef `json:"ref"`
	Name              string      `json:"name,omitempty" validate:"max=200"`
	Address           Address     `json:"address"`
	PropertyType      string      `json:"property_type,omitempty" validate:"max=50"`
	ContactExternalID string      `json:"contact_external_id,omitempty" validate:"max=128"`
	Notes             string      `json:"notes,omitempty"`
}

// Kind returns KindProperty
func (p *Property) Kind() EntityKind { return KindProperty }

// ExternalRef returns where the property came from
func (p *Property) ExternalRef() ExternalRef { return p.Ref }

// References returns the owning contact when one is linked
func (p *Property) References() []Reference {
	return appendRef(nil, KindContact, p.ContactExternalID)
}

// Validate checks that the property can be located
func (p *Property) Validate() error {
	if !p.Address.IsLocatable() {
		return ErrMissingIdentity
	}
	return validateStruct(p)
}

// Fingerprint returns the content hash of the property
func (p *Property) Fingerprint() (string, error) {
	return fingerprint(p)
}
