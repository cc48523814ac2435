package provider

import (
	"encoding/json"

	"github.com/crmigrate/backend/internal/domain/crm"
)

// alListResponse is the cursor paged envelope of AccuLynx list endpoints
type alListResponse struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor string            `json:"nextCursor"`
}

type alAddress struct {
	Street1 string `json:"street1"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type alEmail struct {
	Address   string `json:"address"`
	IsPrimary bool   `json:"isPrimary"`
}

type alPhone struct {
	Number    string `json:"number"`
	Type      string `json:"type"`
	IsPrimary bool   `json:"isPrimary"`
}

type alContact struct {
	ID             json.RawMessage `json:"id"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	CompanyName    string          `json:"companyName"`
	EmailAddresses []alEmail       `json:"emailAddresses"`
	PhoneNumbers   []alPhone       `json:"phoneNumbers"`
	MailingAddress *alAddress      `json:"mailingAddress"`
	Tags           []string        `json:"tags"`
	Notes          string          `json:"notes"`
	CreatedDate    string          `json:"createdDate"`
	IsDeleted      bool            `json:"isDeleted"`
}

type alProperty struct {
	ID           json.RawMessage `json:"id"`
	Name         string          `json:"name"`
	Address      *alAddress      `json:"address"`
	PropertyType string          `json:"propertyType"`
	ContactID    json.RawMessage `json:"contactId"`
	Notes        string          `json:"notes"`
	IsDeleted    bool            `json:"isDeleted"`
}

type alClaim struct {
	ID               json.RawMessage `json:"id"`
	ClaimNumber      string          `json:"claimNumber"`
	InsuranceCarrier string          `json:"insuranceCarrier"`
	PolicyNumber     string          `json:"policyNumber"`
	Status           string          `json:"status"`
	DateOfLoss       string          `json:"dateOfLoss"`
	ApprovedAmount   json.RawMessage `json:"approvedAmount"`
	ContactID        json.RawMessage `json:"contactId"`
	PropertyID       json.RawMessage `json:"propertyId"`
	IsDeleted        bool            `json:"isDeleted"`
}

type alLead struct {
	ID             json.RawMessage `json:"id"`
	Name           string          `json:"name"`
	Status         string          `json:"status"`
	LeadSource     string          `json:"leadSource"`
	Description    string          `json:"description"`
	EstimatedValue json.RawMessage `json:"estimatedValue"`
	ContactID      json.RawMessage `json:"contactId"`
	PropertyID     json.RawMessage `json:"propertyId"`
	ClaimID        json.RawMessage `json:"claimId"`
	CreatedDate    string          `json:"createdDate"`
	IsDeleted      bool            `json:"isDeleted"`
}

func (a *alAddress) toAddress() crm.Address {
	if a == nil {
		return crm.Address{}
	}
	return crm.Address{
		Street:     cleanText(a.Street1),
		Street2:    cleanText(a.Street2),
		City:       cleanText(a.City),
		State:      normalizeState(a.State),
		PostalCode: cleanText(a.ZipCode),
		Country:    cleanText(a.Country),
	}
}

// primaryEmail picks the primary address, falling back to the first one
func primaryEmail(emails []alEmail) string {
	for _, e := range emails {
		if e.IsPrimary {
			return normalizeEmail(e.Address)
		}
	}
	if len(emails) > 0 {
		return normalizeEmail(emails[0].Address)
	}
	return ""
}

// phoneOfType returns the first number of typ, or the primary number when typ is empty
func phoneOfType(phones []alPhone, typ string) string {
	for _, p := range phones {
		if (typ == "" && p.IsPrimary) || (typ != "" && p.Type == typ) {
			return normalizePhone(p.Number)
		}
	}
	return ""
}
