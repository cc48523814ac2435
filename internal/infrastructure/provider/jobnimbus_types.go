package provider

import (
	"encoding/json"
)

// jnListResponse is the envelope of every JobNimbus list endpoint
type jnListResponse struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

// jnRef is a link to another JobNimbus record
type jnRef struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// jnAddress is the flattened address JobNimbus puts on contacts and properties
type jnAddress struct {
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2"`
	City         string `json:"city"`
	StateText    string `json:"state_text"`
	Zip          string `json:"zip"`
	CountryName  string `json:"country_name"`
}

type jnContact struct {
	JNID        string   `json:"jnid"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	DisplayName string   `json:"display_name"`
	Company     string   `json:"company"`
	Email       string   `json:"email"`
	HomePhone   string   `json:"home_phone"`
	WorkPhone   string   `json:"work_phone"`
	MobilePhone string   `json:"mobile_phone"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	IsActive    *bool    `json:"is_active"`
	DateCreated int64    `json:"date_created"`
	jnAddress
}

type jnProperty struct {
	JNID           string `json:"jnid"`
	Name           string `json:"name"`
	RecordTypeName string `json:"record_type_name"`
	Description    string `json:"description"`
	Primary        *jnRef `json:"primary"`
	IsActive       *bool  `json:"is_active"`
	jnAddress
}

type jnClaim struct {
	JNID             string          `json:"jnid"`
	ClaimNumber      string          `json:"claim_number"`
	InsuranceCompany string          `json:"insurance_company"`
	PolicyNumber     string          `json:"policy_number"`
	StatusName       string          `json:"status_name"`
	DateOfLoss       int64           `json:"date_of_loss"`
	ApprovedAmount   json.RawMessage `json:"approved_amount"`
	Primary          *jnRef          `json:"primary"`
	Related          []jnRef         `json:"related"`
	IsActive         *bool           `json:"is_active"`
}

type jnLead struct {
	JNID                  string          `json:"jnid"`
	Name                  string          `json:"name"`
	StatusName            string          `json:"status_name"`
	SourceName            string          `json:"source_name"`
	Description           string          `json:"description"`
	ApprovedEstimateTotal json.RawMessage `json:"approved_estimate_total"`
	Primary               *jnRef          `json:"primary"`
	Related               []jnRef         `json:"related"`
	DateCreated           int64           `json:"date_created"`
	IsActive              *bool           `json:"is_active"`
}

func (r *jnRef) id() string {
	if r == nil {
		return ""
	}
	return cleanText(r.ID)
}

// relatedID returns the first related record of type typ
func relatedID(related []jnRef, typ string) string {
	for _, r := range related {
		if r.Type == typ {
			return cleanText(r.ID)
		}
	}
	return ""
}

func inactive(flag *bool) bool {
	return flag != nil && !*flag
}
