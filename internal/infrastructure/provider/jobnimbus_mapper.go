package provider

import (
	"encoding/json"
	"fmt"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
)

func mappingError(ref crm.ExternalRef, kind crm.EntityKind, field string, err error) error {
	return &migration.RecordMappingError{Kind: kind, ExternalID: ref.ExternalID, Field: field, Err: err}
}

func decodeRecord(ref crm.ExternalRef, kind crm.EntityKind, payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return mappingError(ref, kind, "", fmt.Errorf("%w: %v", migration.ErrMalformedRecord, err))
	}
	return nil
}

func (a jnAddress) toAddress() crm.Address {
	return crm.Address{
		Street:     cleanText(a.AddressLine1),
		Street2:    cleanText(a.AddressLine2),
		City:       cleanText(a.City),
		State:      normalizeState(a.StateText),
		PostalCode: cleanText(a.Zip),
		Country:    cleanText(a.CountryName),
	}
}

func mapJobNimbusContact(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in jnContact
	if err := decodeRecord(ref, crm.KindContact, payload, &in); err != nil {
		return nil, err
	}
	if inactive(in.IsActive) {
		return nil, nil
	}

	first, last, company := cleanText(in.FirstName), cleanText(in.LastName), cleanText(in.Company)
	display := cleanText(in.DisplayName)
	if display == "" {
		display = crm.ComposeDisplayName(first, last, company)
	}
	if display == "" {
		return nil, mappingError(ref, crm.KindContact, "display_name", crm.ErrMissingIdentity)
	}

	phone := normalizePhone(in.HomePhone)
	if phone == "" {
		phone = normalizePhone(in.WorkPhone)
	}
	return &crm.Contact{
		Ref:             ref,
		FirstName:       first,
		LastName:        last,
		DisplayName:     display,
		Company:         company,
		Email:           normalizeEmail(in.Email),
		Phone:           phone,
		MobilePhone:     normalizePhone(in.MobilePhone),
		Address:         in.jnAddress.toAddress(),
		Tags:            cleanTags(in.Tags),
		Notes:           cleanText(in.Description),
		SourceCreatedAt: unixTime(in.DateCreated),
	}, nil
}

func mapJobNimbusProperty(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in jnProperty
	if err := decodeRecord(ref, crm.KindProperty, payload, &in); err != nil {
		return nil, err
	}
	if inactive(in.IsActive) {
		return nil, nil
	}

	addr := in.jnAddress.toAddress()
	if !addr.IsLocatable() {
		return nil, mappingError(ref, crm.KindProperty, "address_line1", crm.ErrMissingIdentity)
	}
	return &crm.Property{
		Ref:               ref,
		Name:              cleanText(in.Name),
		Address:           addr,
		PropertyType:      cleanText(in.RecordTypeName),
		ContactExternalID: in.Primary.id(),
		Notes:             cleanText(in.Description),
	}, nil
}

func mapJobNimbusClaim(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in jnClaim
	if err := decodeRecord(ref, crm.KindClaim, payload, &in); err != nil {
		return nil, err
	}
	if inactive(in.IsActive) {
		return nil, nil
	}

	number := cleanText(in.ClaimNumber)
	if number == "" {
		return nil, mappingError(ref, crm.KindClaim, "claim_number", crm.ErrMissingIdentity)
	}
	amount, err := parseAmount(in.ApprovedAmount)
	if err != nil {
		return nil, mappingError(ref, crm.KindClaim, "approved_amount", err)
	}
	return &crm.Claim{
		Ref:                ref,
		ClaimNumber:        number,
		InsuranceCompany:   cleanText(in.InsuranceCompany),
		PolicyNumber:       cleanText(in.PolicyNumber),
		Status:             cleanText(in.StatusName),
		DateOfLoss:         unixTime(in.DateOfLoss),
		ApprovedAmount:     amount,
		ContactExternalID:  in.Primary.id(),
		PropertyExternalID: relatedID(in.Related, "property"),
	}, nil
}

func mapJobNimbusLead(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in jnLead
	if err := decodeRecord(ref, crm.KindLead, payload, &in); err != nil {
		return nil, err
	}
	if inactive(in.IsActive) {
		return nil, nil
	}

	name := cleanText(in.Name)
	contactID := in.Primary.id()
	if name == "" && contactID == "" {
		return nil, mappingError(ref, crm.KindLead, "name", crm.ErrMissingIdentity)
	}
	value, err := parseAmount(in.ApprovedEstimateTotal)
	if err != nil {
		return nil, mappingError(ref, crm.KindLead, "approved_estimate_total", err)
	}
	return &crm.Lead{
		Ref:                ref,
		Name:               name,
		Status:             cleanText(in.StatusName),
		LeadSource:         cleanText(in.SourceName),
		Description:        cleanText(in.Description),
		EstimatedValue:     value,
		ContactExternalID:  contactID,
		PropertyExternalID: relatedID(in.Related, "property"),
		ClaimExternalID:    relatedID(in.Related, "claim"),
		SourceCreatedAt:    unixTime(in.DateCreated),
	}, nil
}
