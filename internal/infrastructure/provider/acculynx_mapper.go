package provider

import (
	"github.com/crmigrate/backend/internal/domain/crm"
)

func mapAccuLynxContact(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in alContact
	if err := decodeRecord(ref, crm.KindContact, payload, &in); err != nil {
		return nil, err
	}
	if in.IsDeleted {
		return nil, nil
	}

	first, last, company := cleanText(in.FirstName), cleanText(in.LastName), cleanText(in.CompanyName)
	display := crm.ComposeDisplayName(first, last, company)
	if display == "" {
		return nil, mappingError(ref, crm.KindContact, "firstName", crm.ErrMissingIdentity)
	}
	created, err := parseTimestamp(in.CreatedDate)
	if err != nil {
		return nil, mappingError(ref, crm.KindContact, "createdDate", err)
	}

	phone := phoneOfType(in.PhoneNumbers, "")
	if phone == "" {
		phone = phoneOfType(in.PhoneNumbers, "home")
	}
	return &crm.Contact{
		Ref:             ref,
		FirstName:       first,
		LastName:        last,
		DisplayName:     display,
		Company:         company,
		Email:           primaryEmail(in.EmailAddresses),
		Phone:           phone,
		MobilePhone:     phoneOfType(in.PhoneNumbers, "mobile"),
		Address:         in.MailingAddress.toAddress(),
		Tags:            cleanTags(in.Tags),
		Notes:           cleanText(in.Notes),
		SourceCreatedAt: created,
	}, nil
}

func mapAccuLynxProperty(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in alProperty
	if err := decodeRecord(ref, crm.KindProperty, payload, &in); err != nil {
		return nil, err
	}
	if in.IsDeleted {
		return nil, nil
	}

	addr := in.Address.toAddress()
	if !addr.IsLocatable() {
		return nil, mappingError(ref, crm.KindProperty, "address", crm.ErrMissingIdentity)
	}
	return &crm.Property{
		Ref:               ref,
		Name:              cleanText(in.Name),
		Address:           addr,
		PropertyType:      cleanText(in.PropertyType),
		ContactExternalID: rawID(in.ContactID),
		Notes:             cleanText(in.Notes),
	}, nil
}

func mapAccuLynxClaim(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in alClaim
	if err := decodeRecord(ref, crm.KindClaim, payload, &in); err != nil {
		return nil, err
	}
	if in.IsDeleted {
		return nil, nil
	}

	number := cleanText(in.ClaimNumber)
	if number == "" {
		return nil, mappingError(ref, crm.KindClaim, "claimNumber", crm.ErrMissingIdentity)
	}
	lossDate, err := parseTimestamp(in.DateOfLoss)
	if err != nil {
		return nil, mappingError(ref, crm.KindClaim, "dateOfLoss", err)
	}
	amount, err := parseAmount(in.ApprovedAmount)
	if err != nil {
		return nil, mappingError(ref, crm.KindClaim, "approvedAmount", err)
	}
	return &crm.Claim{
		Ref:                ref,
		ClaimNumber:        number,
		InsuranceCompany:   cleanText(in.InsuranceCarrier),
		PolicyNumber:       cleanText(in.PolicyNumber),
		Status:             cleanText(in.Status),
		DateOfLoss:         lossDate,
		ApprovedAmount:     amount,
		ContactExternalID:  rawID(in.ContactID),
		PropertyExternalID: rawID(in.PropertyID),
	}, nil
}

func mapAccuLynxLead(ref crm.ExternalRef, payload []byte) (crm.Entity, error) {
	var in alLead
	if err := decodeRecord(ref, crm.KindLead, payload, &in); err != nil {
		return nil, err
	}
	if in.IsDeleted {
		return nil, nil
	}

	name := cleanText(in.Name)
	contactID := rawID(in.ContactID)
	if name == "" && contactID == "" {
		return nil, mappingError(ref, crm.KindLead, "name", crm.ErrMissingIdentity)
	}
	value, err := parseAmount(in.EstimatedValue)
	if err != nil {
		return nil, mappingError(ref, crm.KindLead, "estimatedValue", err)
	}
	created, err := parseTimestamp(in.CreatedDate)
	if err != nil {
		return nil, mappingError(ref, crm.KindLead, "createdDate", err)
	}
	return &crm.Lead{
		Ref:                ref,
		Name:               name,
		Status:             cleanText(in.Status),
		LeadSource:         cleanText(in.LeadSource),
		Description:        cleanText(in.Description),
		EstimatedValue:     value,
		ContactExternalID:  contactID,
		PropertyExternalID: rawID(in.PropertyID),
		ClaimExternalID:    rawID(in.ClaimID),
		SourceCreatedAt:    created,
	}, nil
}
