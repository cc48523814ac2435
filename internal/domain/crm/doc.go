// Package crm contains the canonical, provider-independent business records
// that a migration writes into the destination store.
//
// Key concepts:
//   - Entity: common behaviour of Contact, Property, Lead and Claim
//   - EntityKind: the record family, which also fixes the import order
//   - Fingerprint: stable content hash used to tell updates from re-imports
//
// Entities are plain values produced by provider mappers. They carry the
// originating source and external id but never an internal identity; that is
// assigned by the migration engine.
package crm
