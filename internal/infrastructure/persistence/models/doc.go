// Package models holds the gorm table mappings for migration bookkeeping
// (runs, external id mappings) and the destination CRM records. Domain types
// in internal/domain never carry gorm tags; repositories translate.
package models
