package migration

import (
	"github.com/crmigrate/backend/internal/domain/crm"
)

// Outcome is the result of processing one record
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// KindStats counts outcomes for one entity kind
type KindStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Processed returns the number of records seen
func (s KindStats) Processed() int {
	return s.Created + s.Updated + s.Skipped + s.Failed
}

// Stats holds per-kind counters. Counters are authoritative even when the
// error list is truncated.
type Stats map[crm.EntityKind]KindStats

// NewStats returns stats with a zero entry for every importable kind
func NewStats() Stats {
	s := make(Stats, len(crm.ImportOrder()))
	for _, kind := range crm.ImportOrder() {
		s[kind] = KindStats{}
	}
	return s
}

// Record increments the counter for outcome
func (s Stats) Record(kind crm.EntityKind, outcome Outcome) {
	ks := s[kind]
	switch outcome {
	case OutcomeCreated:
		ks.Created++
	case OutcomeUpdated:
		ks.Updated++
	case OutcomeSkipped:
		ks.Skipped++
	case OutcomeFailed:
		ks.Failed++
	}
	s[kind] = ks
}

// Totals sums all kinds
func (s Stats) Totals() KindStats {
	var t KindStats
	for _, ks := range s {
		t.Created += ks.Created
		t.Updated += ks.Updated
		t.Skipped += ks.Skipped
		t.Failed += ks.Failed
	}
	return t
}

// Clone returns an independent copy
func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
