package migration

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the persisted status of a migration run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// IsValid returns true if the status is known
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusAborted:
		return true
	}
	return false
}

// IsTerminal returns true once the run can no longer change
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusAborted
}

// AbortReason explains why a run stopped early
type AbortReason string

const (
	AbortReasonNone              AbortReason = ""
	AbortReasonCredentialInvalid AbortReason = "credential_invalid"
	AbortReasonRetryBudget       AbortReason = "retry_budget_exhausted"
	AbortReasonProviderError     AbortReason = "provider_error"
	AbortReasonTimeout           AbortReason = "timeout"
	AbortReasonCancelled         AbortReason = "cancelled"
	AbortReasonInternal          AbortReason = "internal_error"
)

// AbortReasonFor maps a fatal error to the reason recorded on the run
func AbortReasonFor(err error) AbortReason {
	switch CodeOf(err) {
	case CodeCredential:
		return AbortReasonCredentialInvalid
	case CodeRetryBudgetExceeded:
		return AbortReasonRetryBudget
	case CodeProviderRequest, CodePaginationStalled:
		return AbortReasonProviderError
	case CodeTimeout:
		return AbortReasonTimeout
	case CodeCancelled:
		return AbortReasonCancelled
	}
	return AbortReasonInternal
}

// Run is the audit record of one migration attempt. It never holds credentials.
type Run struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	UserID          uuid.UUID
	Source          Source
	DryRun          bool
	Status          RunStatus
	AbortReason     AbortReason
	Stats           Stats
	Errors          []MigrationError
	ErrorsTruncated bool
	TotalErrors     int
	ReportKey       string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationMs      int64
}

// NewRun creates a running migration run
func NewRun(orgID, userID uuid.UUID, source Source, dryRun bool, now time.Time) (*Run, error) {
	if orgID == uuid.Nil {
		return nil, errors.New("migration: org id cannot be empty")
	}
	if !source.IsValid() {
		return nil, ErrUnknownSource
	}
	return &Run{
		ID:        uuid.New(),
		OrgID:     orgID,
		UserID:    userID,
		Source:    source,
		DryRun:    dryRun,
		Status:    RunStatusRunning,
		Stats:     NewStats(),
		StartedAt: now,
	}, nil
}

// Complete finalizes the run successfully
func (r *Run) Complete(stats Stats, errs *ErrorCollector, now time.Time) error {
	return r.finalize(RunStatusCompleted, AbortReasonNone, stats, errs, now)
}

// Abort finalizes the run as aborted, keeping the partial stats
func (r *Run) Abort(reason AbortReason, stats Stats, errs *ErrorCollector, now time.Time) error {
	if reason == AbortReasonNone {
		reason = AbortReasonInternal
	}
	return r.finalize(RunStatusAborted, reason, stats, errs, now)
}

func (r *Run) finalize(status RunStatus, reason AbortReason, stats Stats, errs *ErrorCollector, now time.Time) error {
	if r.Status.IsTerminal() {
		return ErrRunAlreadyFinalized
	}
	r.Status = status
	r.AbortReason = reason
	r.Stats = stats.Clone()
	if errs != nil {
		r.Errors = errs.Errors()
		r.ErrorsTruncated = errs.IsTruncated()
		r.TotalErrors = errs.Total()
	}
	r.CompletedAt = &now
	r.DurationMs = now.Sub(r.StartedAt).Milliseconds()
	return nil
}

// Succeeded returns true if the run completed without aborting
func (r *Run) Succeeded() bool {
	return r.Status == RunStatusCompleted
}
