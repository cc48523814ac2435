package migration

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/google/uuid"
)

var (
	ErrUnknownSource         = errors.New("migration: unknown source")
	ErrMissingAPIKey         = errors.New("migration: api key is required")
	ErrInvalidBaseURL        = errors.New("migration: invalid base url")
	ErrMigrationInProgress   = errors.New("migration: another migration is in progress for this org")
	ErrRetryBudgetExhausted  = errors.New("migration: provider retry budget exhausted")
	ErrProviderRequestFailed = errors.New("migration: provider request failed")
	ErrPaginationStalled     = errors.New("migration: provider pagination did not advance")
	ErrMalformedRecord       = errors.New("migration: malformed provider record")
	ErrUnsupportedKind       = errors.New("migration: entity kind not supported by provider")
	ErrRunAlreadyFinalized   = errors.New("migration: run already finalized")
	ErrRunNotFound           = errors.New("migration: run not found")
	ErrMappingNotFound       = errors.New("migration: external id mapping not found")
	ErrInvalidTransition     = errors.New("migration: invalid state transition")
)

// CredentialError is returned when the provider rejects the supplied key.
// It is fatal to the run and never retried.
type CredentialError struct {
	Source     Source
	StatusCode int
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("migration: %s rejected credentials (status %d)", e.Source, e.StatusCode)
}

// TransientProviderError is a rate limit, server or network failure that
// may succeed when retried.
type TransientProviderError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("migration: transient provider error: %v", e.Err)
	}
	return fmt.Sprintf("migration: transient provider error (status %d)", e.StatusCode)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// RecordMappingError is returned by mappers for records that cannot become
// canonical entities. It only fails the record.
type RecordMappingError struct {
	Kind       crm.EntityKind
	ExternalID string
	Field      string
	Err        error
}

func (e *RecordMappingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("migration: map %s %q: field %s: %v", e.Kind, e.ExternalID, e.Field, e.Err)
	}
	return fmt.Sprintf("migration: map %s %q: %v", e.Kind, e.ExternalID, e.Err)
}

func (e *RecordMappingError) Unwrap() error { return e.Err }

// WriteConflictError is returned when a concurrent writer created the mapping
// for the same key with a different internal id.
type WriteConflictError struct {
	Key       MappingKey
	Allocated uuid.UUID
	Stored    uuid.UUID
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("migration: write conflict on %s: allocated %s, stored %s", e.Key, e.Allocated, e.Stored)
}

// TimeoutError is returned when a run exceeds its wall-clock budget
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("migration: run exceeded time limit of %s", e.Limit)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IsFatal reports whether err must abort the whole run
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var credErr *CredentialError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &credErr), errors.As(err, &timeoutErr):
		return true
	case errors.Is(err, ErrRetryBudgetExhausted),
		errors.Is(err, ErrProviderRequestFailed),
		errors.Is(err, ErrPaginationStalled),
		errors.Is(err, ErrUnsupportedKind),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return true
	}
	return false
}

// ErrorCode classifies a MigrationError for callers
type ErrorCode string

const (
	CodeCredential          ErrorCode = "CREDENTIAL_ERROR"
	CodeRetryBudgetExceeded ErrorCode = "RETRY_BUDGET_EXHAUSTED"
	CodeProviderRequest     ErrorCode = "PROVIDER_REQUEST_FAILED"
	CodePaginationStalled   ErrorCode = "PAGINATION_STALLED"
	CodeMalformedRecord     ErrorCode = "MALFORMED_RECORD"
	CodeMapping             ErrorCode = "MAPPING_ERROR"
	CodeValidation          ErrorCode = "VALIDATION_ERROR"
	CodeWriteConflict       ErrorCode = "WRITE_CONFLICT"
	CodeWriteFailed         ErrorCode = "WRITE_FAILED"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeCancelled           ErrorCode = "CANCELLED"
	CodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// CodeOf returns the ErrorCode that best describes err
func CodeOf(err error) ErrorCode {
	var credErr *CredentialError
	var mapErr *RecordMappingError
	var conflictErr *WriteConflictError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &credErr):
		return CodeCredential
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, ErrRetryBudgetExhausted):
		return CodeRetryBudgetExceeded
	case errors.Is(err, ErrProviderRequestFailed), errors.Is(err, ErrUnsupportedKind):
		return CodeProviderRequest
	case errors.Is(err, ErrPaginationStalled):
		return CodePaginationStalled
	case errors.Is(err, ErrMalformedRecord):
		return CodeMalformedRecord
	case errors.Is(err, crm.ErrMissingIdentity),
		errors.Is(err, crm.ErrInvalidEntity),
		errors.Is(err, crm.ErrNegativeAmount),
		errors.Is(err, crm.ErrAmountOutOfRange):
		return CodeValidation
	case errors.As(err, &mapErr):
		return CodeMapping
	case errors.As(err, &conflictErr):
		return CodeWriteConflict
	}
	return CodeInternal
}

// maxContextBytes bounds the raw payload excerpt kept with an error
const maxContextBytes = 512

// MigrationError is one failure reported back to the caller
type MigrationError struct {
	Kind       crm.EntityKind `json:"entityKind,omitempty"`
	ExternalID string         `json:"externalId,omitempty"`
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Context    string         `json:"context,omitempty"`
}

// NewMigrationError builds a MigrationError from err, keeping a bounded
// excerpt of the offending payload.
func NewMigrationError(kind crm.EntityKind, externalID string, err error, payload []byte) MigrationError {
	return MigrationError{
		Kind:       kind,
		ExternalID: externalID,
		Code:       CodeOf(err),
		Message:    err.Error(),
		Context:    excerpt(payload, maxContextBytes),
	}
}

// excerpt truncates b to at most n bytes without splitting a UTF-8 sequence
func excerpt(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut])
}

// ErrorCollector accumulates MigrationErrors. The reported list is capped;
// the archived list has a larger cap and the total count is never capped.
type ErrorCollector struct {
	reported    []MigrationError
	archived    []MigrationError
	maxReported int
	maxArchived int
	total       int
}

// NewErrorCollector creates a collector. A non-positive maxArchived disables the archive list.
func NewErrorCollector(maxReported, maxArchived int) *ErrorCollector {
	if maxReported < 0 {
		maxReported = 0
	}
	return &ErrorCollector{
		reported:    make([]MigrationError, 0, min(maxReported, 64)),
		maxReported: maxReported,
		maxArchived: maxArchived,
	}
}

// Record adds an error
func (c *ErrorCollector) Record(e MigrationError) {
	c.total++
	if len(c.reported) < c.maxReported {
		c.reported = append(c.reported, e)
	}
	if len(c.archived) < c.maxArchived {
		c.archived = append(c.archived, e)
	}
}

// RecordFatal adds the error that aborted the run. It is always kept: when a
// list is full its last entry makes room, which still counts as dropped.
func (c *ErrorCollector) RecordFatal(e MigrationError) {
	c.total++
	c.reported = keepLast(c.reported, c.maxReported, e)
	c.archived = keepLast(c.archived, c.maxArchived, e)
}

func keepLast(list []MigrationError, limit int, e MigrationError) []MigrationError {
	switch {
	case limit <= 0:
		return list
	case len(list) < limit:
		return append(list, e)
	}
	list[len(list)-1] = e
	return list
}

// Errors returns a copy of the reported errors
func (c *ErrorCollector) Errors() []MigrationError {
	out := make([]MigrationError, len(c.reported))
	copy(out, c.reported)
	return out
}

// Archived returns a copy of the archive list
func (c *ErrorCollector) Archived() []MigrationError {
	out := make([]MigrationError, len(c.archived))
	copy(out, c.archived)
	return out
}

// Total returns the number of errors recorded, including dropped ones
func (c *ErrorCollector) Total() int {
	return c.total
}

// IsTruncated returns true if errors were dropped from the reported list
func (c *ErrorCollector) IsTruncated() bool {
	return c.total > len(c.reported)
}
