package dto

import (
	"time"

	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
)

// StartMigrationRequest triggers a migration from the provider named in the path.
// The api key is used for this run only and never persisted.
type StartMigrationRequest struct {
	APIKey  string `json:"apiKey" binding:"required,max=512"`
	BaseURL string `json:"baseUrl" binding:"omitempty,url,max=2048"`
	DryRun  bool   `json:"dryRun"`
}

// Credentials returns the provider credentials carried by the request
func (r StartMigrationRequest) Credentials() migration.Credentials {
	return migration.Credentials{APIKey: r.APIKey, BaseURL: r.BaseURL}
}

// SourceRequest binds the source path parameter
type SourceRequest struct {
	Source string `uri:"source" binding:"required,max=32"`
}

// ListMigrationsRequest binds the list query
type ListMigrationsRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// MigrationRunResponse is the audit view of a persisted run
type MigrationRunResponse struct {
	ID              string                     `json:"id"`
	OrgID           string                     `json:"orgId"`
	UserID          string                     `json:"userId,omitempty"`
	Source          string                     `json:"source"`
	DryRun          bool                       `json:"dryRun"`
	Status          string                     `json:"status"`
	AbortReason     string                     `json:"abortReason,omitempty"`
	Stats           migration.Stats            `json:"stats"`
	Errors          []migration.MigrationError `json:"errors"`
	ErrorsTruncated bool                       `json:"errorsTruncated"`
	TotalErrors     int                        `json:"totalErrors"`
	HasReport       bool                       `json:"hasReport"`
	StartedAt       time.Time                  `json:"startedAt"`
	CompletedAt     *time.Time                 `json:"completedAt,omitempty"`
	DurationMs      int64                      `json:"durationMs"`
}

// NewMigrationRunResponse converts a run to its API view
func NewMigrationRunResponse(run *migration.Run) MigrationRunResponse {
	resp := MigrationRunResponse{
		ID:              run.ID.String(),
		OrgID:           run.OrgID.String(),
		Source:          run.Source.String(),
		DryRun:          run.DryRun,
		Status:          string(run.Status),
		AbortReason:     string(run.AbortReason),
		Stats:           run.Stats,
		Errors:          run.Errors,
		ErrorsTruncated: run.ErrorsTruncated,
		TotalErrors:     run.TotalErrors,
		HasReport:       run.ReportKey != "",
		StartedAt:       run.StartedAt,
		CompletedAt:     run.CompletedAt,
		DurationMs:      run.DurationMs,
	}
	if run.UserID != uuid.Nil {
		resp.UserID = run.UserID.String()
	}
	if resp.Errors == nil {
		resp.Errors = []migration.MigrationError{}
	}
	return resp
}

// NewMigrationRunListResponse converts runs to their API view
func NewMigrationRunListResponse(runs []*migration.Run) []MigrationRunResponse {
	out := make([]MigrationRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, NewMigrationRunResponse(run))
	}
	return out
}

// MigrationReportResponse points at the archived full error report
type MigrationReportResponse struct {
	MigrationID string    `json:"migrationId"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TotalErrors int       `json:"totalErrors"`
}

// UnlockResponse reports the outcome of a forced lock release
type UnlockResponse struct {
	Released bool `json:"released"`
}
