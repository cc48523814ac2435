package handler

import (
	"context"
	"errors"
	"time"

	migrationapp "github.com/crmigrate/backend/internal/application/migration"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/domain/shared"
	"github.com/crmigrate/backend/internal/infrastructure/logger"
	"github.com/crmigrate/backend/internal/infrastructure/telemetry"
	"github.com/crmigrate/backend/internal/interfaces/http/dto"
	"github.com/crmigrate/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MigrationService is the application surface the handler drives
type MigrationService interface {
	Run(ctx context.Context, cmd migrationapp.StartCommand) (*migrationapp.Result, error)
	GetRun(ctx context.Context, orgID, id uuid.UUID) (*migration.Run, error)
	ListRuns(ctx context.Context, orgID uuid.UUID, limit int) ([]*migration.Run, error)
	ForceUnlock(ctx context.Context, orgID uuid.UUID) (bool, error)
}

// ReportLinker issues temporary download links for archived error reports
type ReportLinker interface {
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// MigrationHandler exposes migration runs over HTTP
type MigrationHandler struct {
	BaseHandler
	service MigrationService
	reports ReportLinker
}

// NewMigrationHandler creates a MigrationHandler. reports may be nil when
// report archiving is disabled.
func NewMigrationHandler(service MigrationService, reports ReportLinker) *MigrationHandler {
	return &MigrationHandler{service: service, reports: reports}
}

// StartMigration godoc
//
//	@Summary		Run a migration
//	@Description	Imports contacts, properties, claims and leads from the provider named in the path. Completed and aborted runs both return 200; the ok field tells them apart.
//	@Tags			migrations
//	@ID				startMigration
//	@Accept			json
//	@Produce		json
//	@Param			X-Org-ID	header		string	true	"Org ID (UUID)"
//	@Param			X-User-ID	header		string	false	"User ID (UUID)"
//	@Param			source		path		string	true	"Provider (jobnimbus, acculynx)"
//	@Param			request		body		dto.StartMigrationRequest	true	"Provider credentials and mode"
//	@Success		200			{object}	dto.Response{data=migrationapp.Result}
//	@Failure		400			{object}	dto.Response
//	@Failure		409			{object}	dto.Response
//	@Failure		413			{object}	dto.Response
//	@Failure		500			{object}	dto.Response
//	@Router			/migrations/{source} [post]
func (h *MigrationHandler) StartMigration(c *gin.Context) {
	orgID, ok := middleware.GetOrgID(c)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeMissingOrg, "org id is required")
		return
	}
	var uri dto.SourceRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	var req dto.StartMigrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	cmd := migrationapp.StartCommand{
		OrgID:       orgID,
		UserID:      middleware.GetUserID(c),
		Source:      uri.Source,
		Credentials: req.Credentials(),
		DryRun:      req.DryRun,
	}
	var (
		result *migrationapp.Result
		err    error
	)
	telemetry.LabelRun(c.Request.Context(), uri.Source, req.DryRun, func(ctx context.Context) {
		result, err = h.service.Run(ctx, cmd)
	})
	if err != nil {
		h.HandleError(c, toDomainError(err))
		return
	}
	h.Success(c, result)
}

// GetMigration godoc
//
//	@Summary		Get a migration run
//	@Description	Returns the persisted audit record of a run of the caller's org
//	@Tags			migrations
//	@ID				getMigration
//	@Produce		json
//	@Param			X-Org-ID	header		string	true	"Org ID (UUID)"
//	@Param			id			path		string	true	"Migration ID"
//	@Success		200			{object}	dto.Response{data=dto.MigrationRunResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		404			{object}	dto.Response
//	@Failure		500			{object}	dto.Response
//	@Router			/migrations/{id} [get]
func (h *MigrationHandler) GetMigration(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	h.Success(c, dto.NewMigrationRunResponse(run))
}

// ListMigrations godoc
//
//	@Summary		List migration runs
//	@Description	Returns the most recent runs of the caller's org, newest first
//	@Tags			migrations
//	@ID				listMigrations
//	@Produce		json
//	@Param			X-Org-ID	header		string	true	"Org ID (UUID)"
//	@Param			limit		query		int		false	"Maximum runs (default: 20, max: 100)"
//	@Success		200			{object}	dto.Response{data=[]dto.MigrationRunResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		500			{object}	dto.Response
//	@Router			/migrations [get]
func (h *MigrationHandler) ListMigrations(c *gin.Context) {
	orgID, ok := middleware.GetOrgID(c)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeMissingOrg, "org id is required")
		return
	}
	var req dto.ListMigrationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	runs, err := h.service.ListRuns(c.Request.Context(), orgID, req.Limit)
	if err != nil {
		h.HandleError(c, toDomainError(err))
		return
	}
	h.Success(c, dto.NewMigrationRunListResponse(runs))
}

// GetMigrationReport godoc
//
//	@Summary		Get the error report of a run
//	@Description	Returns a temporary download link to the archived full error report
//	@Tags			migrations
//	@ID				getMigrationReport
//	@Produce		json
//	@Param			X-Org-ID	header		string	true	"Org ID (UUID)"
//	@Param			id			path		string	true	"Migration ID"
//	@Success		200			{object}	dto.Response{data=dto.MigrationReportResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		404			{object}	dto.Response
//	@Failure		500			{object}	dto.Response
//	@Router			/migrations/{id}/report [get]
func (h *MigrationHandler) GetMigrationReport(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}
	if h.reports == nil || run.ReportKey == "" {
		h.ErrorWithCode(c, dto.ErrCodeReportUnavailable, "no error report archived for this migration")
		return
	}

	url, expiresAt, err := h.reports.DownloadURL(c.Request.Context(), run.ReportKey, 0)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.MigrationReportResponse{
		MigrationID: run.ID.String(),
		URL:         url,
		ExpiresAt:   expiresAt,
		TotalErrors: run.TotalErrors,
	})
}

// ForceUnlock godoc
//
//	@Summary		Release the migration lock
//	@Description	Clears a stale migration lock of the caller's org regardless of holder
//	@Tags			migrations
//	@ID				forceUnlockMigrations
//	@Produce		json
//	@Param			X-Org-ID	header		string	true	"Org ID (UUID)"
//	@Success		200			{object}	dto.Response{data=dto.UnlockResponse}
//	@Failure		400			{object}	dto.Response
//	@Failure		500			{object}	dto.Response
//	@Router			/migrations/lock [delete]
func (h *MigrationHandler) ForceUnlock(c *gin.Context) {
	orgID, ok := middleware.GetOrgID(c)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeMissingOrg, "org id is required")
		return
	}
	released, err := h.service.ForceUnlock(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, toDomainError(err))
		return
	}
	logger.GetGinLogger(c).Info("Migration lock force release requested",
		zap.Bool("released", released),
	)
	h.Success(c, dto.UnlockResponse{Released: released})
}

func (h *MigrationHandler) loadRun(c *gin.Context) (*migration.Run, bool) {
	orgID, ok := middleware.GetOrgID(c)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeMissingOrg, "org id is required")
		return nil, false
	}
	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return nil, false
	}

	run, err := h.service.GetRun(c.Request.Context(), orgID, uuid.MustParse(uri.ID))
	if err != nil {
		h.HandleError(c, toDomainError(err))
		return nil, false
	}
	return run, true
}

// toDomainError maps migration sentinels to API-facing domain errors.
// Unrecognized errors are returned unchanged.
func toDomainError(err error) error {
	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &domainErr):
		return domainErr
	case errors.Is(err, migration.ErrUnknownSource):
		return shared.NewDomainError(shared.CodeInvalidSource, err.Error())
	case errors.Is(err, migration.ErrMissingAPIKey), errors.Is(err, migration.ErrInvalidBaseURL):
		return shared.NewDomainError(shared.CodeInvalidInput, err.Error())
	case errors.Is(err, migration.ErrMigrationInProgress):
		return shared.NewDomainError(shared.CodeMigrationInProgress, err.Error())
	case errors.Is(err, migration.ErrRunNotFound):
		return shared.NewDomainError(shared.CodeNotFound, "migration not found")
	default:
		return err
	}
}
