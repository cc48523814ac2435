package migrationapp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/crmigrate/backend/internal/domain/shared"
	"github.com/crmigrate/backend/internal/infrastructure/logger"
	"github.com/crmigrate/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.uber.org/zap"
)

// Config bounds a migration run
type Config struct {
	MaxReportedErrors int
	MaxArchivedErrors int
	MaxDuration       time.Duration
	LockTTL           time.Duration
}

// lockTTLMargin covers finalization (report archive, run update) after the
// run deadline.
const lockTTLMargin = 2 * time.Minute

// DefaultConfig returns the default run limits
func DefaultConfig() Config {
	return Config{
		MaxReportedErrors: 50,
		MaxArchivedErrors: 10000,
		MaxDuration:       10 * time.Minute,
		LockTTL:           30 * time.Minute,
	}
}

// MetricsRecorder receives per-record and per-run measurements
type MetricsRecorder interface {
	RecordOutcome(ctx context.Context, source migration.Source, kind crm.EntityKind, outcome migration.Outcome)
	RecordRun(ctx context.Context, source migration.Source, status migration.RunStatus, dryRun bool, duration time.Duration)
}

// Option configures a MigrationService
type Option func(*MigrationService)

// WithReportArchive stores full error reports after each run with errors
func WithReportArchive(a migration.ReportArchive) Option {
	return func(s *MigrationService) {
		s.archive = a
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(s *MigrationService) {
		s.metrics = m
	}
}

// WithClock sets the clock used for run timestamps
func WithClock(c clock.Clock) Option {
	return func(s *MigrationService) {
		s.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *MigrationService) {
		s.logger = l
	}
}

// MigrationService orchestrates migration runs
type MigrationService struct {
	registry *AdapterRegistry
	runs     migration.RunRepository
	resolver *IdempotencyResolver
	store    migration.RecordStore
	lock     migration.RunLock
	archive  migration.ReportArchive
	metrics  MetricsRecorder
	clock    clock.Clock
	logger   *zap.Logger
	cfg      Config
}

// NewMigrationService creates a MigrationService
func NewMigrationService(
	registry *AdapterRegistry,
	runs migration.RunRepository,
	mappings migration.MappingRepository,
	store migration.RecordStore,
	lock migration.RunLock,
	cfg Config,
	opts ...Option,
) *MigrationService {
	d := DefaultConfig()
	if cfg.MaxReportedErrors <= 0 {
		cfg.MaxReportedErrors = d.MaxReportedErrors
	}
	if cfg.MaxArchivedErrors < cfg.MaxReportedErrors {
		cfg.MaxArchivedErrors = d.MaxArchivedErrors
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = d.MaxDuration
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = d.LockTTL
	}
	// the lock is never renewed; it has to cover the run and its finalization
	if floor := cfg.MaxDuration + lockTTLMargin; cfg.LockTTL < floor {
		cfg.LockTTL = floor
	}
	s := &MigrationService{
		registry: registry,
		runs:     runs,
		resolver: NewIdempotencyResolver(mappings),
		store:    store,
		lock:     lock,
		clock:    clock.WallClock,
		logger:   zap.NewNop(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCommand triggers a migration
type StartCommand struct {
	OrgID       uuid.UUID
	UserID      uuid.UUID
	Source      string
	Credentials migration.Credentials
	DryRun      bool
}

// Result is returned to the caller of Run
type Result struct {
	OK              bool                       `json:"ok"`
	MigrationID     uuid.UUID                  `json:"migrationId"`
	Status          migration.RunStatus        `json:"status"`
	AbortReason     migration.AbortReason      `json:"abortReason,omitempty"`
	DryRun          bool                       `json:"dryRun"`
	Stats           migration.Stats            `json:"stats"`
	Errors          []migration.MigrationError `json:"errors"`
	ErrorsTruncated bool                       `json:"errorsTruncated"`
	TotalErrors     int                        `json:"totalErrors"`
	DurationMs      int64                      `json:"durationMs"`
}

// ResultFromRun builds a Result from a finalized run
func ResultFromRun(run *migration.Run) *Result {
	errs := run.Errors
	if errs == nil {
		errs = []migration.MigrationError{}
	}
	return &Result{
		OK:              run.Succeeded(),
		MigrationID:     run.ID,
		Status:          run.Status,
		AbortReason:     run.AbortReason,
		DryRun:          run.DryRun,
		Stats:           run.Stats,
		Errors:          errs,
		ErrorsTruncated: run.ErrorsTruncated,
		TotalErrors:     run.TotalErrors,
		DurationMs:      run.DurationMs,
	}
}

// Run executes one migration. Errors are returned only when no run could be
// started; once a run exists every failure is reported inside the Result.
func (s *MigrationService) Run(ctx context.Context, cmd StartCommand) (*Result, error) {
	source, err := migration.ParseSource(cmd.Source)
	if err != nil {
		return nil, err
	}
	if cmd.OrgID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "org id is required")
	}
	if err := cmd.Credentials.Validate(); err != nil {
		return nil, err
	}
	adapter, err := s.registry.Get(source)
	if err != nil {
		return nil, err
	}

	run, err := migration.NewRun(cmd.OrgID, cmd.UserID, source, cmd.DryRun, s.clock.Now())
	if err != nil {
		return nil, err
	}
	ctx = logger.WithMigrationID(ctx, run.ID.String())
	if logger.GetOrgID(ctx) == "" {
		ctx = logger.WithOrgID(ctx, run.OrgID.String())
	}
	if logger.GetUserID(ctx) == "" && run.UserID != uuid.Nil {
		ctx = logger.WithUserID(ctx, run.UserID.String())
	}
	runFields := []zap.Field{
		zap.String("source", string(source)),
		zap.Bool("dry_run", run.DryRun),
	}
	log := logger.WithLogger(ctx, s.logger).With(runFields...)

	if !run.DryRun {
		acquired, err := s.lock.Acquire(ctx, run.OrgID, run.ID.String(), s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire migration lock: %w", err)
		}
		if !acquired {
			log.Info("Migration rejected, another migration holds the org lock")
			return nil, migration.ErrMigrationInProgress
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx), run.OrgID, run.ID.String()); err != nil {
				log.Warn("Failed to release migration lock", zap.Error(err))
			}
		}()
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create migration run: %w", err)
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "migration", "run",
		telemetry.WithAttribute("migration.id", run.ID.String()),
		telemetry.WithAttribute("migration.source", string(source)),
		telemetry.WithAttribute("migration.dry_run", run.DryRun),
	)
	defer span.End()
	log = logger.WithLogger(ctx, s.logger).With(runFields...)

	log.Info("Migration started")
	exec := &execution{
		svc:     s,
		run:     run,
		adapter: adapter,
		creds:   cmd.Credentials,
		writer:  WriterFor(run.DryRun, s.resolver, s.store),
		stats:   migration.NewStats(),
		errs:    migration.NewErrorCollector(s.cfg.MaxReportedErrors, s.cfg.MaxArchivedErrors),
		sm:      migration.NewStateMachine(),
		log:     log,
	}
	fatal := exec.execute(ctx)

	s.finalize(ctx, exec, fatal)
	if fatal != nil {
		telemetry.RecordError(span, fatal)
	} else {
		telemetry.SetOK(span)
	}
	return ResultFromRun(run), nil
}

// finalize moves the run to its terminal state and persists it
func (s *MigrationService) finalize(ctx context.Context, exec *execution, fatal error) {
	run, log := exec.run, exec.log
	now := s.clock.Now()

	if fatal != nil {
		_ = exec.sm.Abort()
		_ = run.Abort(migration.AbortReasonFor(fatal), exec.stats, exec.errs, now)
		log.Warn("Migration aborted",
			zap.String("reason", string(run.AbortReason)),
			zap.Error(fatal),
		)
	} else if err := exec.sm.Finalize(); err != nil {
		_ = exec.sm.Abort()
		_ = run.Abort(migration.AbortReasonInternal, exec.stats, exec.errs, now)
		log.Error("Migration state machine rejected finalize", zap.Error(err))
	} else {
		_ = exec.sm.Complete()
		_ = run.Complete(exec.stats, exec.errs, now)
	}

	// persist even if the caller went away
	persistCtx := context.WithoutCancel(ctx)
	if s.archive != nil && exec.errs.Total() > 0 {
		key, err := s.archive.Store(persistCtx, run, exec.errs.Archived())
		if err != nil {
			log.Warn("Failed to archive migration error report", zap.Error(err))
		} else {
			run.ReportKey = key
		}
	}
	if err := s.runs.Finalize(persistCtx, run); err != nil {
		log.Error("Failed to persist migration run", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.RecordRun(persistCtx, run.Source, run.Status, run.DryRun, time.Duration(run.DurationMs)*time.Millisecond)
	}

	totals := run.Stats.Totals()
	log.Info("Migration finished",
		zap.String("status", string(run.Status)),
		zap.Int("created", totals.Created),
		zap.Int("updated", totals.Updated),
		zap.Int("skipped", totals.Skipped),
		zap.Int("failed", totals.Failed),
		zap.Int("errors", run.TotalErrors),
		zap.Int64("duration_ms", run.DurationMs),
	)
}

// GetRun returns a run of org
func (s *MigrationService) GetRun(ctx context.Context, orgID, id uuid.UUID) (*migration.Run, error) {
	return s.runs.FindByID(ctx, orgID, id)
}

// ListRuns returns the most recent runs of org, newest first
func (s *MigrationService) ListRuns(ctx context.Context, orgID uuid.UUID, limit int) ([]*migration.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.runs.ListByOrg(ctx, orgID, limit)
}

// ForceUnlock clears the migration lock of org regardless of holder. It
// reports whether a lock was present.
func (s *MigrationService) ForceUnlock(ctx context.Context, orgID uuid.UUID) (bool, error) {
	if orgID == uuid.Nil {
		return false, shared.NewDomainError(shared.CodeInvalidInput, "org id is required")
	}
	removed, err := s.lock.ForceUnlock(ctx, orgID)
	if err != nil {
		return false, fmt.Errorf("force unlock: %w", err)
	}
	logger.WithLogger(logger.WithOrgID(ctx, orgID.String()), s.logger).Warn("Migration lock force released",
		zap.Bool("was_locked", removed),
	)
	return removed, nil
}

// execution holds the mutable state of one run
type execution struct {
	svc     *MigrationService
	run     *migration.Run
	adapter migration.SourceAdapter
	creds   migration.Credentials
	writer  Writer
	stats   migration.Stats
	errs    *migration.ErrorCollector
	sm      *migration.StateMachine
	log     *logger.ContextLogger
}

// execute imports every kind in order and returns the run-fatal error, if any
func (e *execution) execute(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, e.svc.cfg.MaxDuration)
	defer cancel()

	for _, kind := range crm.ImportOrder() {
		if err := e.sm.StartKind(kind); err != nil {
			return err
		}
		if err := e.importKind(ctx, kind); err != nil {
			err = e.asRunError(parent, err)
			e.errs.RecordFatal(migration.NewMigrationError(kind, "", err, nil))
			return err
		}
		ks := e.stats[kind]
		e.log.Info("Migration kind finished",
			zap.String("kind", string(kind)),
			zap.Int("created", ks.Created),
			zap.Int("updated", ks.Updated),
			zap.Int("skipped", ks.Skipped),
			zap.Int("failed", ks.Failed),
		)
	}
	return nil
}

// asRunError reports the run's own deadline as a TimeoutError
func (e *execution) asRunError(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return &migration.TimeoutError{Limit: e.svc.cfg.MaxDuration}
	}
	return err
}

// importKind pages through kind until the provider reports the end
func (e *execution) importKind(ctx context.Context, kind crm.EntityKind) error {
	var token migration.PageToken
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p, err := e.adapter.FetchPage(ctx, e.creds, kind, token)
		if err != nil {
			// without the page there is no next token, so the kind cannot go on
			if !migration.IsFatal(err) {
				err = fmt.Errorf("%w: %s page %d: %w", migration.ErrProviderRequestFailed, kind, page, err)
			}
			return err
		}

		for _, bad := range p.Malformed {
			e.fail(ctx, kind, bad.ExternalID, bad.Err, bad.Payload)
		}
		for _, rec := range p.Records {
			if err := e.processRecord(ctx, rec); err != nil {
				return err
			}
		}
		e.log.Debug("Migration page processed",
			zap.String("kind", string(kind)),
			zap.Int("page", page),
			zap.Int("records", len(p.Records)),
			zap.Int("malformed", len(p.Malformed)),
		)

		if p.Done {
			return nil
		}
		if p.Next == "" || p.Next == token {
			return fmt.Errorf("%w: %s page %d", migration.ErrPaginationStalled, kind, page)
		}
		token = p.Next
	}
}

// processRecord maps and writes one record. Only run-fatal errors are returned.
func (e *execution) processRecord(ctx context.Context, rec migration.ProviderRecord) error {
	entity, err := e.adapter.Map(rec, e.run.OrgID)
	if err != nil {
		e.fail(ctx, rec.Kind, rec.ExternalID, err, rec.Payload)
		return nil
	}
	if entity == nil {
		e.record(ctx, rec.Kind, migration.OutcomeSkipped)
		return nil
	}
	if err := entity.Validate(); err != nil {
		e.fail(ctx, rec.Kind, rec.ExternalID, &migration.RecordMappingError{Kind: rec.Kind, ExternalID: rec.ExternalID, Err: err}, rec.Payload)
		return nil
	}

	outcome, err := e.writer.Write(ctx, e.run.ID, entity)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if migration.IsFatal(err) {
			return err
		}
		e.fail(ctx, rec.Kind, rec.ExternalID, err, rec.Payload)
		return nil
	}
	e.record(ctx, rec.Kind, outcome)
	return nil
}

func (e *execution) record(ctx context.Context, kind crm.EntityKind, outcome migration.Outcome) {
	e.stats.Record(kind, outcome)
	if e.svc.metrics != nil {
		e.svc.metrics.RecordOutcome(ctx, e.run.Source, kind, outcome)
	}
}

func (e *execution) fail(ctx context.Context, kind crm.EntityKind, externalID string, err error, payload []byte) {
	e.record(ctx, kind, migration.OutcomeFailed)
	e.errs.Record(migration.NewMigrationError(kind, externalID, err, payload))
	e.log.Debug("Migration record failed",
		zap.String("kind", string(kind)),
		zap.String("external_id", externalID),
		zap.Error(err),
	)
}
