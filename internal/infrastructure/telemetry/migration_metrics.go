package telemetry

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// MigrationMetrics records per-record outcomes and per-run results
type MigrationMetrics struct {
	recordsTotal *Counter
	runsTotal    *Counter
	runDuration  *Histogram
}

// NewMigrationMetrics registers the migration instruments on meter
func NewMigrationMetrics(meter metric.Meter) (*MigrationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	records, err := NewCounter(meter, "crm_migration_records_total",
		"Records processed by migration runs, by outcome", "{record}")
	if err != nil {
		return nil, err
	}
	runs, err := NewCounter(meter, "crm_migration_runs_total",
		"Finished migration runs, by terminal status", "{run}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "crm_migration_run_duration_ms",
		Description: "Wall time of finished migration runs",
		Unit:        "ms",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &MigrationMetrics{
		recordsTotal: records,
		runsTotal:    runs,
		runDuration:  duration,
	}, nil
}

// RecordOutcome counts one processed record
func (m *MigrationMetrics) RecordOutcome(ctx context.Context, source migration.Source, kind crm.EntityKind, outcome migration.Outcome) {
	m.recordsTotal.Inc(ctx,
		AttrSource.String(string(source)),
		AttrKind.String(string(kind)),
		AttrOutcome.String(string(outcome)),
	)
}

// RecordRun counts one finished run and its duration
func (m *MigrationMetrics) RecordRun(ctx context.Context, source migration.Source, status migration.RunStatus, dryRun bool, duration time.Duration) {
	m.runsTotal.Inc(ctx,
		AttrSource.String(string(source)),
		AttrStatus.String(string(status)),
		AttrDryRun.String(strconv.FormatBool(dryRun)),
	)
	m.runDuration.RecordDuration(ctx, duration,
		AttrSource.String(string(source)),
		AttrStatus.String(string(status)),
	)
}
