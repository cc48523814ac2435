package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory span recorder as the global provider
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		m[string(a.Key)] = a.Value
	}
	return m
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "jobnimbus.fetch_page",
		WithAttribute(SpanAttrKind, "contacts"),
		WithAttribute(SpanAttrPage, 3),
		WithSpanKind(trace.SpanKindClient),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "jobnimbus.fetch_page", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "contacts", attrs[SpanAttrKind].AsString())
	assert.Equal(t, int64(3), attrs[SpanAttrPage].AsInt64())
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, parent := StartServiceSpan(context.Background(), "migration", "run")
	_, child := StartSpan(ctx, "contacts.import")
	child.End()
	parent.End()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "contacts.import", spans[0].Name())
	assert.Equal(t, "migration.run", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, spans[1].SpanContext().TraceID().String(), GetTraceID(ctx))
}

func TestSetAttributes(t *testing.T) {
	sr := setupTestTracer(t)
	id := uuid.New()

	_, span := StartSpan(context.Background(), "op")
	SetAttributes(span,
		SpanAttrMigrationID, id,
		SpanAttrDryRun, true,
		SpanAttrRecords, int64(42),
		"ratio", 0.5,
		"tags", []string{"a", "b"},
		7, "ignored",
		"dangling",
	)
	span.End()

	attrs := attrMap(sr.Ended()[0].Attributes())
	assert.Equal(t, id.String(), attrs[SpanAttrMigrationID].AsString())
	assert.True(t, attrs[SpanAttrDryRun].AsBool())
	assert.Equal(t, int64(42), attrs[SpanAttrRecords].AsInt64())
	assert.Equal(t, 0.5, attrs["ratio"].AsFloat64())
	assert.Equal(t, []string{"a", "b"}, attrs["tags"].AsStringSlice())
	assert.NotContains(t, attrs, "dangling")
	assert.Len(t, attrs, 5)
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "op")
	RecordError(span, errors.New("credentials rejected"))
	span.End()

	got := sr.Ended()[0]
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "credentials rejected", got.Status().Description)
	require.NotEmpty(t, got.Events())
	assert.Equal(t, "exception", got.Events()[0].Name)
}

func TestRecordError_NilError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "op")
	RecordError(span, nil)
	SetOK(span)
	span.End()

	got := sr.Ended()[0]
	assert.Equal(t, codes.Ok, got.Status().Code)
	assert.Empty(t, got.Events())
}

func TestAddEvent(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := StartSpan(context.Background(), "op")
	AddEvent(span, "kind_finished", SpanAttrKind, "leads", "created", 2)
	span.End()

	events := sr.Ended()[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "kind_finished", events[0].Name)
	attrs := attrMap(events[0].Attributes)
	assert.Equal(t, "leads", attrs[SpanAttrKind].AsString())
	assert.Equal(t, int64(2), attrs["created"].AsInt64())
}

func TestHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttributes(nil, "k", "v")
		RecordError(nil, errors.New("x"))
		SetOK(nil)
		AddEvent(nil, "e")
	})
	assert.Empty(t, GetTraceID(context.Background()))
}
