package rollback_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gxp-audit/gxa/internal/restore"
	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/pkg/metrics"
	"github.com/gxp-audit/gxa/pkg/model"
)

func TestExecute_RecordsSpanWithOutcome(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	signer := signature.NewService()
	coord := rollback.NewCoordinator(newMockStore(), restore.NewRegistry(), signer, rollback.WithMetrics(metrics.NewRegistry()))
	entry := model.AuditEntry{ID: 7002, EntityType: "machines", EntityID: "42", Action: model.ActionCreate, NewSnapshot: `{"a":1}`}
	signer.Sign(&entry)

	_, err := coord.Execute(context.Background(), operator, rollback.Request{Entry: entry, Confirmed: true})
	require.Error(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "rollback.execute", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("gxa.outcome", string(model.OutcomeIneligible)))
	assert.Contains(t, span.Attributes(), attribute.String("gxa.entry_id", "7002"))
}
