package usecase

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/bibbank/origination/internal/application/usecase"

// Instruments resolve through the global providers, so they follow whatever
// InitTracer / InitMetrics installed at startup and are no-ops in tests.
var (
	tracer trace.Tracer = otel.Tracer(instrumentationName)
	meter               = otel.Meter(instrumentationName)

	decisionCounter, _ = meter.Int64Counter(
		"origination.underwriting.decisions",
		metric.WithDescription("Underwriting evaluations by outcome."),
	)
	sanctionCounter, _ = meter.Int64Counter(
		"origination.sanctions.issued",
		metric.WithDescription("Sanction letters issued."),
	)
	turnDuration, _ = meter.Float64Histogram(
		"origination.turn.duration",
		metric.WithDescription("Wall time to process one chat turn."),
		metric.WithUnit("s"),
	)
	turnErrors, _ = meter.Int64Counter(
		"origination.turn.errors",
		metric.WithDescription("Chat turns that failed, by error kind."),
	)
)

func outcomeAttr(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("outcome", outcome))
}
