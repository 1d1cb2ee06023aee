// Package telemetry records failed external calls by error class.
package telemetry

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const failuresMetric = "booking.external_failures"

type Recorder struct {
	log      *slog.Logger
	failures metric.Int64Counter
}

// NewRecorder registers the failure counter on mp, or on the global meter
// provider when mp is nil.
func NewRecorder(log *slog.Logger, mp metric.MeterProvider) (*Recorder, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	counter, err := mp.Meter("booking-service").Int64Counter(failuresMetric,
		metric.WithDescription("Failed calls to external systems by stage and error class"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}
	return &Recorder{log: log, failures: counter}, nil
}

func (r *Recorder) ExternalFailure(ctx context.Context, f application.Failure) {
	attrs := []attribute.KeyValue{
		attribute.String("system", string(f.System)),
		attribute.String("stage", string(f.Stage)),
		attribute.String("class", string(f.Class)),
	}
	r.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
	trace.SpanFromContext(ctx).AddEvent("external_failure", trace.WithAttributes(
		append(attrs, attribute.String("kind", f.Kind.String()))...,
	))
	r.log.Warn("external call failed",
		"system", f.System,
		"stage", f.Stage,
		"class", f.Class,
		"kind", f.Kind.String(),
		"err", f.Err,
	)
}
