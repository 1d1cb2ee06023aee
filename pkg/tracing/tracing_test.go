package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceparentRoundTripsThroughKafkaHeaders(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, "tracing-test", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	assert.Empty(t, Traceparent(ctx))

	spanCtx, span := tp.Tracer("test").Start(ctx, "produce")
	defer span.End()
	tp1 := Traceparent(spanCtx)
	require.NotEmpty(t, tp1)

	got := ExtractKafkaHeaders(ctx, []kafka.Header{{Key: TraceparentHeader, Value: []byte(tp1)}})
	sc := trace.SpanContextFromContext(got)
	assert.True(t, sc.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), sc.TraceID())
}

func TestInitMetricsWithoutEndpoint(t *testing.T) {
	mp, err := InitMetrics(context.Background(), "tracing-test", "", 0)
	require.NoError(t, err)
	assert.NoError(t, mp.Shutdown(context.Background()))
}
