package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dmehra2102/test-booking-service/internal/booking/application"
	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorderCountsByClass(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	var logs bytes.Buffer
	r, err := NewRecorder(slog.New(slog.NewJSONHandler(&logs, nil)), mp)
	require.NoError(t, err)

	ctx := context.Background()
	serverErr := domain.StatusError("confirm booking", 500, false, nil)
	r.ExternalFailure(ctx, application.Failure{System: application.SystemScheduling, Stage: application.StageConfirmSlot, Class: domain.ClassOf(serverErr), Kind: domain.KindOf(serverErr), Err: serverErr})
	r.ExternalFailure(ctx, application.Failure{System: application.SystemScheduling, Stage: application.StageConfirmSlot, Class: domain.ClassOf(serverErr), Kind: domain.KindOf(serverErr), Err: serverErr})
	r.ExternalFailure(ctx, application.Failure{System: application.SystemScheduling, Stage: application.StageReserve, Class: domain.ClassAuth, Kind: domain.KindAuth})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	m := rm.ScopeMetrics[0].Metrics[0]
	assert.Equal(t, failuresMetric, m.Name)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		class, _ := dp.Attributes.Value(attribute.Key("class"))
		counts[class.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"server_error": 2, "auth": 1}, counts)
	assert.Contains(t, logs.String(), `"level":"WARN"`)
}
