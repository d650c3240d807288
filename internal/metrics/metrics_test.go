package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseHeaders(t *testing.T) {
	assert.Empty(t, parseHeaders(""))
	assert.Equal(t,
		map[string]string{"signoz-ingestion-key": "abc", "x-team": "shop=1"},
		parseHeaders(" signoz-ingestion-key = abc ,x-team=shop=1,broken"),
	)
}

func TestServiceResource(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "service.name=from-env,team=shop")

	res, err := serviceResource(context.Background(), &config.Config{
		OTELServiceName:           "storefront",
		OTELServiceVersion:        "2.0.0",
		OTELDeploymentEnvironment: "test",
	})
	require.NoError(t, err)

	name, _ := res.Set().Value(attribute.Key("service.name"))
	team, _ := res.Set().Value(attribute.Key("team"))
	env, _ := res.Set().Value(attribute.Key("deployment.environment"))
	assert.Equal(t, "storefront", name.AsString())
	assert.Equal(t, "shop", team.AsString())
	assert.Equal(t, "test", env.AsString())
}

func TestNewAppMetrics_Noop(t *testing.T) {
	m, err := NewAppMetrics(noop.NewMeterProvider().Meter("test"), "svc", "sqlite3")
	require.NoError(t, err)
	assert.NotNil(t, m.OrdersCreated)
	assert.NotNil(t, m.NotificationsDropped)

	m.RecordDBQuery(context.Background(), "SELECT", "products", "SELECT 1", time.Now(), true)
}

func TestRecordDBQuery_AddsServiceName(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewAppMetrics(provider.Meter("test"), "storefront", "mysql")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordDBQuery(ctx, "UPDATE", "products", "UPDATE products SET stock = ?", time.Now(), false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "db.client.queries.count" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			attrs := sum.DataPoints[0].Attributes
			svc, _ := attrs.Value(attribute.Key("service.name"))
			status, _ := attrs.Value(attribute.Key("status"))
			system, _ := attrs.Value(attribute.Key("db.system"))
			assert.Equal(t, "storefront", svc.AsString())
			assert.Equal(t, "error", status.AsString())
			assert.Equal(t, "mysql", system.AsString())
			found = true
		}
	}
	assert.True(t, found)
}
