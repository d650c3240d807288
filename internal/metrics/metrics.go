package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/pkg/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

// AppMetrics holds all application metrics
type AppMetrics struct {
	// HTTP Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestsErrors  metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Database Metrics
	DBQueriesTotal  metric.Int64Counter
	DBQueryDuration metric.Float64Histogram

	// Business Metrics
	OrdersCreated      metric.Int64Counter
	CheckoutsFailed    metric.Int64Counter
	OrderStatusUpdates metric.Int64Counter
	ProductsViewed     metric.Int64Counter
	CartItemsCount     metric.Int64Gauge
	InventoryLevel     metric.Int64Gauge
	RevenueTotal       metric.Float64Counter
	CouponRedemptions  metric.Int64Counter
	StockAlerts        metric.Int64Counter

	// Side effects
	NotificationsPublished metric.Int64Counter
	NotificationsDropped   metric.Int64Counter
	EmailsSent             metric.Int64Counter
	EmailsFailed           metric.Int64Counter
	EffectsFailed          metric.Int64Counter

	// Application Metrics
	ActiveCartsCount metric.Int64Gauge
	SSESubscribers   metric.Int64UpDownCounter
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter

	serviceName string
	dbSystem    string
}

// InitMetrics installs a global meter provider that pushes to the OTLP/HTTP
// endpoint in cfg, then builds AppMetrics on it
func InitMetrics(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*AppMetrics, *sdkmetric.MeterProvider, error) {
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otlpExporter(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	interval := cfg.MetricsExportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(meterProvider)

	logger.Info("metrics exporter configured",
		zap.String("endpoint", cfg.OTELExporterOTLPEndpoint),
		zap.Bool("insecure", cfg.OTELExporterOTLPInsecure),
		zap.String("service", cfg.OTELServiceName),
		zap.Duration("interval", interval),
	)

	m, err := NewAppMetrics(meterProvider.Meter(cfg.OTELServiceName), cfg.OTELServiceName, cfg.DBDriver)
	if err != nil {
		_ = meterProvider.Shutdown(ctx)
		return nil, nil, err
	}
	return m, meterProvider, nil
}

// serviceResource merges OTEL_RESOURCE_ATTRIBUTES with the configured
// service identity; the configured values win
func serviceResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	fromEnv, err := resource.New(ctx, resource.WithFromEnv())
	if err != nil {
		fromEnv = resource.Empty()
	}
	own, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.OTELServiceName),
		semconv.ServiceVersion(cfg.OTELServiceVersion),
		attribute.String("deployment.environment", cfg.OTELDeploymentEnvironment),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build service resource: %w", err)
	}
	res, err := resource.Merge(fromEnv, own)
	if err != nil {
		return nil, fmt.Errorf("failed to merge resources: %w", err)
	}
	if name, ok := res.Set().Value(semconv.ServiceNameKey); !ok || name.AsString() == "" {
		return nil, fmt.Errorf("service.name is not set in resource attributes")
	}
	return res, nil
}

// otlpExporter expects a host:port endpoint without scheme
// (SigNoz Cloud: ingest.<region>.signoz.cloud:443)
func otlpExporter(ctx context.Context, cfg *config.Config) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.OTELExporterOTLPEndpoint),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
	}
	if headers := parseHeaders(cfg.OTELExporterOTLPHeaders); len(headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(headers))
	}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// NewAppMetrics creates every instrument on meter
func NewAppMetrics(meter metric.Meter, serviceName, dbSystem string) (*AppMetrics, error) {
	// SigNoz default histogram buckets in milliseconds, expanded to 60s
	buckets := []float64{2, 4, 6, 8, 10, 50, 100, 200, 400, 800, 1000, 1400, 2000, 5000, 10000, 15000, 20000, 30000, 45000, 60000}

	m := &AppMetrics{serviceName: serviceName, dbSystem: dbSystem}
	b := builder{meter: meter}

	m.HTTPRequestsTotal = b.counter("http.server.request.count", "Total number of HTTP requests", "1")
	m.HTTPRequestsErrors = b.counter("http.server.request.error.count", "Total number of HTTP error requests", "1")
	m.HTTPRequestDuration = b.histogram("http.server.request.duration", "HTTP request duration in milliseconds", buckets)

	m.DBQueriesTotal = b.counter("db.client.queries.count", "Total number of database queries", "1")
	m.DBQueryDuration = b.histogram("db.client.queries.duration", "Database query duration in milliseconds", buckets)

	m.OrdersCreated = b.counter("orders_created_total", "Total number of orders created", "1")
	m.CheckoutsFailed = b.counter("checkouts_failed_total", "Checkout attempts rejected or failed", "1")
	m.OrderStatusUpdates = b.counter("order_status_updates_total", "Order status changes made by admins", "1")
	m.ProductsViewed = b.counter("products_viewed_total", "Total number of product views", "1")
	m.CartItemsCount = b.gauge("cart_items_count", "Current number of items in a cart", "1")
	m.InventoryLevel = b.gauge("inventory_level", "Current inventory level for products", "1")
	m.RevenueTotal = b.floatCounter("revenue_total", "Total revenue generated", "USD")
	m.CouponRedemptions = b.counter("coupon_redemptions_total", "Coupons applied", "1")
	m.StockAlerts = b.counter("stock_alerts_total", "Stock threshold alerts raised", "1")

	m.NotificationsPublished = b.counter("notifications_published_total", "Events published to push subscribers", "1")
	m.NotificationsDropped = b.counter("notifications_dropped_total", "Events dropped for slow push subscribers", "1")
	m.EmailsSent = b.counter("emails_sent_total", "Confirmation emails delivered", "1")
	m.EmailsFailed = b.counter("emails_failed_total", "Confirmation emails that failed to send", "1")
	m.EffectsFailed = b.counter("post_commit_effects_failed_total", "Post-commit effects that returned an error or panicked", "1")

	m.ActiveCartsCount = b.gauge("active_carts_count", "Number of active carts with items", "1")
	m.SSESubscribers = b.upDownCounter("sse_subscribers", "Connected push subscribers", "1")
	m.CacheHits = b.counter("cache_hits_total", "Total number of cache hits", "1")
	m.CacheMisses = b.counter("cache_misses_total", "Total number of cache misses", "1")

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder records the first instrument creation error so NewAppMetrics reads as a list
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) fail(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

func (b *builder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return c
}

func (b *builder) floatCounter(name, desc, unit string) metric.Float64Counter {
	c, err := b.meter.Float64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return c
}

func (b *builder) upDownCounter(name, desc, unit string) metric.Int64UpDownCounter {
	c, err := b.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return c
}

func (b *builder) gauge(name, desc, unit string) metric.Int64Gauge {
	g, err := b.meter.Int64Gauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.fail(name, err)
	return g
}

func (b *builder) histogram(name, desc string, buckets []float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	b.fail(name, err)
	return h
}

// WithServiceName adds service.name to attributes
func (m *AppMetrics) WithServiceName(attrs []attribute.KeyValue) []attribute.KeyValue {
	return append(attrs, attribute.String("service.name", m.serviceName))
}

// Attrs is shorthand for metric.WithAttributes plus service.name
func (m *AppMetrics) Attrs(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(m.WithServiceName(attrs)...)
}

// RecordDBQuery records database query metrics including the SQL statement
func (m *AppMetrics) RecordDBQuery(ctx context.Context, operation, table, statement string, start time.Time, success bool) {
	duration := time.Since(start).Milliseconds()

	status := "success"
	if !success {
		status = "error"
	}

	opt := m.Attrs(
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
		attribute.String("db.statement", statement),
		attribute.String("db.system", m.dbSystem),
		attribute.String("status", status),
	)
	m.DBQueriesTotal.Add(ctx, 1, opt)
	m.DBQueryDuration.Record(ctx, float64(duration), opt)
}

// parseHeaders parses "key1=value1,key2=value2"
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	if headerStr == "" {
		return headers
	}

	for _, pair := range strings.Split(headerStr, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) == 2 {
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return headers
}
