package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/mailer"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"
)

type published struct {
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(event string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Event: event, Payload: payload})
}

func (p *recordingPublisher) named(event string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, e := range p.events {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (p *recordingPublisher) alerts() []models.StockAlert {
	var out []models.StockAlert
	for _, payload := range p.named(models.EventStockAlert) {
		out = append(out, payload.(models.StockAlert))
	}
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

type testEnv struct {
	db        *db.DB
	publisher *recordingPublisher
	mailer    *recordingMailer
	products  *ProductService
	carts     *CartService
	wishlists *WishlistService
	coupons   *CouponService
	orders    *OrderService
	users     *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	dsn := "file:" + filepath.Join(t.TempDir(), "store.db") + "?_foreign_keys=on&_busy_timeout=5000"
	store, err := db.NewDB(ctx, "sqlite3", dsn, "test", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "test", "sqlite3")
	require.NoError(t, err)

	env := &testEnv{db: store, publisher: &recordingPublisher{}, mailer: &recordingMailer{}}
	env.products = NewProductService(store, m, logger, env.publisher)
	env.carts = NewCartService(store, m, logger)
	env.wishlists = NewWishlistService(store, m, logger)
	env.coupons = NewCouponService(store, m, logger)
	env.users = NewUserService(store, m, logger)
	env.orders = NewOrderService(store, m, logger, env.products, env.mailer, env.publisher, OrderConfig{
		StoreName:       "Test Store",
		TrackingURLBase: "https://shop.test/orders/",
	})
	return env
}

func (e *testEnv) seedProduct(t *testing.T, name, price string, stock int) *models.Product {
	t.Helper()
	p, err := e.products.Create(context.Background(), models.ProductInput{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Category: "apparel",
		Stock:    stock,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) stockOf(t *testing.T, id int64) int {
	t.Helper()
	p, err := fetchProduct(context.Background(), e.db, e.products.metrics, id)
	require.NoError(t, err)
	return p.Stock
}

func (e *testEnv) orderCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM orders").Scan(&n))
	return n
}

func save20() models.CouponInput {
	limit := 100
	return models.CouponInput{
		Code:              "SAVE20",
		Description:       "20% off orders over $100",
		DiscountType:      models.DiscountPercentage,
		DiscountValue:     decimal.NewFromInt(20),
		MinOrderAmount:    decimal.NewFromInt(100),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(50)),
		UsageLimit:        &limit,
	}
}

func checkoutRequest() models.CheckoutRequest {
	return models.CheckoutRequest{
		CustomerInfo: models.CustomerInfo{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Address:   models.Address{Street: "1 Analytical Way", City: "London", Country: "UK"},
		},
		PaymentMethod: "credit_card",
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}
