package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/effects"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runEffects(t *testing.T, effs []effects.Effect) []error {
	t.Helper()
	errs := make([]error, len(effs))
	for i, e := range effs {
		errs[i] = e.Run(context.Background())
	}
	return errs
}

func TestCheckout_RollsBackWhenALineCannotBeFilled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	a := env.seedProduct(t, "Product A", "10", 5)
	b := env.seedProduct(t, "Product B", "7", 1)

	_, err := env.carts.AddItem(ctx, owner, a.ID, 2)
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, owner, b.ID, 1)
	require.NoError(t, err)
	_, err = env.products.SetStock(ctx, b.ID, 0)
	require.NoError(t, err)

	order, effs, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Nil(t, order)
	assert.Nil(t, effs)

	se, ok := IsStockError(err)
	require.True(t, ok)
	assert.Equal(t, b.ID, se.ProductID)
	assert.Equal(t, "Product B", se.ProductName)
	assert.Zero(t, se.Available)

	assert.Equal(t, 5, env.stockOf(t, a.ID), "earlier decrements must roll back")
	assert.Equal(t, 0, env.stockOf(t, b.ID))
	assert.Zero(t, env.orderCount(t))

	cart, err := env.carts.GetWithProducts(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2, "a failed checkout keeps the cart")
}

func TestCheckout_StockAlertsFromNewLevels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	c := env.seedProduct(t, "Product C", "20", 8)
	d := env.seedProduct(t, "Product D", "15", 8)

	_, err := env.carts.AddItem(ctx, owner, c.ID, 2)
	require.NoError(t, err)
	_, err = env.carts.AddItem(ctx, owner, d.ID, 6)
	require.NoError(t, err)

	order, effs, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	require.NoError(t, err)
	assert.Equal(t, 6, env.stockOf(t, c.ID))
	assert.Equal(t, 2, env.stockOf(t, d.ID))
	assert.Empty(t, env.publisher.alerts(), "alerts wait for the effects to run")

	for _, err := range runEffects(t, effs) {
		assert.NoError(t, err)
	}

	alerts := env.publisher.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.StockLow, alerts[0].Type)
	assert.Equal(t, d.ID, alerts[0].ProductID)
	assert.Equal(t, 2, alerts[0].Stock)
	assert.Equal(t, "Product D is running low, only 2 items left!", alerts[0].Message)

	sent := env.mailer.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, order.OrderNumber)
}

func TestCheckout_CreatesPendingOrderAndClearsCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.UserOwner("user-1")
	p := env.seedProduct(t, "Sweater", "45.50", 10)

	_, err := env.carts.AddItem(ctx, owner, p.ID, 2)
	require.NoError(t, err)

	order, _, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-\d+-[0-9A-F]{5}$`, order.OrderNumber)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Equal(t, owner, order.Owner)
	assertMoney(t, "91.00", order.Subtotal)
	assertMoney(t, "0.00", order.Discount)
	assertMoney(t, "91.00", order.Total)
	assert.Equal(t, 8, env.stockOf(t, p.ID))

	cart, err := env.carts.GetWithProducts(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	stored, err := env.orders.GetByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.ID)
	assert.Equal(t, "Ada", stored.CustomerInfo.FirstName)
	assert.Equal(t, "London", stored.CustomerInfo.Address.City)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Sweater", stored.Items[0].Name)
	assert.Equal(t, 2, stored.Items[0].Quantity)

	mine, err := env.orders.ListForOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Len(t, mine[0].Items, 1)

	others, err := env.orders.ListForOwner(ctx, models.SessionOwner("user-1"))
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")

	_, _, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = env.carts.GetOrCreate(ctx, owner)
	require.NoError(t, err)
	_, _, err = env.orders.Checkout(ctx, owner, checkoutRequest())
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, env.orderCount(t))
}

func TestCheckout_ConcurrentCheckoutsOfOneCart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	p := env.seedProduct(t, "Product A", "10", 5)
	_, err := env.carts.AddItem(ctx, owner, p.ID, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.orders.Checkout(ctx, owner, checkoutRequest())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrEmptyCart)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, env.orderCount(t))
	assert.Equal(t, 3, env.stockOf(t, p.ID))
}

func TestCartClaim_SecondDeleteReportsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	p := env.seedProduct(t, "Product A", "10", 5)
	_, err := env.carts.AddItem(ctx, owner, p.ID, 1)
	require.NoError(t, err)

	m := env.orders.metrics
	err = env.db.WithTx(ctx, func(tx *sql.Tx) error {
		locked, err := lockOwned(ctx, tx, m, env.db.Dialect(), "carts", owner)
		require.NoError(t, err)
		assert.True(t, locked)

		deleted, err := deleteOwned(ctx, tx, m, "carts", "cart_items", "cart_id", owner)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = deleteOwned(ctx, tx, m, "carts", "cart_items", "cart_id", owner)
		require.NoError(t, err)
		assert.False(t, deleted)

		locked, err = lockOwned(ctx, tx, m, env.db.Dialect(), "carts", owner)
		require.NoError(t, err)
		assert.False(t, locked)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, " FOR UPDATE", forUpdate(db.MySQL))
	assert.Empty(t, forUpdate(db.SQLite))
}

func TestCheckout_ValidatesCustomer(t *testing.T) {
	env := newTestEnv(t)
	owner := models.SessionOwner("sess-1")

	noEmail := checkoutRequest()
	noEmail.CustomerInfo.Email = " "
	badEmail := checkoutRequest()
	badEmail.CustomerInfo.Email = "not-an-address"
	noPayment := checkoutRequest()
	noPayment.PaymentMethod = ""

	for name, req := range map[string]models.CheckoutRequest{
		"missing email":   noEmail,
		"malformed email": badEmail,
		"missing payment": noPayment,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.orders.Checkout(context.Background(), owner, req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCheckout_ConcurrentBuyersOfLastUnit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduct(t, "Last One", "99", 1)

	owners := []models.Owner{models.SessionOwner("buyer-1"), models.SessionOwner("buyer-2")}
	for _, o := range owners {
		_, err := env.carts.AddItem(ctx, o, p.ID, 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(owners))
	for i, o := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = env.orders.Checkout(ctx, o, checkoutRequest())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, env.stockOf(t, p.ID))
	assert.Equal(t, 1, env.orderCount(t))
}

func TestCheckout_OrderSnapshotsSurviveProductEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	p := env.seedProduct(t, "Original Name", "30", 5)

	_, err := env.carts.AddItem(ctx, owner, p.ID, 1)
	require.NoError(t, err)
	order, _, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	require.NoError(t, err)

	_, err = env.products.Update(ctx, p.ID, models.ProductInput{
		Name: "Renamed", Category: p.Category, Price: decimal.NewFromInt(999),
	})
	require.NoError(t, err)

	stored, err := env.orders.GetByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "Original Name", stored.Items[0].Name)
	assertMoney(t, "30.00", stored.Items[0].Price)
	assertMoney(t, "30.00", stored.Total)

	require.NoError(t, env.products.Delete(ctx, p.ID))
	stored, err = env.orders.GetByOrderNumber(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1, "deleting a product keeps order lines")
}

func TestCheckout_WithCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	_, err := env.coupons.Create(ctx, save20())
	require.NoError(t, err)
	p := env.seedProduct(t, "Coat", "100", 10)

	_, err = env.carts.AddItem(ctx, owner, p.ID, 3)
	require.NoError(t, err)

	req := checkoutRequest()
	req.CouponCode = "save20"
	order, effs, err := env.orders.Checkout(ctx, owner, req)
	require.NoError(t, err)
	assertMoney(t, "300.00", order.Subtotal)
	assertMoney(t, "50.00", order.Discount)
	assertMoney(t, "250.00", order.Total)
	assert.Equal(t, "SAVE20", order.CouponCode)

	c, err := env.coupons.Get(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)

	runEffects(t, effs)
	sent := env.mailer.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "250.00")
}

func TestCheckout_CouponRejectionRollsBackStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	_, err := env.coupons.Create(ctx, save20())
	require.NoError(t, err)
	p := env.seedProduct(t, "Tee", "40", 10)

	_, err = env.carts.AddItem(ctx, owner, p.ID, 2)
	require.NoError(t, err)

	req := checkoutRequest()
	req.CouponCode = "SAVE20"
	_, _, err = env.orders.Checkout(ctx, owner, req)
	require.ErrorIs(t, err, ErrCouponBelowMinimum)

	assert.Equal(t, 10, env.stockOf(t, p.ID))
	assert.Zero(t, env.orderCount(t))
	c, err := env.coupons.Get(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Zero(t, c.UsedCount)
}

func TestCheckout_RetriesOrderNumberCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env.orders.now = func() time.Time { return fixed }

	var mu sync.Mutex
	suffixes := []string{"AAAAA", "AAAAA", "BBBBB"}
	env.orders.suffix = func() string {
		mu.Lock()
		defer mu.Unlock()
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	p := env.seedProduct(t, "Mug", "9", 10)
	var numbers []string
	for _, id := range []string{"sess-1", "sess-2"} {
		owner := models.SessionOwner(id)
		_, err := env.carts.AddItem(ctx, owner, p.ID, 1)
		require.NoError(t, err)
		order, _, err := env.orders.Checkout(ctx, owner, checkoutRequest())
		require.NoError(t, err)
		numbers = append(numbers, order.OrderNumber)
	}

	assert.Equal(t, []string{"ORD-1772366400000-AAAAA", "ORD-1772366400000-BBBBB"}, numbers)
	assert.Equal(t, 8, env.stockOf(t, p.ID))
}

func TestCheckout_EmailFailureDoesNotUndoOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	env.mailer.err = errors.New("smtp unavailable")
	p := env.seedProduct(t, "Poster", "12", 5)

	_, err := env.carts.AddItem(ctx, owner, p.ID, 1)
	require.NoError(t, err)
	order, effs, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	require.NoError(t, err)

	var emailErr error
	for i, e := range effs {
		if e.Kind == effects.Email {
			emailErr = runEffects(t, effs[i:i+1])[0]
		}
	}
	assert.ErrorIs(t, emailErr, ErrDependency)

	_, err = env.orders.GetByOrderNumber(ctx, order.OrderNumber)
	assert.NoError(t, err)
}

func TestCheckout_InvalidatesCachedStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	p := env.seedProduct(t, "Cached", "5", 5)

	cached, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, cached.Stock)

	_, err = env.carts.AddItem(ctx, owner, p.ID, 2)
	require.NoError(t, err)
	_, _, err = env.orders.Checkout(ctx, owner, checkoutRequest())
	require.NoError(t, err)

	fresh, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, fresh.Stock)
}

func TestOrder_UpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := models.SessionOwner("sess-1")
	p := env.seedProduct(t, "Frame", "18", 5)
	_, err := env.carts.AddItem(ctx, owner, p.ID, 1)
	require.NoError(t, err)
	order, _, err := env.orders.Checkout(ctx, owner, checkoutRequest())
	require.NoError(t, err)

	updated, err := env.orders.UpdateStatus(ctx, order.OrderNumber, models.OrderShipped)
	require.NoError(t, err)
	assert.Equal(t, models.OrderShipped, updated.Status)
	assertMoney(t, order.Total.StringFixed(2), updated.Total)

	events := env.publisher.named(models.EventOrderUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, map[string]string{"order_number": order.OrderNumber, "status": "shipped"}, events[0])

	_, err = env.orders.UpdateStatus(ctx, order.OrderNumber, "lost")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.orders.UpdateStatus(ctx, "ORD-0-XXXXX", models.OrderDelivered)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := env.orders.ListAll(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.OrderShipped, all[0].Status)
}
