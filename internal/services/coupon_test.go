package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoupon_ValidateCapsAtMaximum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.coupons.Create(ctx, save20())
	require.NoError(t, err)

	res, err := env.coupons.Validate(ctx, "save20", decimal.NewFromInt(300))
	require.NoError(t, err)
	assertMoney(t, "50.00", res.Discount)
	assert.Equal(t, "SAVE20", res.Coupon.Code)
	assert.Zero(t, res.Coupon.UsedCount, "validate must not redeem")
}

func TestCoupon_ValidateBelowMinimum(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.coupons.Create(ctx, save20())
	require.NoError(t, err)

	_, err = env.coupons.Validate(ctx, "SAVE20", decimal.NewFromInt(80))
	require.ErrorIs(t, err, ErrCouponBelowMinimum)
	var below *BelowMinimumError
	require.ErrorAs(t, err, &below)
	assertMoney(t, "100.00", below.Minimum)

	c, err := env.coupons.Get(ctx, "SAVE20")
	require.NoError(t, err)
	assert.Zero(t, c.UsedCount)
}

func TestCoupon_ValidateRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	_, err := env.coupons.Create(ctx, models.CouponInput{
		Code: "OLD", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(5), ExpiresAt: &past,
	})
	require.NoError(t, err)

	_, err = env.coupons.Create(ctx, models.CouponInput{
		Code: "OFF", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	_, err = env.db.ExecContext(ctx, "UPDATE coupons SET is_active = ? WHERE code = ?", false, "OFF")
	require.NoError(t, err)

	tests := []struct {
		code string
		want error
	}{
		{"MISSING", ErrNotFound},
		{"OLD", ErrCouponInvalid},
		{"OFF", ErrCouponInvalid},
		{"  ", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := env.coupons.Validate(ctx, tt.code, decimal.NewFromInt(50))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCoupon_ApplyStopsAtUsageLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	limit := 1
	_, err := env.coupons.Create(ctx, models.CouponInput{
		Code: "ONCE", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(10), UsageLimit: &limit,
	})
	require.NoError(t, err)

	c, err := env.coupons.Apply(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)

	_, err = env.coupons.Apply(ctx, "ONCE")
	assert.ErrorIs(t, err, ErrCouponInvalid)

	c, err = env.coupons.Get(ctx, "ONCE")
	require.NoError(t, err)
	assert.Equal(t, 1, c.UsedCount)
}

func TestCoupon_ConcurrentApplyOfLastUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	limit := 1
	_, err := env.coupons.Create(ctx, models.CouponInput{
		Code: "LAST", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(10), UsageLimit: &limit,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.coupons.Apply(ctx, "LAST")
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrCouponInvalid)
	}
	assert.Equal(t, 1, succeeded)
}

func TestCoupon_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	zero := 0

	tests := []struct {
		name string
		in   models.CouponInput
	}{
		{"missing code", models.CouponInput{DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(1)}},
		{"unknown type", models.CouponInput{Code: "X", DiscountType: "bogo", DiscountValue: decimal.NewFromInt(1)}},
		{"negative value", models.CouponInput{Code: "X", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(-1)}},
		{"over 100 percent", models.CouponInput{Code: "X", DiscountType: models.DiscountPercentage, DiscountValue: decimal.NewFromInt(150)}},
		{"zero usage limit", models.CouponInput{Code: "X", DiscountType: models.DiscountFixed, DiscountValue: decimal.NewFromInt(1), UsageLimit: &zero}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.coupons.Create(ctx, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := env.coupons.Create(ctx, save20())
	require.NoError(t, err)
	_, err = env.coupons.Create(ctx, save20())
	assert.ErrorIs(t, err, ErrValidation, "duplicate code")

	free, err := env.coupons.Create(ctx, models.CouponInput{Code: "nothing", DiscountType: models.DiscountFixed})
	require.NoError(t, err, "a zero discount is allowed")
	assert.True(t, free.DiscountValue.IsZero())
}

func TestCoupon_ListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c, err := env.coupons.Create(ctx, save20())
	require.NoError(t, err)
	assert.True(t, c.IsActive)
	require.NotNil(t, c.UsageLimit)
	assert.Equal(t, 100, *c.UsageLimit)
	assert.True(t, c.MaxDiscountAmount.Valid)

	list, err := env.coupons.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, env.coupons.Delete(ctx, c.ID))
	assert.ErrorIs(t, env.coupons.Delete(ctx, c.ID), ErrNotFound)

	list, err = env.coupons.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
