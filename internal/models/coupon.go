package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is a discount code. Code is stored upper-case.
type Coupon struct {
	ID                int64               `json:"id"`
	Code              string              `json:"code"`
	Description       string              `json:"description"`
	DiscountType      DiscountType        `json:"discount_type"`
	DiscountValue     decimal.Decimal     `json:"discount_value"`
	MinOrderAmount    decimal.Decimal     `json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	UsageLimit        *int                `json:"usage_limit"`
	UsedCount         int                 `json:"used_count"`
	ExpiresAt         *time.Time          `json:"expires_at"`
	IsActive          bool                `json:"is_active"`
	CreatedAt         time.Time           `json:"created_at"`
}

// IsValid reports whether the coupon can be used at now
func (c *Coupon) IsValid(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return false
	}
	return true
}

// CalculateDiscount returns the discount for amount. The result is always
// within [0, amount] and never above MaxDiscountAmount for percentage coupons.
// Validity and minimum order amount are checked by the caller.
func (c *Coupon) CalculateDiscount(amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = amount.Mul(c.DiscountValue).Div(decimal.NewFromInt(100))
		if c.MaxDiscountAmount.Valid && discount.GreaterThan(c.MaxDiscountAmount.Decimal) {
			discount = c.MaxDiscountAmount.Decimal
		}
	case DiscountFixed:
		discount = c.DiscountValue
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(discount.Round(2), amount)
}
