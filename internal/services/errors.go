package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors. Callers match them with errors.Is; the API layer maps
// them to status codes.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrOutOfStock         = errors.New("product is out of stock")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCouponInvalid      = errors.New("coupon is invalid or expired")
	ErrCouponBelowMinimum = errors.New("order amount is below the coupon minimum")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUnauthorized       = errors.New("not allowed")
	ErrDependency         = errors.New("dependency failed")
)

// StockError reports which product blocked a cart or checkout change
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
	Err         error
}

func (e *StockError) Error() string {
	if errors.Is(e.Err, ErrOutOfStock) {
		return fmt.Sprintf("%s is out of stock", e.ProductName)
	}
	return fmt.Sprintf("Not enough stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return e.Err }

// BelowMinimumError carries the minimum order amount a coupon needs
type BelowMinimumError struct {
	Code    string
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum order amount for %s is $%s", e.Code, e.Minimum.StringFixed(2))
}

func (e *BelowMinimumError) Unwrap() error { return ErrCouponBelowMinimum }

func notFound(what string, key any) error {
	return fmt.Errorf("%s %v: %w", what, key, ErrNotFound)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrValidation, "validation"},
	{ErrOutOfStock, "out_of_stock"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrEmptyCart, "empty_cart"},
	{ErrCouponInvalid, "coupon_invalid"},
	{ErrCouponBelowMinimum, "coupon_below_minimum"},
	{ErrUnauthenticated, "unauthenticated"},
	{ErrUnauthorized, "unauthorized"},
	{ErrDependency, "dependency"},
}

// ErrorCode returns the machine-readable code for err, or "internal" when
// err matches none of the sentinels
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// IsBusiness reports whether err is an expected rejection rather than a fault
func IsBusiness(err error) bool {
	switch ErrorCode(err) {
	case "internal", "dependency":
		return false
	}
	return true
}
