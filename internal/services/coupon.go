package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CouponValidation is the outcome of a successful validate
type CouponValidation struct {
	Coupon   *models.Coupon  `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
}

// CouponService evaluates and redeems discount codes
type CouponService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     Clock
}

func NewCouponService(db *db.DB, m *metrics.AppMetrics, logger *zap.Logger) *CouponService {
	return &CouponService{db: db, metrics: m, logger: logger, now: utcNow}
}

// CanonicalCode normalises a coupon code as typed by a shopper
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

const couponColumns = `id, code, description, discount_type, discount_value, min_order_amount, max_discount_amount,
	usage_limit, used_count, expires_at, is_active, created_at`

func scanCoupon(row rowScanner, c *models.Coupon) error {
	var (
		limit   sql.NullInt64
		expires sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MinOrderAmount,
		&c.MaxDiscountAmount, &limit, &c.UsedCount, &expires, &c.IsActive, &c.CreatedAt); err != nil {
		return err
	}
	c.UsageLimit = nil
	if limit.Valid {
		n := int(limit.Int64)
		c.UsageLimit = &n
	}
	c.ExpiresAt = nil
	if expires.Valid {
		t := expires.Time
		c.ExpiresAt = &t
	}
	return nil
}

func fetchCoupon(ctx context.Context, q db.Querier, m *metrics.AppMetrics, code string) (*models.Coupon, error) {
	start := time.Now()
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE code = ?`
	var c models.Coupon
	err := scanCoupon(q.QueryRowContext(ctx, query, code), &c)
	record(ctx, m, "SELECT", "coupons", query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("coupon", code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get coupon: %w", err)
	}
	return &c, nil
}

// evaluateCoupon checks c against amount without changing anything
func evaluateCoupon(c *models.Coupon, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.IsValid(now) {
		return decimal.Zero, fmt.Errorf("coupon %s: %w", c.Code, ErrCouponInvalid)
	}
	if amount.LessThan(c.MinOrderAmount) {
		return decimal.Zero, &BelowMinimumError{Code: c.Code, Minimum: c.MinOrderAmount}
	}
	return c.CalculateDiscount(amount), nil
}

// redeemCoupon increments c's used_count by one. The UPDATE re-checks the
// active flag and usage limit, so two concurrent redemptions of a last use
// cannot both succeed.
func redeemCoupon(ctx context.Context, q db.Querier, m *metrics.AppMetrics, c *models.Coupon) error {
	start := time.Now()
	query := `UPDATE coupons SET used_count = used_count + 1
		WHERE id = ? AND is_active = ? AND (usage_limit IS NULL OR used_count < usage_limit)`
	result, err := q.ExecContext(ctx, query, c.ID, true)
	record(ctx, m, "UPDATE", "coupons", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to apply coupon: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("coupon %s: %w", c.Code, ErrCouponInvalid)
	}

	c.UsedCount++
	m.CouponRedemptions.Add(ctx, 1, m.Attrs(
		attribute.String("coupon_code", c.Code),
		attribute.String("discount_type", string(c.DiscountType)),
	))
	return nil
}

// Validate returns the discount code gives on amount. Nothing is persisted.
func (s *CouponService) Validate(ctx context.Context, code string, amount decimal.Decimal) (*CouponValidation, error) {
	code = CanonicalCode(code)
	if code == "" {
		return nil, invalidf("coupon code is required")
	}
	if amount.IsNegative() {
		return nil, invalidf("order amount cannot be negative")
	}

	c, err := fetchCoupon(ctx, s.db, s.metrics, code)
	if err != nil {
		return nil, err
	}
	discount, err := evaluateCoupon(c, amount, s.now())
	if err != nil {
		s.logger.Debug("coupon rejected", zap.String("code", code), zap.Error(err))
		return nil, err
	}
	return &CouponValidation{Coupon: c, Discount: discount}, nil
}

// Apply records one use of code. It does not depend on a prior Validate.
func (s *CouponService) Apply(ctx context.Context, code string) (*models.Coupon, error) {
	code = CanonicalCode(code)
	if code == "" {
		return nil, invalidf("coupon code is required")
	}
	c, err := fetchCoupon(ctx, s.db, s.metrics, code)
	if err != nil {
		return nil, err
	}
	if !c.IsValid(s.now()) {
		return nil, fmt.Errorf("coupon %s: %w", c.Code, ErrCouponInvalid)
	}
	if err := redeemCoupon(ctx, s.db, s.metrics, c); err != nil {
		return nil, err
	}
	s.logger.Info("coupon applied", zap.String("code", c.Code), zap.Int("used_count", c.UsedCount))
	return c, nil
}

// Get returns a coupon by code
func (s *CouponService) Get(ctx context.Context, code string) (*models.Coupon, error) {
	return fetchCoupon(ctx, s.db, s.metrics, CanonicalCode(code))
}

// List returns all coupons, newest first
func (s *CouponService) List(ctx context.Context) ([]models.Coupon, error) {
	start := time.Now()
	query := `SELECT ` + couponColumns + ` FROM coupons ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	record(ctx, s.metrics, "SELECT", "coupons", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons: %w", err)
	}
	defer rows.Close()

	coupons := []models.Coupon{}
	for rows.Next() {
		var c models.Coupon
		if err := scanCoupon(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

// Create adds an active coupon
func (s *CouponService) Create(ctx context.Context, in models.CouponInput) (*models.Coupon, error) {
	in.Code = CanonicalCode(in.Code)
	switch {
	case in.Code == "":
		return nil, invalidf("coupon code is required")
	case in.DiscountType != models.DiscountPercentage && in.DiscountType != models.DiscountFixed:
		return nil, invalidf("discount type must be %q or %q", models.DiscountPercentage, models.DiscountFixed)
	case in.DiscountValue.IsNegative():
		return nil, invalidf("discount value cannot be negative")
	case in.DiscountType == models.DiscountPercentage && in.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return nil, invalidf("percentage discount cannot exceed 100")
	case in.MinOrderAmount.IsNegative():
		return nil, invalidf("minimum order amount cannot be negative")
	case in.MaxDiscountAmount.Valid && in.MaxDiscountAmount.Decimal.IsNegative():
		return nil, invalidf("maximum discount cannot be negative")
	case in.UsageLimit != nil && *in.UsageLimit < 1:
		return nil, invalidf("usage limit must be at least 1")
	}

	var expires any
	if in.ExpiresAt != nil {
		expires = in.ExpiresAt.UTC()
	}
	var limit any
	if in.UsageLimit != nil {
		limit = *in.UsageLimit
	}

	start := time.Now()
	query := `INSERT INTO coupons (code, description, discount_type, discount_value, min_order_amount, max_discount_amount,
		usage_limit, used_count, expires_at, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, in.Code, in.Description, string(in.DiscountType), in.DiscountValue,
		in.MinOrderAmount, in.MaxDiscountAmount, limit, expires, true, s.now())
	record(ctx, s.metrics, "INSERT", "coupons", query, start, err)
	if db.IsUniqueViolation(err) {
		return nil, invalidf("coupon %s already exists", in.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.logger.Info("coupon created", zap.String("code", in.Code))
	return fetchCoupon(ctx, s.db, s.metrics, in.Code)
}

// Delete removes a coupon by id
func (s *CouponService) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	query := `DELETE FROM coupons WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	record(ctx, s.metrics, "DELETE", "coupons", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return notFound("coupon", id)
	}
	s.logger.Info("coupon deleted", zap.Int64("coupon_id", id))
	return nil
}
