package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/effects"
	"github.com/SigNoz/storefront-go-app/internal/mailer"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderConfig carries the storefront settings the order assembler needs
type OrderConfig struct {
	StoreName       string
	TrackingURLBase string
	// NotifyDelay holds back stock alerts so a client moving to the
	// confirmation page can resubscribe first
	NotifyDelay time.Duration
}

// OrderService turns carts into orders
type OrderService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	logger    *zap.Logger
	products  *ProductService
	mailer    mailer.Mailer
	publisher Publisher
	cfg       OrderConfig
	now       Clock
	suffix    func() string
}

func NewOrderService(db *db.DB, m *metrics.AppMetrics, logger *zap.Logger, products *ProductService,
	sender mailer.Mailer, publisher Publisher, cfg OrderConfig) *OrderService {
	return &OrderService{
		db:        db,
		metrics:   m,
		logger:    logger,
		products:  products,
		mailer:    sender,
		publisher: publisher,
		cfg:       cfg,
		now:       utcNow,
		suffix:    randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:5])
}

func (s *OrderService) newOrderNumber(at time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", at.UnixMilli(), s.suffix())
}

// Checkout converts the owner's cart into a pending order.
//
// Everything up to and including clearing the cart runs in one transaction:
// stock is taken line by line in cart order with a conditional decrement, so
// a line that cannot be filled rolls back every earlier decrement and no
// order is created. The returned effects (stock alerts and the confirmation
// email) must be run only after the caller has answered the request.
func (s *OrderService) Checkout(ctx context.Context, owner models.Owner, req models.CheckoutRequest) (*models.Order, []effects.Effect, error) {
	if err := validateCheckout(&req); err != nil {
		return nil, nil, s.checkoutFailed(ctx, owner, err)
	}

	var (
		order   *models.Order
		alerts  []models.StockAlert
		touched []int64
		byCat   map[string]decimal.Decimal
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		alerts, touched, byCat = nil, nil, map[string]decimal.Decimal{}

		// concurrent checkouts of one cart queue on this lock; the loser
		// finds the cart gone
		locked, err := lockOwned(ctx, tx, s.metrics, s.db.Dialect(), "carts", owner)
		if err != nil {
			return err
		}
		if !locked {
			return ErrEmptyCart
		}
		cart, err := loadCart(ctx, tx, s.metrics, owner)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		order = &models.Order{
			Owner:         owner,
			CustomerInfo:  req.CustomerInfo,
			Items:         make([]models.OrderItem, 0, len(cart.Items)),
			Subtotal:      decimal.Zero,
			Discount:      decimal.Zero,
			PaymentMethod: req.PaymentMethod,
			Status:        models.OrderPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		for _, item := range cart.Items {
			res, err := applyStock(ctx, tx, s.metrics, item.ProductID, takeStock(item.Quantity), now)
			if err != nil {
				return err
			}
			p := res.Product
			touched = append(touched, p.ID)
			if alert, ok := StockAlertFor(p.ID, p.Name, p.Stock); ok {
				alerts = append(alerts, alert)
			}

			line := models.OrderItem{ProductID: p.ID, Name: p.Name, Price: item.UnitPrice, Quantity: item.Quantity}
			order.Items = append(order.Items, line)
			order.Subtotal = order.Subtotal.Add(line.LineTotal())
			byCat[p.Category] = byCat[p.Category].Add(line.LineTotal())
		}

		if req.CouponCode != "" {
			c, err := fetchCoupon(ctx, tx, s.metrics, req.CouponCode)
			if err != nil {
				return err
			}
			discount, err := evaluateCoupon(c, order.Subtotal, now)
			if err != nil {
				return err
			}
			if err := redeemCoupon(ctx, tx, s.metrics, c); err != nil {
				return err
			}
			order.Discount = discount
			order.CouponCode = c.Code
		}
		order.Total = order.Subtotal.Sub(order.Discount)

		if err := s.insertOrder(ctx, tx, order); err != nil {
			return err
		}
		deleted, err := deleteOwned(ctx, tx, s.metrics, "carts", "cart_items", "cart_id", owner)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrEmptyCart
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.checkoutFailed(ctx, owner, err)
	}

	s.products.Cache().Invalidate(touched...)
	s.recordOrder(ctx, order, byCat)
	s.logger.Info("order created",
		zap.String("order_number", order.OrderNumber),
		zap.Stringer("owner", owner),
		zap.Int("items", len(order.Items)),
		zap.String("subtotal", order.Subtotal.StringFixed(2)),
		zap.String("discount", order.Discount.StringFixed(2)),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("stock_alerts", len(alerts)),
	)
	return order, s.checkoutEffects(*order, alerts), nil
}

func validateCheckout(req *models.CheckoutRequest) error {
	info := &req.CustomerInfo
	info.Email = strings.TrimSpace(info.Email)
	info.FirstName = strings.TrimSpace(info.FirstName)
	info.LastName = strings.TrimSpace(info.LastName)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.CouponCode = CanonicalCode(req.CouponCode)

	if info.Email == "" {
		return invalidf("customer email is required")
	}
	if _, err := mail.ParseAddress(info.Email); err != nil {
		return invalidf("customer email %q is not valid", info.Email)
	}
	if req.PaymentMethod == "" {
		return invalidf("payment method is required")
	}
	return nil
}

func (s *OrderService) checkoutFailed(ctx context.Context, owner models.Owner, err error) error {
	reason := ErrorCode(err)
	s.metrics.CheckoutsFailed.Add(ctx, 1, s.metrics.Attrs(attribute.String("reason", reason)))
	if IsBusiness(err) {
		s.logger.Info("checkout rejected", zap.Stringer("owner", owner), zap.String("reason", reason), zap.Error(err))
	} else {
		s.logger.Error("checkout failed", zap.Stringer("owner", owner), zap.Error(err))
	}
	return err
}

func (s *OrderService) insertOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	info, err := json.Marshal(order.CustomerInfo)
	if err != nil {
		return fmt.Errorf("failed to encode customer info: %w", err)
	}

	query := `INSERT INTO orders (order_number, owner_kind, owner_id, customer_info, subtotal, discount, total,
		coupon_code, payment_method, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var result sql.Result
	// a second attempt with a fresh suffix covers the rare number collision
	for attempt := 0; attempt < 2; attempt++ {
		order.OrderNumber = s.newOrderNumber(order.CreatedAt)
		start := time.Now()
		result, err = tx.ExecContext(ctx, query, order.OrderNumber, string(order.Owner.Kind()), order.Owner.ID(), string(info),
			order.Subtotal, order.Discount, order.Total, order.CouponCode, order.PaymentMethod, string(order.Status),
			order.CreatedAt, order.UpdatedAt)
		record(ctx, s.metrics, "INSERT", "orders", query, start, err)
		if !db.IsUniqueViolation(err) {
			break
		}
		s.logger.Warn("order number collision", zap.String("order_number", order.OrderNumber))
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	order.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order ID: %w", err)
	}

	itemQuery := "INSERT INTO order_items (order_id, product_id, name, price, quantity) VALUES (?, ?, ?, ?, ?)"
	for _, item := range order.Items {
		start := time.Now()
		_, err := tx.ExecContext(ctx, itemQuery, order.ID, item.ProductID, item.Name, item.Price, item.Quantity)
		record(ctx, s.metrics, "INSERT", "order_items", itemQuery, start, err)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}
	return nil
}

// recordOrder reports the order and its revenue per product category
func (s *OrderService) recordOrder(ctx context.Context, order *models.Order, byCategory map[string]decimal.Decimal) {
	s.metrics.OrdersCreated.Add(ctx, 1, s.metrics.Attrs(
		attribute.String("order_status", string(order.Status)),
		attribute.String("payment_method", order.PaymentMethod),
		attribute.Bool("coupon_applied", order.CouponCode != ""),
	))
	for category, amount := range byCategory {
		s.metrics.RevenueTotal.Add(ctx, amount.InexactFloat64(), s.metrics.Attrs(
			attribute.String("product_category", category),
			attribute.String("payment_method", order.PaymentMethod),
		))
	}
	s.metrics.CartItemsCount.Record(ctx, 0, s.metrics.Attrs(attribute.String("owner_kind", string(order.Owner.Kind()))))
}

func (s *OrderService) checkoutEffects(order models.Order, alerts []models.StockAlert) []effects.Effect {
	out := make([]effects.Effect, 0, len(alerts)+1)
	for _, alert := range alerts {
		out = append(out, effects.Effect{
			Name:  fmt.Sprintf("stock-alert:%d", alert.ProductID),
			Kind:  effects.Notification,
			Delay: s.cfg.NotifyDelay,
			Run: func(ctx context.Context) error {
				s.metrics.StockAlerts.Add(ctx, 1, s.metrics.Attrs(attribute.String("type", string(alert.Type))))
				s.publisher.Publish(models.EventStockAlert, alert)
				return nil
			},
		})
	}
	out = append(out, effects.Effect{
		Name: "order-confirmation:" + order.OrderNumber,
		Kind: effects.Email,
		Run: func(ctx context.Context) error {
			return s.sendConfirmation(ctx, &order)
		},
	})
	return out
}

func (s *OrderService) sendConfirmation(ctx context.Context, order *models.Order) error {
	msg, err := mailer.RenderOrderConfirmation(order, s.cfg.StoreName, s.cfg.TrackingURLBase)
	if err != nil {
		return fmt.Errorf("failed to render confirmation: %w", err)
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.EmailsFailed.Add(ctx, 1, s.metrics.Attrs(attribute.String("template", "order_confirmation")))
		return fmt.Errorf("%w: confirmation for %s: %v", ErrDependency, order.OrderNumber, err)
	}
	s.metrics.EmailsSent.Add(ctx, 1, s.metrics.Attrs(attribute.String("template", "order_confirmation")))
	return nil
}

const orderColumns = `id, order_number, owner_kind, owner_id, customer_info, subtotal, discount, total,
	coupon_code, payment_method, status, created_at, updated_at`

func scanOrder(row rowScanner, o *models.Order) error {
	var kind, ownerID, info, status string
	if err := row.Scan(&o.ID, &o.OrderNumber, &kind, &ownerID, &info, &o.Subtotal, &o.Discount, &o.Total,
		&o.CouponCode, &o.PaymentMethod, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	owner, err := models.ParseOwner(kind, ownerID)
	if err != nil {
		return fmt.Errorf("order %s: %w", o.OrderNumber, err)
	}
	o.Owner = owner
	o.Status = models.OrderStatus(status)
	if err := json.Unmarshal([]byte(info), &o.CustomerInfo); err != nil {
		return fmt.Errorf("failed to decode customer info for %s: %w", o.OrderNumber, err)
	}
	return nil
}

// GetByOrderNumber returns an order with its line items
func (s *OrderService) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	start := time.Now()
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = ?`
	var order models.Order
	err := scanOrder(s.db.QueryRowContext(ctx, query, orderNumber), &order)
	record(ctx, s.metrics, "SELECT", "orders", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", orderNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	if err := s.loadItems(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListForOwner returns the owner's orders, newest first
func (s *OrderService) ListForOwner(ctx context.Context, owner models.Owner) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_kind = ? AND owner_id = ? ORDER BY id DESC`
	return s.list(ctx, query, string(owner.Kind()), owner.ID())
}

// ListAll returns every order, newest first
func (s *OrderService) ListAll(ctx context.Context, limit, offset int) ([]models.Order, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY id DESC LIMIT ? OFFSET ?`
	return s.list(ctx, query, limit, offset)
}

func (s *OrderService) list(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	record(ctx, s.metrics, "SELECT", "orders", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	orders := []models.Order{}
	for rows.Next() {
		var o models.Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems fills the line items of orders with one query
func (s *OrderService) loadItems(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Order, len(orders))
	placeholders := make([]string, len(orders))
	args := make([]any, len(orders))
	for i, o := range orders {
		o.Items = []models.OrderItem{}
		byID[o.ID] = o
		placeholders[i] = "?"
		args[i] = o.ID
	}

	start := time.Now()
	query := `SELECT order_id, product_id, name, price, quantity FROM order_items
		WHERE order_id IN (` + strings.Join(placeholders, ",") + `) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	record(ctx, s.metrics, "SELECT", "order_items", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			item    models.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

// UpdateStatus moves an order to status. It is the only change an order
// accepts after creation.
func (s *OrderService) UpdateStatus(ctx context.Context, orderNumber string, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, invalidf("unknown order status %q", status)
	}

	start := time.Now()
	query := "UPDATE orders SET status = ?, updated_at = ? WHERE order_number = ?"
	_, err := s.db.ExecContext(ctx, query, string(status), s.now(), orderNumber)
	record(ctx, s.metrics, "UPDATE", "orders", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	// MySQL reports zero rows affected for an unchanged status, so existence
	// is confirmed by reading the order back
	order, err := s.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	s.metrics.OrderStatusUpdates.Add(ctx, 1, s.metrics.Attrs(attribute.String("order_status", string(status))))
	s.logger.Info("order status updated", zap.String("order_number", orderNumber), zap.String("status", string(status)))
	s.publisher.Publish(models.EventOrderUpdated, map[string]string{
		"order_number": order.OrderNumber,
		"status":       string(order.Status),
	})
	return order, nil
}
