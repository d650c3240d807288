package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CartService handles cart-related operations. Stock is only read here,
// never written.
type CartService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     Clock
}

func NewCartService(db *db.DB, m *metrics.AppMetrics, logger *zap.Logger) *CartService {
	return &CartService{db: db, metrics: m, logger: logger, now: utcNow}
}

// MonitorActiveCarts periodically records how many carts hold items, until ctx is done
func (s *CartService) MonitorActiveCarts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			query := "SELECT COUNT(DISTINCT cart_id) FROM cart_items"
			start := time.Now()
			var count int
			err := s.db.QueryRowContext(ctx, query).Scan(&count)
			record(ctx, s.metrics, "SELECT", "cart_items", query, start, err)
			if err != nil {
				s.logger.Warn("failed to count active carts", zap.Error(err))
				continue
			}
			s.metrics.ActiveCartsCount.Record(ctx, int64(count), s.metrics.Attrs())
		}
	}
}

// GetOrCreate returns the owner's cart, creating an empty one if needed
func (s *CartService) GetOrCreate(ctx context.Context, owner models.Owner) (*models.Cart, error) {
	if _, err := getOrCreateOwned(ctx, s.db, s.metrics, "carts", owner, s.now()); err != nil {
		return nil, err
	}
	return loadCart(ctx, s.db, s.metrics, owner)
}

// AddItem adds quantity units of a product. The line is capped at the
// product's stock and re-priced at the current product price.
func (s *CartService) AddItem(ctx context.Context, owner models.Owner, productID int64, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, invalidf("quantity must be at least 1")
	}

	product, err := fetchProduct(ctx, s.db, s.metrics, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock <= 0 {
		return nil, &StockError{ProductID: product.ID, ProductName: product.Name, Requested: quantity, Err: ErrOutOfStock}
	}

	rec, err := getOrCreateOwned(ctx, s.db, s.metrics, "carts", owner, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.upsertLine(ctx, rec.ID, product, quantity, true); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, owner, rec.ID)
}

// SetQuantity sets a line to quantity, clamped to [1, stock]. A quantity of
// zero or less removes the line.
func (s *CartService) SetQuantity(ctx context.Context, owner models.Owner, productID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, owner, productID)
	}

	product, err := fetchProduct(ctx, s.db, s.metrics, productID)
	if err != nil {
		return nil, err
	}
	if product.Stock <= 0 {
		return nil, &StockError{ProductID: product.ID, ProductName: product.Name, Requested: quantity, Err: ErrOutOfStock}
	}

	rec, err := getOrCreateOwned(ctx, s.db, s.metrics, "carts", owner, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.upsertLine(ctx, rec.ID, product, quantity, false); err != nil {
		return nil, err
	}
	return s.afterMutation(ctx, owner, rec.ID)
}

// RemoveItem drops a product's line. Removing an absent line is not an error.
func (s *CartService) RemoveItem(ctx context.Context, owner models.Owner, productID int64) (*models.Cart, error) {
	rec, found, err := findOwned(ctx, s.db, s.metrics, "carts", owner)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Cart{Owner: owner, Items: []models.CartItem{}, Total: decimal.Zero}, nil
	}

	start := time.Now()
	query := "DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?"
	_, err = s.db.ExecContext(ctx, query, rec.ID, productID)
	record(ctx, s.metrics, "DELETE", "cart_items", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to remove item from cart: %w", err)
	}
	return s.afterMutation(ctx, owner, rec.ID)
}

// Clear deletes the owner's cart entirely. Clearing an absent cart is a no-op.
func (s *CartService) Clear(ctx context.Context, owner models.Owner) error {
	if _, err := deleteOwned(ctx, s.db, s.metrics, "carts", "cart_items", "cart_id", owner); err != nil {
		return err
	}
	s.recordItemCount(ctx, owner, 0)
	return nil
}

// GetWithProducts returns the cart joined with current product details. An
// owner without a cart gets an empty view.
func (s *CartService) GetWithProducts(ctx context.Context, owner models.Owner) (*models.CartView, error) {
	view := &models.CartView{Items: []models.CartLine{}, Total: decimal.Zero}

	rec, found, err := findOwned(ctx, s.db, s.metrics, "carts", owner)
	if err != nil || !found {
		return view, err
	}

	start := time.Now()
	query := `SELECT ci.id, ci.product_id, ci.quantity, ci.unit_price, ci.created_at, ci.updated_at, ` + prefixed("p", productColumns) + `
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = ?
		ORDER BY ci.id`
	rows, err := s.db.QueryContext(ctx, query, rec.ID)
	record(ctx, s.metrics, "SELECT", "cart_items", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.CartLine
		var itemCreated, itemUpdated time.Time
		scanner := prefixScanner{rows: rows, prefix: []any{
			&line.ID, &line.ProductID, &line.Quantity, &line.UnitPrice, &itemCreated, &itemUpdated,
		}}
		if err := scanProduct(scanner, &line.Product); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		line.CreatedAt, line.UpdatedAt = itemCreated, itemUpdated
		line.LineTotal = line.CartItem.LineTotal()
		view.Items = append(view.Items, line)
		view.Total = view.Total.Add(line.LineTotal)
		view.ItemCount += line.Quantity
	}
	return view, rows.Err()
}

// prefixScanner scans leading columns into prefix and hands the rest to the
// wrapped destination list
type prefixScanner struct {
	rows   *sql.Rows
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.rows.Scan(append(append([]any{}, p.prefix...), dest...)...)
}

// upsertLineQuery writes a cart line in one statement so concurrent requests
// for the same product never race between a read and an insert. With add the
// stored quantity grows by the inserted amount, otherwise it is replaced;
// either way it is capped by the last argument.
func upsertLineQuery(d db.Dialect, add bool) string {
	insert := "INSERT INTO cart_items (cart_id, product_id, quantity, unit_price, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)"
	if d == db.MySQL {
		qty := "LEAST(VALUES(quantity), ?)"
		if add {
			qty = "LEAST(quantity + VALUES(quantity), ?)"
		}
		return insert + " ON DUPLICATE KEY UPDATE quantity = " + qty +
			", unit_price = VALUES(unit_price), updated_at = VALUES(updated_at)"
	}
	qty := "MIN(excluded.quantity, ?)"
	if add {
		qty = "MIN(cart_items.quantity + excluded.quantity, ?)"
	}
	return insert + " ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = " + qty +
		", unit_price = excluded.unit_price, updated_at = excluded.updated_at"
}

// upsertLine stores quantity units of product at its current price, never
// more than the product's stock
func (s *CartService) upsertLine(ctx context.Context, cartID int64, product *models.Product, quantity int, add bool) error {
	now := s.now()
	start := time.Now()
	query := upsertLineQuery(s.db.Dialect(), add)
	_, err := s.db.ExecContext(ctx, query, cartID, product.ID, min(quantity, product.Stock), product.Price, now, now, product.Stock)
	record(ctx, s.metrics, "UPSERT", "cart_items", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to save cart item: %w", err)
	}
	return touchOwned(ctx, s.db, s.metrics, "carts", cartID, now)
}

func (s *CartService) afterMutation(ctx context.Context, owner models.Owner, cartID int64) (*models.Cart, error) {
	cart, err := loadCart(ctx, s.db, s.metrics, owner)
	if err != nil {
		return nil, err
	}
	count := 0
	for _, it := range cart.Items {
		count += it.Quantity
	}
	s.recordItemCount(ctx, owner, count)
	s.logger.Debug("cart updated",
		zap.Stringer("owner", owner),
		zap.Int64("cart_id", cartID),
		zap.Int("items", count),
		zap.String("total", cart.Total.StringFixed(2)),
	)
	return cart, nil
}

func (s *CartService) recordItemCount(ctx context.Context, owner models.Owner, count int) {
	s.metrics.CartItemsCount.Record(ctx, int64(count), s.metrics.Attrs(attribute.String("owner_kind", string(owner.Kind()))))
}

// loadCart returns nil without error when the owner has no cart
func loadCart(ctx context.Context, q db.Querier, m *metrics.AppMetrics, owner models.Owner) (*models.Cart, error) {
	rec, found, err := findOwned(ctx, q, m, "carts", owner)
	if err != nil || !found {
		return nil, err
	}

	start := time.Now()
	query := "SELECT id, product_id, quantity, unit_price, created_at, updated_at FROM cart_items WHERE cart_id = ? ORDER BY id"
	rows, err := q.QueryContext(ctx, query, rec.ID)
	record(ctx, m, "SELECT", "cart_items", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	defer rows.Close()

	cart := &models.Cart{
		ID:        rec.ID,
		Owner:     owner,
		Items:     []models.CartItem{},
		Total:     decimal.Zero,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
		cart.Total = cart.Total.Add(item.LineTotal())
	}
	return cart, rows.Err()
}
