package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	productCacheTTL  = 5 * time.Minute
)

// ProductCache holds cached products
type ProductCache struct {
	mu    sync.RWMutex
	items map[int64]cachedProduct
}

type cachedProduct struct {
	product models.Product
	expires time.Time
}

func NewProductCache() *ProductCache {
	return &ProductCache{items: make(map[int64]cachedProduct)}
}

func (c *ProductCache) get(id int64, now time.Time) (models.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.items[id]
	if !ok || !now.Before(cached.expires) {
		return models.Product{}, false
	}
	return cached.product, true
}

func (c *ProductCache) put(p models.Product, expires time.Time) {
	c.mu.Lock()
	c.items[p.ID] = cachedProduct{product: p, expires: expires}
	c.mu.Unlock()
}

// Invalidate drops ids from the cache
func (c *ProductCache) Invalidate(ids ...int64) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.items, id)
	}
	c.mu.Unlock()
}

// Clear drops every cached product
func (c *ProductCache) Clear() {
	c.mu.Lock()
	clear(c.items)
	c.mu.Unlock()
}

// ProductService is the catalog store. Reads go through a short TTL cache;
// every write invalidates the touched product.
type ProductService struct {
	db        *db.DB
	metrics   *metrics.AppMetrics
	logger    *zap.Logger
	publisher Publisher
	cache     *ProductCache
	now       Clock
}

func NewProductService(db *db.DB, m *metrics.AppMetrics, logger *zap.Logger, publisher Publisher) *ProductService {
	return &ProductService{
		db:        db,
		metrics:   m,
		logger:    logger,
		publisher: publisher,
		cache:     NewProductCache(),
		now:       utcNow,
	}
}

// Cache exposes the product cache so stock writers outside the catalog can invalidate it
func (s *ProductService) Cache() *ProductCache {
	return s.cache
}

// List returns products matching filter, ordered by id
func (s *ProductService) List(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	var (
		where []string
		args  []any
	)
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.MinPrice != nil {
		where = append(where, "price >= ?")
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where = append(where, "price <= ?")
		args = append(args, *filter.MaxPrice)
	}
	if filter.Featured {
		where = append(where, "featured = ?")
		args = append(args, true)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	record(ctx, s.metrics, "SELECT", "products", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var p models.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Get returns a product by ID
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	if p, ok := s.cache.get(id, s.now()); ok {
		s.metrics.CacheHits.Add(ctx, 1, s.metrics.Attrs())
		s.recordView(ctx, p)
		return &p, nil
	}
	s.metrics.CacheMisses.Add(ctx, 1, s.metrics.Attrs())

	p, err := fetchProduct(ctx, s.db, s.metrics, id)
	if err != nil {
		return nil, err
	}
	s.cache.put(*p, s.now().Add(productCacheTTL))
	s.recordView(ctx, *p)
	return p, nil
}

func (s *ProductService) recordView(ctx context.Context, p models.Product) {
	s.metrics.ProductsViewed.Add(ctx, 1, s.metrics.Attrs(
		attribute.Int64("product_id", p.ID),
		attribute.String("product_category", p.Category),
	))
}

// Create adds a product to the catalog
func (s *ProductService) Create(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	if err := validateProductInput(&in); err != nil {
		return nil, err
	}
	if in.Stock < 0 {
		return nil, invalidf("stock cannot be negative")
	}

	now := s.now()
	start := time.Now()
	query := `INSERT INTO products (name, slug, description, price, category, subcategory, image, stock, featured, brands, sizes, colours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, in.Name, in.Slug, in.Description, in.Price, in.Category, in.Subcategory,
		in.Image, in.Stock, in.Featured, encodeList(in.Brands), encodeList(in.Sizes), encodeList(in.Colours), now, now)
	record(ctx, s.metrics, "INSERT", "products", query, start, err)
	if db.IsUniqueViolation(err) {
		return nil, invalidf("a product with slug %q already exists", in.Slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get product ID: %w", err)
	}
	p, err := fetchProduct(ctx, s.db, s.metrics, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	s.publisher.Publish(models.EventProductAdded, p)
	return p, nil
}

// Update edits every descriptive field of a product. Stock is left alone;
// it only changes through SetStock or checkout.
func (s *ProductService) Update(ctx context.Context, id int64, in models.ProductInput) (*models.Product, error) {
	if err := validateProductInput(&in); err != nil {
		return nil, err
	}

	start := time.Now()
	query := `UPDATE products SET name = ?, slug = ?, description = ?, price = ?, category = ?, subcategory = ?, image = ?,
		featured = ?, brands = ?, sizes = ?, colours = ?, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, in.Name, in.Slug, in.Description, in.Price, in.Category, in.Subcategory,
		in.Image, in.Featured, encodeList(in.Brands), encodeList(in.Sizes), encodeList(in.Colours), s.now(), id)
	record(ctx, s.metrics, "UPDATE", "products", query, start, err)
	if db.IsUniqueViolation(err) {
		return nil, invalidf("a product with slug %q already exists", in.Slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, notFound("product", id)
	}

	s.cache.Invalidate(id)
	p, err := fetchProduct(ctx, s.db, s.metrics, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("product updated", zap.Int64("product_id", id))
	s.publisher.Publish(models.EventProductUpdated, p)
	return p, nil
}

// Delete removes a product. Cart and wishlist lines that reference it go
// with it; order snapshots are kept.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	query := `DELETE FROM products WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, id)
	record(ctx, s.metrics, "DELETE", "products", query, start, err)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return notFound("product", id)
	}

	s.cache.Invalidate(id)
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	s.publisher.Publish(models.EventProductRemoved, map[string]int64{"id": id})
	return nil
}

// SetStock sets a product's stock directly, then announces the new level
// and any threshold alert.
func (s *ProductService) SetStock(ctx context.Context, id int64, stock int) (*models.Product, error) {
	res, err := applyStock(ctx, s.db, s.metrics, id, setStockTo(stock), s.now())
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(id)

	p := res.Product
	s.logger.Info("stock updated",
		zap.Int64("product_id", id),
		zap.Int("previous", res.Previous),
		zap.Int("stock", p.Stock),
	)
	s.publisher.Publish(models.EventStockUpdated, map[string]any{"product_id": id, "stock": p.Stock})
	if alert, ok := StockAlertFor(p.ID, p.Name, p.Stock); ok {
		s.metrics.StockAlerts.Add(ctx, 1, s.metrics.Attrs(attribute.String("type", string(alert.Type))))
		s.publisher.Publish(models.EventStockAlert, alert)
	}
	return &p, nil
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases name and joins its words with dashes
func Slugify(name string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func validateProductInput(in *models.ProductInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return invalidf("name is required")
	}
	if in.Category == "" {
		return invalidf("category is required")
	}
	if in.Price.IsNegative() {
		return invalidf("price cannot be negative")
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		return invalidf("price cannot have more than two decimal places")
	}
	if in.Slug == "" {
		in.Slug = Slugify(in.Name)
	}
	if in.Slug == "" {
		return invalidf("slug is required")
	}
	return nil
}

// IsStockError reports whether err is a stock rejection and returns it
func IsStockError(err error) (*StockError, bool) {
	var se *StockError
	ok := errors.As(err, &se)
	return se, ok
}
