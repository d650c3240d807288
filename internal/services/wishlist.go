package services

import (
	"context"
	"fmt"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"go.uber.org/zap"
)

// WishlistService keeps saved products per owner. It never touches stock.
type WishlistService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     Clock
}

func NewWishlistService(db *db.DB, m *metrics.AppMetrics, logger *zap.Logger) *WishlistService {
	return &WishlistService{db: db, metrics: m, logger: logger, now: utcNow}
}

// GetOrCreate returns the owner's wishlist, creating an empty one if needed
func (s *WishlistService) GetOrCreate(ctx context.Context, owner models.Owner) (*models.Wishlist, error) {
	rec, err := getOrCreateOwned(ctx, s.db, s.metrics, "wishlists", owner, s.now())
	if err != nil {
		return nil, err
	}
	return s.load(ctx, owner, rec)
}

// AddItem saves a product. Saving a product twice is reported in the
// result, not as an error.
func (s *WishlistService) AddItem(ctx context.Context, owner models.Owner, productID int64) (*models.WishlistAddResult, error) {
	if _, err := fetchProduct(ctx, s.db, s.metrics, productID); err != nil {
		return nil, err
	}

	now := s.now()
	rec, err := getOrCreateOwned(ctx, s.db, s.metrics, "wishlists", owner, now)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	query := "INSERT INTO wishlist_items (wishlist_id, product_id, added_at) VALUES (?, ?, ?)"
	_, err = s.db.ExecContext(ctx, query, rec.ID, productID, now)
	record(ctx, s.metrics, "INSERT", "wishlist_items", query, start, err)

	result := &models.WishlistAddResult{Added: true}
	switch {
	case db.IsUniqueViolation(err):
		result.Added = false
		result.Message = "Product already in wishlist"
	case err != nil:
		return nil, fmt.Errorf("failed to add item to wishlist: %w", err)
	default:
		if err := touchOwned(ctx, s.db, s.metrics, "wishlists", rec.ID, now); err != nil {
			return nil, err
		}
	}

	result.Wishlist, err = s.load(ctx, owner, rec)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("wishlist add", zap.Stringer("owner", owner), zap.Int64("product_id", productID), zap.Bool("added", result.Added))
	return result, nil
}

// RemoveItem unsaves a product. Removing an absent item is not an error.
func (s *WishlistService) RemoveItem(ctx context.Context, owner models.Owner, productID int64) (*models.Wishlist, error) {
	rec, found, err := findOwned(ctx, s.db, s.metrics, "wishlists", owner)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Wishlist{Owner: owner, Items: []models.WishlistItem{}}, nil
	}

	start := time.Now()
	query := "DELETE FROM wishlist_items WHERE wishlist_id = ? AND product_id = ?"
	_, err = s.db.ExecContext(ctx, query, rec.ID, productID)
	record(ctx, s.metrics, "DELETE", "wishlist_items", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to remove item from wishlist: %w", err)
	}
	return s.load(ctx, owner, rec)
}

// Clear deletes the owner's wishlist. Clearing an absent wishlist is a no-op.
func (s *WishlistService) Clear(ctx context.Context, owner models.Owner) error {
	_, err := deleteOwned(ctx, s.db, s.metrics, "wishlists", "wishlist_items", "wishlist_id", owner)
	return err
}

// Count returns how many products the owner has saved
func (s *WishlistService) Count(ctx context.Context, owner models.Owner) (int, error) {
	start := time.Now()
	query := `SELECT COUNT(*) FROM wishlist_items wi
		JOIN wishlists w ON w.id = wi.wishlist_id
		WHERE w.owner_kind = ? AND w.owner_id = ?`
	var n int
	err := s.db.QueryRowContext(ctx, query, string(owner.Kind()), owner.ID()).Scan(&n)
	record(ctx, s.metrics, "SELECT", "wishlist_items", query, start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count wishlist items: %w", err)
	}
	return n, nil
}

// GetWithProducts returns saved products with current details, most recent first
func (s *WishlistService) GetWithProducts(ctx context.Context, owner models.Owner) (*models.WishlistView, error) {
	view := &models.WishlistView{Items: []models.WishlistLine{}}

	rec, found, err := findOwned(ctx, s.db, s.metrics, "wishlists", owner)
	if err != nil || !found {
		return view, err
	}

	start := time.Now()
	query := `SELECT wi.product_id, wi.added_at, ` + prefixed("p", productColumns) + `
		FROM wishlist_items wi
		JOIN products p ON p.id = wi.product_id
		WHERE wi.wishlist_id = ?
		ORDER BY wi.id DESC`
	rows, err := s.db.QueryContext(ctx, query, rec.ID)
	record(ctx, s.metrics, "SELECT", "wishlist_items", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line models.WishlistLine
		scanner := prefixScanner{rows: rows, prefix: []any{&line.ProductID, &line.AddedAt}}
		if err := scanProduct(scanner, &line.Product); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		view.Items = append(view.Items, line)
	}
	return view, rows.Err()
}

func (s *WishlistService) load(ctx context.Context, owner models.Owner, rec ownedRecord) (*models.Wishlist, error) {
	start := time.Now()
	query := "SELECT product_id, added_at FROM wishlist_items WHERE wishlist_id = ? ORDER BY id"
	rows, err := s.db.QueryContext(ctx, query, rec.ID)
	record(ctx, s.metrics, "SELECT", "wishlist_items", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist items: %w", err)
	}
	defer rows.Close()

	w := &models.Wishlist{
		ID:        rec.ID,
		Owner:     owner,
		Items:     []models.WishlistItem{},
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	for rows.Next() {
		var item models.WishlistItem
		if err := rows.Scan(&item.ProductID, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wishlist item: %w", err)
		}
		w.Items = append(w.Items, item)
	}
	return w, rows.Err()
}
