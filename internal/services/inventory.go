package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
)

// Stock levels that raise an alert after a change
const (
	LowStockBelow  = 3
	RestockedAbove = 7
)

// ClassifyStock maps a stock level to the alert it raises, if any
func ClassifyStock(stock int) (models.StockAlertType, bool) {
	switch {
	case stock > RestockedAbove:
		return models.StockRestocked, true
	case stock < LowStockBelow:
		return models.StockLow, true
	}
	return "", false
}

// StockAlertFor builds the alert for name at stock, if the level crosses a threshold
func StockAlertFor(productID int64, name string, stock int) (models.StockAlert, bool) {
	kind, ok := ClassifyStock(stock)
	if !ok {
		return models.StockAlert{}, false
	}
	alert := models.StockAlert{Type: kind, ProductID: productID, ProductName: name, Stock: stock}
	if kind == models.StockRestocked {
		alert.Message = fmt.Sprintf("We just restocked %s, now have sufficient inventory!", name)
	} else {
		alert.Message = fmt.Sprintf("%s is running low, only %d items left!", name, stock)
	}
	return alert, true
}

// stockChange is the one write path to products.stock. Exactly one of take
// or set applies; both run as a single conditional UPDATE so concurrent
// writers never interleave a read and a write.
type stockChange struct {
	take  int
	set   int
	isSet bool
}

func takeStock(n int) stockChange  { return stockChange{take: n} }
func setStockTo(n int) stockChange { return stockChange{set: n, isSet: true} }

type stockResult struct {
	Product  models.Product
	Previous int
}

// applyStock performs change on product id through q and returns the product
// as it is afterwards. A take larger than the current stock fails with a
// *StockError and leaves the row untouched.
func applyStock(ctx context.Context, q db.Querier, m *metrics.AppMetrics, id int64, change stockChange, now time.Time) (*stockResult, error) {
	var (
		query string
		args  []any
	)
	if change.isSet {
		if change.set < 0 {
			return nil, invalidf("stock cannot be negative")
		}
		query = `UPDATE products SET stock = ?, updated_at = ? WHERE id = ?`
		args = []any{change.set, now, id}
	} else {
		if change.take < 1 {
			return nil, invalidf("quantity must be at least 1")
		}
		query = `UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ? AND stock >= ?`
		args = []any{change.take, now, id, change.take}
	}

	// the previous level is only needed for logging and alerts on admin sets
	var previous int
	if change.isSet {
		prevQuery := `SELECT stock FROM products WHERE id = ?`
		start := time.Now()
		err := q.QueryRowContext(ctx, prevQuery, id).Scan(&previous)
		record(ctx, m, "SELECT", "products", prevQuery, start, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("product", id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read stock: %w", err)
		}
	}

	start := time.Now()
	result, err := q.ExecContext(ctx, query, args...)
	record(ctx, m, "UPDATE", "products", query, start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to update stock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}

	p, err := fetchProduct(ctx, q, m, id)
	if err != nil {
		return nil, err
	}

	// MySQL reports zero affected rows for a set that changes nothing
	if affected == 0 && !change.isSet {
		return nil, &StockError{ProductID: id, ProductName: p.Name, Requested: change.take, Available: p.Stock, Err: ErrInsufficientStock}
	}

	if !change.isSet {
		previous = p.Stock + change.take
	}

	m.InventoryLevel.Record(ctx, int64(p.Stock), m.Attrs(
		attribute.Int64("product_id", id),
		attribute.String("product_category", p.Category),
	))
	return &stockResult{Product: *p, Previous: previous}, nil
}
