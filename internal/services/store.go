package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
)

// Publisher is the fire-and-forget side of the notification channel
type Publisher interface {
	Publish(event string, payload any)
}

// NopPublisher discards events, for offline commands with no subscribers
type NopPublisher struct{}

func (NopPublisher) Publish(string, any) {}

// Clock returns the current time; services take one so tests can pin it
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// record reports one query to metrics. sql.ErrNoRows counts as success.
func record(ctx context.Context, m *metrics.AppMetrics, op, table, query string, start time.Time, err error) {
	m.RecordDBQuery(ctx, op, table, query, start, err == nil || errors.Is(err, sql.ErrNoRows))
}

const productColumns = `id, name, slug, description, price, category, subcategory, image, stock, featured, brands, sizes, colours, created_at, updated_at`

// prefixed qualifies each column in cols with alias
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *models.Product) error {
	var brands, sizes, colours string
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.Price, &p.Category, &p.Subcategory,
		&p.Image, &p.Stock, &p.Featured, &brands, &sizes, &colours, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	for _, f := range []struct {
		raw string
		dst *[]string
	}{{brands, &p.Brands}, {sizes, &p.Sizes}, {colours, &p.Colours}} {
		*f.dst = []string{}
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return fmt.Errorf("failed to decode product %d attributes: %w", p.ID, err)
		}
	}
	return nil
}

func encodeList(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, _ := json.Marshal(values)
	return string(b)
}

// fetchProduct reads a product straight from q, bypassing the catalog cache
func fetchProduct(ctx context.Context, q db.Querier, m *metrics.AppMetrics, id int64) (*models.Product, error) {
	start := time.Now()
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	var p models.Product
	err := scanProduct(q.QueryRowContext(ctx, query, id), &p)
	record(ctx, m, "SELECT", "products", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ownedRecord is the shared header of carts and wishlists
type ownedRecord struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// findOwned looks up the row for owner in table (carts or wishlists).
// found is false when the owner has none.
func findOwned(ctx context.Context, q db.Querier, m *metrics.AppMetrics, table string, owner models.Owner) (rec ownedRecord, found bool, err error) {
	start := time.Now()
	query := `SELECT id, created_at, updated_at FROM ` + table + ` WHERE owner_kind = ? AND owner_id = ?`
	err = q.QueryRowContext(ctx, query, string(owner.Kind()), owner.ID()).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	record(ctx, m, "SELECT", table, query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("failed to get %s: %w", table, err)
	}
	return rec, true, nil
}

// getOrCreateOwned returns the owner's row in table, inserting it when absent
func getOrCreateOwned(ctx context.Context, q db.Querier, m *metrics.AppMetrics, table string, owner models.Owner, now time.Time) (ownedRecord, error) {
	if owner.IsZero() {
		return ownedRecord{}, invalidf("owner is required")
	}

	rec, found, err := findOwned(ctx, q, m, table, owner)
	if err != nil || found {
		return rec, err
	}

	start := time.Now()
	query := `INSERT INTO ` + table + ` (owner_kind, owner_id, created_at, updated_at) VALUES (?, ?, ?, ?)`
	result, err := q.ExecContext(ctx, query, string(owner.Kind()), owner.ID(), now, now)
	record(ctx, m, "INSERT", table, query, start, err)
	if db.IsUniqueViolation(err) {
		// created concurrently by another request
		rec, _, err = findOwned(ctx, q, m, table, owner)
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("failed to create %s: %w", table, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return rec, fmt.Errorf("failed to get %s ID: %w", table, err)
	}
	return ownedRecord{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func touchOwned(ctx context.Context, q db.Querier, m *metrics.AppMetrics, table string, id int64, now time.Time) error {
	start := time.Now()
	query := `UPDATE ` + table + ` SET updated_at = ? WHERE id = ?`
	_, err := q.ExecContext(ctx, query, now, id)
	record(ctx, m, "UPDATE", table, query, start, err)
	if err != nil {
		return fmt.Errorf("failed to touch %s: %w", table, err)
	}
	return nil
}

// lockOwned reads the owner's row in table with a locking read where the
// dialect has one. A second transaction for the same owner blocks here until
// the first finishes and then no longer finds a row it deleted.
func lockOwned(ctx context.Context, q db.Querier, m *metrics.AppMetrics, dialect db.Dialect, table string, owner models.Owner) (bool, error) {
	start := time.Now()
	query := `SELECT id FROM ` + table + ` WHERE owner_kind = ? AND owner_id = ?` + forUpdate(dialect)
	var id int64
	err := q.QueryRowContext(ctx, query, string(owner.Kind()), owner.ID()).Scan(&id)
	record(ctx, m, "SELECT", table, query, start, err)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", table, err)
	}
	return true, nil
}

// forUpdate is the locking clause for dialect. SQLite transactions already
// serialize writers.
func forUpdate(dialect db.Dialect) string {
	if dialect == db.MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// deleteOwned removes the owner's row and its items. Absent rows are fine;
// deleted reports whether this call removed the owner's row.
func deleteOwned(ctx context.Context, q db.Querier, m *metrics.AppMetrics, table, itemsTable, fk string, owner models.Owner) (deleted bool, err error) {
	rec, found, err := findOwned(ctx, q, m, table, owner)
	if err != nil || !found {
		return false, err
	}

	start := time.Now()
	itemsQuery := `DELETE FROM ` + itemsTable + ` WHERE ` + fk + ` = ?`
	_, err = q.ExecContext(ctx, itemsQuery, rec.ID)
	record(ctx, m, "DELETE", itemsTable, itemsQuery, start, err)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", itemsTable, err)
	}

	start = time.Now()
	query := `DELETE FROM ` + table + ` WHERE id = ?`
	result, err := q.ExecContext(ctx, query, rec.ID)
	record(ctx, m, "DELETE", table, query, start, err)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}
