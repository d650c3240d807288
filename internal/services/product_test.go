package services

import (
	"context"
	"testing"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStock(t *testing.T) {
	tests := []struct {
		stock int
		want  models.StockAlertType
		ok    bool
	}{
		{0, models.StockLow, true},
		{2, models.StockLow, true},
		{3, "", false},
		{7, "", false},
		{8, models.StockRestocked, true},
		{50, models.StockRestocked, true},
	}
	for _, tt := range tests {
		got, ok := ClassifyStock(tt.stock)
		assert.Equal(t, tt.ok, ok, "stock %d", tt.stock)
		assert.Equal(t, tt.want, got, "stock %d", tt.stock)
	}

	alert, ok := StockAlertFor(1, "Lamp", 9)
	require.True(t, ok)
	assert.Equal(t, "We just restocked Lamp, now have sufficient inventory!", alert.Message)
}

func TestProduct_SetStockPublishes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduct(t, "Kettle", "35", 5)

	updated, err := env.products.SetStock(ctx, p.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, updated.Stock)

	stockEvents := env.publisher.named(models.EventStockUpdated)
	require.Len(t, stockEvents, 1)
	assert.Equal(t, map[string]any{"product_id": p.ID, "stock": 12}, stockEvents[0])

	alerts := env.publisher.alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.StockRestocked, alerts[0].Type)

	_, err = env.products.SetStock(ctx, p.ID, 5)
	require.NoError(t, err)
	assert.Len(t, env.publisher.alerts(), 1, "a level between thresholds raises no alert")
}

func TestProduct_SetStockRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduct(t, "Teapot", "22", 5)

	_, err := env.products.SetStock(ctx, p.ID, -1)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.products.SetStock(ctx, 4242, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 5, env.stockOf(t, p.ID))
}

func TestProduct_CacheInvalidatedByWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduct(t, "Vase", "40", 5)

	got, err := env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	_, err = env.products.SetStock(ctx, p.ID, 1)
	require.NoError(t, err)
	got, err = env.products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Stock)

	require.NoError(t, env.products.Delete(ctx, p.ID))
	_, err = env.products.Get(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, env.publisher.named(models.EventProductRemoved), 1)
}

func TestProduct_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.products.Create(ctx, models.ProductInput{
		Name:     "Blue Denim Jacket",
		Price:    decimal.RequireFromString("89.90"),
		Category: "outerwear",
		Stock:    4,
		Featured: true,
		Sizes:    []string{"S", "M", "L"},
	})
	require.NoError(t, err)
	assert.Equal(t, "blue-denim-jacket", created.Slug)
	assert.Equal(t, []string{"S", "M", "L"}, created.Sizes)
	assert.Equal(t, []string{}, created.Brands)
	assert.Len(t, env.publisher.named(models.EventProductAdded), 1)

	env.seedProduct(t, "Red Cap", "15", 3)

	_, err = env.products.Create(ctx, models.ProductInput{Name: "Blue Denim Jacket", Category: "outerwear"})
	assert.ErrorIs(t, err, ErrValidation, "duplicate slug")
	_, err = env.products.Create(ctx, models.ProductInput{Name: "", Category: "outerwear"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.products.Create(ctx, models.ProductInput{Name: "Sub Cent", Category: "outerwear", Price: decimal.RequireFromString("9.995")})
	assert.ErrorIs(t, err, ErrValidation, "prices are whole cents")

	minPrice := decimal.NewFromInt(20)
	tests := []struct {
		name   string
		filter models.ProductFilter
		want   []string
	}{
		{"all", models.ProductFilter{}, []string{"Blue Denim Jacket", "Red Cap"}},
		{"category", models.ProductFilter{Category: "apparel"}, []string{"Red Cap"}},
		{"search ignores case", models.ProductFilter{Search: "DENIM"}, []string{"Blue Denim Jacket"}},
		{"min price", models.ProductFilter{MinPrice: &minPrice}, []string{"Blue Denim Jacket"}},
		{"featured", models.ProductFilter{Featured: true}, []string{"Blue Denim Jacket"}},
		{"paged", models.ProductFilter{Limit: 1, Offset: 1}, []string{"Red Cap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := env.products.List(ctx, tt.filter)
			require.NoError(t, err)
			var names []string
			for _, p := range list {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestProduct_UpdateLeavesStockAlone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.seedProduct(t, "Rug", "120", 6)

	updated, err := env.products.Update(ctx, p.ID, models.ProductInput{
		Name: "Wool Rug", Category: "home", Price: decimal.NewFromInt(110), Stock: 99,
	})
	require.NoError(t, err)
	assert.Equal(t, "Wool Rug", updated.Name)
	assert.Equal(t, 6, updated.Stock)

	_, err = env.products.Update(ctx, 777, models.ProductInput{Name: "Ghost", Category: "home"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "men-s-t-shirt-2-pack", Slugify("  Men's T-Shirt (2 Pack) "))
	assert.Equal(t, "", Slugify("!!!"))
}
