package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/shopspring/decimal"
)

func productFilter(r *http.Request) (models.ProductFilter, error) {
	q := r.URL.Query()
	filter := models.ProductFilter{
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Limit:    queryInt(r, "limit", 0),
		Offset:   queryInt(r, "offset", 0),
	}
	if featured := q.Get("featured"); featured != "" {
		b, err := strconv.ParseBool(featured)
		if err != nil {
			return filter, fmt.Errorf("featured must be a boolean: %w", services.ErrValidation)
		}
		filter.Featured = b
	}
	for name, dst := range map[string]**decimal.Decimal{
		"min_price": &filter.MinPrice,
		"max_price": &filter.MaxPrice,
	} {
		if v := q.Get(name); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return filter, fmt.Errorf("%s must be a number: %w", name, services.ErrValidation)
			}
			*dst = &d
		}
	}
	return filter, nil
}

// ListProductsHandler handles GET /api/v1/products
func (a *App) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := productFilter(r)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	products, err := a.svc.Products.List(r.Context(), filter)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// FeaturedProductsHandler handles GET /api/v1/products/featured
func (a *App) FeaturedProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.Products.List(r.Context(), models.ProductFilter{
		Featured: true,
		Limit:    queryInt(r, "limit", 8),
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProductHandler handles GET /api/v1/products/{id}
func (a *App) GetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid product id: %w", services.ErrValidation))
		return
	}

	product, err := a.svc.Products.Get(r.Context(), id)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/v1/admin/products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput
	if err := decodeBody(r, productLoader, &in); err != nil {
		a.respondError(w, r, err)
		return
	}

	product, err := a.svc.Products.Create(r.Context(), in)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProductHandler handles PUT /api/v1/admin/products/{id}
func (a *App) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid product id: %w", services.ErrValidation))
		return
	}
	var in models.ProductInput
	if err := decodeBody(r, productLoader, &in); err != nil {
		a.respondError(w, r, err)
		return
	}

	product, err := a.svc.Products.Update(r.Context(), id, in)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProductHandler handles DELETE /api/v1/admin/products/{id}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid product id: %w", services.ErrValidation))
		return
	}

	if err := a.svc.Products.Delete(r.Context(), id); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateStockHandler handles PUT /api/v1/admin/products/{id}/stock
func (a *App) UpdateStockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid product id: %w", services.ErrValidation))
		return
	}
	var req models.UpdateStockRequest
	if err := decodeBody(r, updateStockLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	product, err := a.svc.Products.SetStock(r.Context(), id, req.Stock)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}
