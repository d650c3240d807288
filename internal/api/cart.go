package api

import (
	"fmt"
	"net/http"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/services"
)

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Carts.GetWithProducts(r.Context(), identity(r).Owner())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddToCartHandler handles POST /api/v1/cart. Quantity defaults to 1.
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := decodeBody(r, addToCartLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := a.svc.Carts.AddItem(r.Context(), identity(r).Owner(), req.ProductID, quantity)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// SetCartQuantityHandler handles PUT /api/v1/cart. A quantity of zero removes the line.
func (a *App) SetCartQuantityHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SetQuantityRequest
	if err := decodeBody(r, setQuantityLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	cart, err := a.svc.Carts.SetQuantity(r.Context(), identity(r).Owner(), req.ProductID, req.Quantity)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// RemoveFromCartHandler handles DELETE /api/v1/cart/items/{productId}
func (a *App) RemoveFromCartHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productId")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid product id: %w", services.ErrValidation))
		return
	}

	cart, err := a.svc.Carts.RemoveItem(r.Context(), identity(r).Owner(), productID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ClearCartHandler handles DELETE /api/v1/cart
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Carts.Clear(r.Context(), identity(r).Owner()); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWishlistHandler handles GET /api/v1/wishlist
func (a *App) GetWishlistHandler(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Wishlists.GetWithProducts(r.Context(), identity(r).Owner())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AddToWishlistHandler handles POST /api/v1/wishlist. Saving a product twice
// is reported in the body, not as an error.
func (a *App) AddToWishlistHandler(w http.ResponseWriter, r *http.Request) {
	var req models.WishlistRequest
	if err := decodeBody(r, wishlistLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.svc.Wishlists.AddItem(r.Context(), identity(r).Owner(), req.ProductID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RemoveFromWishlistHandler handles DELETE /api/v1/wishlist/{productId}
func (a *App) RemoveFromWishlistHandler(w http.ResponseWriter, r *http.Request) {
	productID, ok := pathID(r, "productId")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid product id: %w", services.ErrValidation))
		return
	}

	wishlist, err := a.svc.Wishlists.RemoveItem(r.Context(), identity(r).Owner(), productID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wishlist)
}

// ClearWishlistHandler handles DELETE /api/v1/wishlist
func (a *App) ClearWishlistHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Wishlists.Clear(r.Context(), identity(r).Owner()); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WishlistCountHandler handles GET /api/v1/wishlist/count
func (a *App) WishlistCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := a.svc.Wishlists.Count(r.Context(), identity(r).Owner())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}
