package api

import (
	"fmt"
	"net/http"

	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/gorilla/mux"
)

// CreateOrderHandler handles POST /api/v1/orders. The response is flushed
// before post-commit effects start so a slow mail server never delays it.
func (a *App) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := decodeBody(r, checkoutLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	order, effs, err := a.svc.Orders.Checkout(r.Context(), identity(r).Owner(), req)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, order)
	_ = http.NewResponseController(w).Flush()
	a.dispatcher.Dispatch(effs...)
}

// ListOrdersHandler handles GET /api/v1/orders
func (a *App) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.svc.Orders.ListForOwner(r.Context(), identity(r).Owner())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrderHandler handles GET /api/v1/orders/{orderNumber}. Another owner's
// order is reported as missing.
func (a *App) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["orderNumber"]
	order, err := a.svc.Orders.GetByOrderNumber(r.Context(), number)
	if err != nil {
		a.respondError(w, r, err)
		return
	}

	id := identity(r)
	if order.Owner != id.Owner() && !id.IsAdmin() {
		a.respondError(w, r, fmt.Errorf("order %s: %w", number, services.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListAllOrdersHandler handles GET /api/v1/admin/orders
func (a *App) ListAllOrdersHandler(w http.ResponseWriter, r *http.Request) {
	orders, err := a.svc.Orders.ListAll(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// UpdateOrderStatusHandler handles PUT /api/v1/admin/orders/{orderNumber}/status
func (a *App) UpdateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateOrderStatusRequest
	if err := decodeBody(r, orderStatusLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	order, err := a.svc.Orders.UpdateStatus(r.Context(), mux.Vars(r)["orderNumber"], req.Status)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ValidateCouponHandler handles POST /api/v1/coupons/validate
func (a *App) ValidateCouponHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ValidateCouponRequest
	if err := decodeBody(r, validateCouponLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	result, err := a.svc.Coupons.Validate(r.Context(), req.Code, req.OrderAmount)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    true,
		"coupon":   result.Coupon,
		"discount": result.Discount.StringFixed(2),
	})
}

// ApplyCouponHandler handles POST /api/v1/coupons/apply
func (a *App) ApplyCouponHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ApplyCouponRequest
	if err := decodeBody(r, applyCouponLoader, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	coupon, err := a.svc.Coupons.Apply(r.Context(), req.Code)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coupon)
}

// ListCouponsHandler handles GET /api/v1/admin/coupons
func (a *App) ListCouponsHandler(w http.ResponseWriter, r *http.Request) {
	coupons, err := a.svc.Coupons.List(r.Context())
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coupons)
}

// CreateCouponHandler handles POST /api/v1/admin/coupons
func (a *App) CreateCouponHandler(w http.ResponseWriter, r *http.Request) {
	var in models.CouponInput
	if err := decodeBody(r, couponLoader, &in); err != nil {
		a.respondError(w, r, err)
		return
	}

	coupon, err := a.svc.Coupons.Create(r.Context(), in)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, coupon)
}

// DeleteCouponHandler handles DELETE /api/v1/admin/coupons/{id}
func (a *App) DeleteCouponHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		a.respondError(w, r, fmt.Errorf("invalid coupon id: %w", services.ErrValidation))
		return
	}

	if err := a.svc.Coupons.Delete(r.Context(), id); err != nil {
		a.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
