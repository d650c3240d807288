package api

import (
	"context"
	"net/http"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/effects"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/middleware"
	"github.com/SigNoz/storefront-go-app/internal/notify"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Services groups the domain services the handlers call into
type Services struct {
	Products  *services.ProductService
	Carts     *services.CartService
	Wishlists *services.WishlistService
	Coupons   *services.CouponService
	Orders    *services.OrderService
	Users     *services.UserService
}

// App holds application dependencies
type App struct {
	config     *config.Config
	logger     *zap.Logger
	db         *db.DB
	metrics    *metrics.AppMetrics
	svc        Services
	broker     *notify.Broker
	dispatcher *effects.Dispatcher
	limiter    *middleware.RateLimiter
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	logger *zap.Logger,
	database *db.DB,
	m *metrics.AppMetrics,
	svc Services,
	broker *notify.Broker,
	dispatcher *effects.Dispatcher,
	limiter *middleware.RateLimiter,
) *App {
	return &App{
		config:     cfg,
		logger:     logger,
		db:         database,
		metrics:    m,
		svc:        svc,
		broker:     broker,
		dispatcher: dispatcher,
		limiter:    limiter,
	}
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// Middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RecoverMiddleware(a.logger))
	r.Use(middleware.CORSMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics, a.logger))

	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
	r.Handle("/api/events", a.broker).Methods("GET")

	// API Routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.IdentityMiddleware(middleware.IdentityConfig{
		CookieName: a.config.SessionCookieName,
		MaxAge:     a.config.SessionMaxAge,
		Secret:     []byte(a.config.JWTSecret),
		Secure:     a.config.SecureCookies,
	}, a.logger))

	// Products
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/featured", a.FeaturedProductsHandler).Methods("GET")
	api.HandleFunc("/products/{id:[0-9]+}", a.GetProductHandler).Methods("GET")

	// Cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/cart", a.AddToCartHandler).Methods("POST")
	api.HandleFunc("/cart", a.SetCartQuantityHandler).Methods("PUT")
	api.HandleFunc("/cart", a.ClearCartHandler).Methods("DELETE")
	api.HandleFunc("/cart/items/{productId:[0-9]+}", a.RemoveFromCartHandler).Methods("DELETE")

	// Wishlist
	api.HandleFunc("/wishlist", a.GetWishlistHandler).Methods("GET")
	api.HandleFunc("/wishlist", a.AddToWishlistHandler).Methods("POST")
	api.HandleFunc("/wishlist", a.ClearWishlistHandler).Methods("DELETE")
	api.HandleFunc("/wishlist/count", a.WishlistCountHandler).Methods("GET")
	api.HandleFunc("/wishlist/{productId:[0-9]+}", a.RemoveFromWishlistHandler).Methods("DELETE")

	// Orders
	api.Handle("/orders", a.limiter.Middleware(http.HandlerFunc(a.CreateOrderHandler))).Methods("POST")
	api.HandleFunc("/orders", a.ListOrdersHandler).Methods("GET")
	api.HandleFunc("/orders/{orderNumber}", a.GetOrderHandler).Methods("GET")

	// Coupons
	api.Handle("/coupons/validate", a.limiter.Middleware(http.HandlerFunc(a.ValidateCouponHandler))).Methods("POST")
	api.Handle("/coupons/apply", a.limiter.Middleware(http.HandlerFunc(a.ApplyCouponHandler))).Methods("POST")

	// Profile
	api.Handle("/me", middleware.RequireUser(http.HandlerFunc(a.MeHandler))).Methods("GET")

	// Admin
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/products", a.CreateProductHandler).Methods("POST")
	admin.HandleFunc("/products/{id:[0-9]+}", a.UpdateProductHandler).Methods("PUT")
	admin.HandleFunc("/products/{id:[0-9]+}", a.DeleteProductHandler).Methods("DELETE")
	admin.HandleFunc("/products/{id:[0-9]+}/stock", a.UpdateStockHandler).Methods("PUT")
	admin.HandleFunc("/orders", a.ListAllOrdersHandler).Methods("GET")
	admin.HandleFunc("/orders/{orderNumber}/status", a.UpdateOrderStatusHandler).Methods("PUT")
	admin.HandleFunc("/coupons", a.ListCouponsHandler).Methods("GET")
	admin.HandleFunc("/coupons", a.CreateCouponHandler).Methods("POST")
	admin.HandleFunc("/coupons/{id:[0-9]+}", a.DeleteCouponHandler).Methods("DELETE")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"subscribers": a.broker.Subscribers(),
	})
}

// MeHandler handles GET /api/v1/me. The token's claims are upserted into the
// users table so admin listings can resolve the owner.
func (a *App) MeHandler(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	user, err := a.svc.Users.EnsureUser(r.Context(), claimsUser(id.User))
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       user,
		"session_id": id.SessionID,
	})
}
