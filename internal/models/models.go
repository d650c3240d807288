package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
	Brands      []string        `json:"brands"`
	Sizes       []string        `json:"sizes"`
	Colours     []string        `json:"colours"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductFilter narrows a catalog listing. Zero fields are ignored.
type ProductFilter struct {
	Category string
	Search   string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Featured bool
	Limit    int
	Offset   int
}

// User is the identity projection kept for authenticated shoppers and admins
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Cart represents a shopping cart
type Cart struct {
	ID        int64           `json:"id"`
	Owner     Owner           `json:"owner"`
	Items     []CartItem      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CartItem represents an item in a cart. UnitPrice is the product price
// captured at the most recent add/update.
type CartItem struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LineTotal is quantity * unit price
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartLine is a cart item joined with the current product
type CartLine struct {
	CartItem
	Product   Product         `json:"product"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartView is the display form of a cart
type CartView struct {
	Items     []CartLine      `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// Wishlist holds saved products for an owner
type Wishlist struct {
	ID        int64          `json:"id"`
	Owner     Owner          `json:"owner"`
	Items     []WishlistItem `json:"items"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WishlistItem references one saved product
type WishlistItem struct {
	ProductID int64     `json:"product_id"`
	AddedAt   time.Time `json:"added_at"`
}

// WishlistLine is a wishlist item joined with the current product
type WishlistLine struct {
	WishlistItem
	Product Product `json:"product"`
}

// WishlistView is the display form of a wishlist
type WishlistView struct {
	Items []WishlistLine `json:"items"`
}

// WishlistAddResult reports whether an add changed the wishlist. A duplicate
// add is an expected user action, not an error.
type WishlistAddResult struct {
	Added    bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	Wishlist *Wishlist `json:"wishlist,omitempty"`
}

// Address is a shipping address
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// CustomerInfo is captured at checkout and stored with the order
type CustomerInfo struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     string  `json:"phone"`
	Address   Address `json:"address"`
}

// OrderStatus is the only field of an order that changes after creation
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Order represents a placed order. Items, Subtotal, Discount and Total are
// fixed at creation; Total is Subtotal minus Discount.
type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	Owner         Owner           `json:"owner"`
	CustomerInfo  CustomerInfo    `json:"customer_info"`
	Items         []OrderItem     `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Status        OrderStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// OrderItem is an immutable snapshot of a purchased line
type OrderItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal is quantity * snapshot price
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// StockAlertType classifies a stock level after a change
type StockAlertType string

const (
	StockRestocked StockAlertType = "restocked"
	StockLow       StockAlertType = "low-stock"
)

// StockAlert is pushed to shoppers when a product's stock crosses a threshold
type StockAlert struct {
	Type        StockAlertType `json:"type"`
	ProductID   int64          `json:"product_id"`
	ProductName string         `json:"product_name"`
	Stock       int            `json:"stock"`
	Message     string         `json:"message"`
}

// Fan-out event names
const (
	EventStockAlert     = "stock-alert"
	EventStockUpdated   = "stock-updated"
	EventProductAdded   = "product-added"
	EventProductUpdated = "product-updated"
	EventProductRemoved = "product-removed"
	EventOrderUpdated   = "order-updated"
)

// AddToCartRequest represents a request to add item to cart
type AddToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity"`
}

// SetQuantityRequest represents a request to set a cart line quantity
type SetQuantityRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// WishlistRequest represents a request to save a product
type WishlistRequest struct {
	ProductID int64 `json:"product_id"`
}

// CheckoutRequest represents a request to create an order from the cart
type CheckoutRequest struct {
	CustomerInfo  CustomerInfo `json:"customer_info"`
	PaymentMethod string       `json:"payment_method"`
	CouponCode    string       `json:"coupon_code"`
}

// ValidateCouponRequest asks for the discount a coupon gives on an amount
type ValidateCouponRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

// ApplyCouponRequest records one use of a coupon
type ApplyCouponRequest struct {
	Code string `json:"code"`
}

// CouponInput is the admin payload for creating a coupon
type CouponInput struct {
	Code              string              `json:"code"`
	Description       string              `json:"description"`
	DiscountType      DiscountType        `json:"discount_type"`
	DiscountValue     decimal.Decimal     `json:"discount_value"`
	MinOrderAmount    decimal.Decimal     `json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	UsageLimit        *int                `json:"usage_limit"`
	ExpiresAt         *time.Time          `json:"expires_at"`
}

// ProductInput is the admin payload for creating or editing a product.
// Stock is only honoured on create; later changes go through the stock endpoint.
type ProductInput struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category"`
	Subcategory string          `json:"subcategory"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
	Brands      []string        `json:"brands"`
	Sizes       []string        `json:"sizes"`
	Colours     []string        `json:"colours"`
}

// UpdateStockRequest sets a product's stock directly
type UpdateStockRequest struct {
	Stock int `json:"stock"`
}

// UpdateOrderStatusRequest moves an order to a new status
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status"`
}
