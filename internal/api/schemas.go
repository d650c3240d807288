package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/xeipuuv/gojsonschema"
)

const maxBodyBytes = 1 << 20

// Money fields accept a JSON number or a decimal string
const schemaAddToCart = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["product_id"],
  "properties": {
    "product_id": { "type": "integer", "minimum": 1 },
    "quantity": { "type": "integer", "minimum": 1 }
  },
  "additionalProperties": false
}`

const schemaSetQuantity = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["product_id", "quantity"],
  "properties": {
    "product_id": { "type": "integer", "minimum": 1 },
    "quantity": { "type": "integer" }
  },
  "additionalProperties": false
}`

const schemaWishlist = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["product_id"],
  "properties": {
    "product_id": { "type": "integer", "minimum": 1 }
  },
  "additionalProperties": false
}`

const schemaCheckout = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["customer_info", "payment_method"],
  "properties": {
    "customer_info": {
      "type": "object",
      "required": ["email"],
      "properties": {
        "first_name": { "type": "string" },
        "last_name": { "type": "string" },
        "email": { "type": "string", "minLength": 3 },
        "phone": { "type": "string" },
        "address": {
          "type": "object",
          "properties": {
            "street": { "type": "string" },
            "city": { "type": "string" },
            "state": { "type": "string" },
            "zip_code": { "type": "string" },
            "country": { "type": "string" }
          },
          "additionalProperties": false
        }
      },
      "additionalProperties": false
    },
    "payment_method": { "type": "string", "minLength": 1 },
    "coupon_code": { "type": "string" }
  },
  "additionalProperties": false
}`

const schemaValidateCoupon = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["code", "order_amount"],
  "properties": {
    "code": { "type": "string", "minLength": 1 },
    "order_amount": { "type": ["number", "string"] }
  },
  "additionalProperties": false
}`

const schemaApplyCoupon = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["code"],
  "properties": {
    "code": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": false
}`

const schemaProduct = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "price", "category"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "slug": { "type": "string" },
    "description": { "type": "string" },
    "price": { "type": ["number", "string"] },
    "category": { "type": "string", "minLength": 1 },
    "subcategory": { "type": "string" },
    "image": { "type": "string" },
    "stock": { "type": "integer", "minimum": 0 },
    "featured": { "type": "boolean" },
    "brands": { "type": "array", "items": { "type": "string" } },
    "sizes": { "type": "array", "items": { "type": "string" } },
    "colours": { "type": "array", "items": { "type": "string" } }
  },
  "additionalProperties": false
}`

const schemaUpdateStock = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["stock"],
  "properties": {
    "stock": { "type": "integer", "minimum": 0 }
  },
  "additionalProperties": false
}`

const schemaOrderStatus = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": { "enum": ["pending", "processing", "shipped", "delivered", "cancelled"] }
  },
  "additionalProperties": false
}`

const schemaCoupon = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["code", "discount_type", "discount_value"],
  "properties": {
    "code": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "discount_type": { "enum": ["percentage", "fixed"] },
    "discount_value": { "type": ["number", "string"] },
    "min_order_amount": { "type": ["number", "string"] },
    "max_discount_amount": { "type": ["number", "string", "null"] },
    "usage_limit": { "type": ["integer", "null"], "minimum": 1 },
    "expires_at": { "type": ["string", "null"], "format": "date-time" }
  },
  "additionalProperties": false
}`

var (
	addToCartLoader      = gojsonschema.NewStringLoader(schemaAddToCart)
	setQuantityLoader    = gojsonschema.NewStringLoader(schemaSetQuantity)
	wishlistLoader       = gojsonschema.NewStringLoader(schemaWishlist)
	checkoutLoader       = gojsonschema.NewStringLoader(schemaCheckout)
	validateCouponLoader = gojsonschema.NewStringLoader(schemaValidateCoupon)
	applyCouponLoader    = gojsonschema.NewStringLoader(schemaApplyCoupon)
	productLoader        = gojsonschema.NewStringLoader(schemaProduct)
	updateStockLoader    = gojsonschema.NewStringLoader(schemaUpdateStock)
	orderStatusLoader    = gojsonschema.NewStringLoader(schemaOrderStatus)
	couponLoader         = gojsonschema.NewStringLoader(schemaCoupon)
)

func validateJSONSchema(schemaLoader gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("malformed request body: %w", services.ErrValidation)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), services.ErrValidation)
	}
	return nil
}

// decodeBody reads the request body, checks it against schema and unmarshals it into dst
func decodeBody(r *http.Request, schema gojsonschema.JSONLoader, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", services.ErrValidation)
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is required: %w", services.ErrValidation)
	}
	if err := validateJSONSchema(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid request body: %w", services.ErrValidation)
	}
	return nil
}
