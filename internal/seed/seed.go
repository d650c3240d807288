// Package seed loads the demo catalog and coupons bundled with the binary.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed data/products.yaml
var productsYAML []byte

//go:embed data/coupons.yaml
var couponsYAML []byte

// ProductSeed is one catalog entry. Money is quoted so it parses exactly.
type ProductSeed struct {
	Name        string   `yaml:"name"`
	Price       string   `yaml:"price"`
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Image       string   `yaml:"image"`
	Description string   `yaml:"description"`
	Stock       int      `yaml:"stock"`
	Featured    bool     `yaml:"featured"`
	Brands      []string `yaml:"brands"`
	Sizes       []string `yaml:"sizes"`
	Colours     []string `yaml:"colours"`
}

// CouponSeed is one coupon entry
type CouponSeed struct {
	Code              string `yaml:"code"`
	Description       string `yaml:"description"`
	DiscountType      string `yaml:"discount_type"`
	DiscountValue     string `yaml:"discount_value"`
	MinOrderAmount    string `yaml:"min_order_amount"`
	MaxDiscountAmount string `yaml:"max_discount_amount"`
	UsageLimit        *int   `yaml:"usage_limit"`
}

// Seeder replaces catalog and coupon rows with the bundled data
type Seeder struct {
	db       *db.DB
	products *services.ProductService
	coupons  *services.CouponService
	logger   *zap.Logger
}

func NewSeeder(database *db.DB, products *services.ProductService, coupons *services.CouponService, logger *zap.Logger) *Seeder {
	return &Seeder{db: database, products: products, coupons: coupons, logger: logger}
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// LoadProducts parses the bundled catalog
func LoadProducts() ([]models.ProductInput, error) {
	var seeds []ProductSeed
	if err := decodeStrict(productsYAML, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse product seed: %w", err)
	}

	inputs := make([]models.ProductInput, 0, len(seeds))
	for _, s := range seeds {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return nil, fmt.Errorf("product %q: invalid price %q: %w", s.Name, s.Price, err)
		}
		inputs = append(inputs, models.ProductInput{
			Name:        s.Name,
			Description: s.Description,
			Price:       price,
			Category:    s.Category,
			Subcategory: s.Subcategory,
			Image:       s.Image,
			Stock:       s.Stock,
			Featured:    s.Featured,
			Brands:      s.Brands,
			Sizes:       s.Sizes,
			Colours:     s.Colours,
		})
	}
	return inputs, nil
}

// LoadCoupons parses the bundled coupons
func LoadCoupons() ([]models.CouponInput, error) {
	var seeds []CouponSeed
	if err := decodeStrict(couponsYAML, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse coupon seed: %w", err)
	}

	inputs := make([]models.CouponInput, 0, len(seeds))
	for _, s := range seeds {
		in := models.CouponInput{
			Code:         s.Code,
			Description:  s.Description,
			DiscountType: models.DiscountType(s.DiscountType),
			UsageLimit:   s.UsageLimit,
		}
		var err error
		if in.DiscountValue, err = decimal.NewFromString(s.DiscountValue); err != nil {
			return nil, fmt.Errorf("coupon %s: invalid discount value: %w", s.Code, err)
		}
		if s.MinOrderAmount != "" {
			if in.MinOrderAmount, err = decimal.NewFromString(s.MinOrderAmount); err != nil {
				return nil, fmt.Errorf("coupon %s: invalid minimum order amount: %w", s.Code, err)
			}
		}
		if s.MaxDiscountAmount != "" {
			maxDiscount, err := decimal.NewFromString(s.MaxDiscountAmount)
			if err != nil {
				return nil, fmt.Errorf("coupon %s: invalid maximum discount: %w", s.Code, err)
			}
			in.MaxDiscountAmount = decimal.NewNullDecimal(maxDiscount)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// Products deletes every product (cart and wishlist lines cascade) and
// inserts the bundled catalog. It returns the number of products created.
func (s *Seeder) Products(ctx context.Context) (int, error) {
	inputs, err := LoadProducts()
	if err != nil {
		return 0, err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return 0, fmt.Errorf("failed to clear products: %w", err)
	}
	s.products.Cache().Clear()

	for _, in := range inputs {
		if _, err := s.products.Create(ctx, in); err != nil {
			return 0, fmt.Errorf("failed to seed product %q: %w", in.Name, err)
		}
	}
	s.logger.Info("products seeded", zap.Int("count", len(inputs)))
	return len(inputs), nil
}

// Coupons deletes every coupon and inserts the bundled set with zero usage
func (s *Seeder) Coupons(ctx context.Context) (int, error) {
	inputs, err := LoadCoupons()
	if err != nil {
		return 0, err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM coupons"); err != nil {
		return 0, fmt.Errorf("failed to clear coupons: %w", err)
	}

	for _, in := range inputs {
		if _, err := s.coupons.Create(ctx, in); err != nil {
			return 0, fmt.Errorf("failed to seed coupon %s: %w", in.Code, err)
		}
	}
	s.logger.Info("coupons seeded", zap.Int("count", len(inputs)))
	return len(inputs), nil
}
