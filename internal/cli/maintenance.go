package cli

import (
	"fmt"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/middleware"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/SigNoz/storefront-go-app/internal/seed"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts, false)
			if err != nil {
				return err
			}
			defer e.close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", e.db.Dialect())
			return nil
		},
	}
}

// SeedOptions holds flags for the seed command
type SeedOptions struct {
	*RootOptions
	Products bool
	Coupons  bool
}

// NewSeedCommand creates the seed command. With neither flag both sets are loaded.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Replace the catalog and coupons with the bundled demo data",
		Long: `Replace the catalog and coupons with the bundled demo data.

Existing products are deleted, which also empties every cart and wishlist.
Existing coupons are deleted and re-created with zero usage.

Example:
  storefront seed
  storefront seed --coupons`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts.RootOptions, false)
			if err != nil {
				return err
			}
			defer e.close()

			all := !opts.Products && !opts.Coupons
			products := services.NewProductService(e.db, e.metrics, e.logger, services.NopPublisher{})
			seeder := seed.NewSeeder(e.db, products, services.NewCouponService(e.db, e.metrics, e.logger), e.logger)

			if all || opts.Products {
				n, err := seeder.Products(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", n)
			}
			if all || opts.Coupons {
				n, err := seeder.Coupons(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d coupons\n", n)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.Products, "products", false, "seed products only")
	cmd.Flags().BoolVar(&opts.Coupons, "coupons", false, "seed coupons only")
	return cmd
}

// TokenOptions holds flags for the token command
type TokenOptions struct {
	*RootOptions
	Subject string
	Email   string
	Name    string
	Role    string
	TTL     time.Duration
}

// NewTokenCommand creates the token command, which records the user and
// prints a signed bearer token for it
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long: `Mint an HS256 bearer token signed with JWT_SECRET.

The user is created or updated first so admin listings can resolve it.

Example:
  storefront token --email admin@example.com --role admin
  storefront token --sub 42 --email ada@example.com --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), opts.RootOptions, false)
			if err != nil {
				return err
			}
			defer e.close()

			users := services.NewUserService(e.db, e.metrics, e.logger)
			user, err := users.EnsureUser(cmd.Context(), models.User{
				ID:    opts.Subject,
				Email: opts.Email,
				Name:  opts.Name,
				Role:  opts.Role,
			})
			if err != nil {
				return err
			}

			token, err := middleware.IssueToken([]byte(e.cfg.JWTSecret), *user, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "sub", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "user email (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Role, "role", models.RoleCustomer, "customer or admin")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
