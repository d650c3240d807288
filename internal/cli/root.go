// Package cli wires the storefront commands.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/pkg/config"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose bool

	// LoadConfig can be replaced in tests
	LoadConfig func() *config.Config
}

// NewRootCommand creates the root command for the storefront binary
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{LoadConfig: config.LoadConfig})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront API server and maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "development logging at debug level")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// env is what every command needs: config, a logger and a migrated database
type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *db.DB
	metrics *metrics.AppMetrics

	meterProvider *sdkmetric.MeterProvider
}

// openEnv loads config and opens the database. With exportMetrics the OTLP
// pipeline is installed first so the database stats register against it.
func openEnv(ctx context.Context, opts *RootOptions, exportMetrics bool) (*env, error) {
	cfg := opts.LoadConfig()
	logger, err := newLogger(cfg, opts.Verbose)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger}
	for _, w := range cfg.Warnings {
		logger.Warn("config fallback", zap.String("detail", w))
	}

	if exportMetrics && cfg.MetricsEnabled {
		e.metrics, e.meterProvider, err = metrics.InitMetrics(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	} else {
		e.metrics, err = metrics.NewAppMetrics(noop.NewMeterProvider().Meter(cfg.OTELServiceName), cfg.OTELServiceName, cfg.DBDriver)
		if err != nil {
			return nil, err
		}
	}

	e.db, err = db.NewDB(ctx, cfg.DBDriver, cfg.GetDSN(), cfg.OTELServiceName, logger)
	if err != nil {
		e.shutdownMetrics()
		return nil, err
	}
	if err := e.db.Migrate(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return e, nil
}

func (e *env) shutdownMetrics() {
	if e.meterProvider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.meterProvider.Shutdown(ctx); err != nil {
		e.logger.Warn("error shutting down meter provider", zap.Error(err))
	}
}

func (e *env) close() {
	if err := e.db.Close(); err != nil {
		e.logger.Warn("failed to close database", zap.Error(err))
	}
	e.shutdownMetrics()
	_ = e.logger.Sync()
}
