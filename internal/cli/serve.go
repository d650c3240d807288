package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/api"
	"github.com/SigNoz/storefront-go-app/internal/effects"
	"github.com/SigNoz/storefront-go-app/internal/mailer"
	"github.com/SigNoz/storefront-go-app/internal/middleware"
	"github.com/SigNoz/storefront-go-app/internal/notify"
	"github.com/SigNoz/storefront-go-app/internal/services"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the storefront HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func newMailer(e *env) (mailer.Mailer, error) {
	if e.cfg.SMTPHost == "" {
		e.logger.Info("SMTP_HOST not set, confirmation emails will be logged")
		return mailer.NewLogMailer(e.logger), nil
	}
	m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     e.cfg.SMTPHost,
		Port:     e.cfg.SMTPPort,
		Username: e.cfg.SMTPUser,
		Password: e.cfg.SMTPPassword,
		From:     e.cfg.SMTPFrom,
		Timeout:  e.cfg.EmailTimeout,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func serve(ctx context.Context, opts *RootOptions) error {
	e, err := openEnv(ctx, opts, true)
	if err != nil {
		return err
	}
	defer e.close()
	cfg, logger := e.cfg, e.logger

	sender, err := newMailer(e)
	if err != nil {
		return err
	}

	broker := notify.NewBroker(notify.DefaultBuffer, logger, e.metrics)
	dispatcher := effects.NewDispatcher(logger, e.metrics, effects.Timeouts{
		Notification: cfg.NotifyTimeout,
		Email:        cfg.EmailTimeout,
	})
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	// Initialize services
	products := services.NewProductService(e.db, e.metrics, logger, broker)
	carts := services.NewCartService(e.db, e.metrics, logger)
	svc := api.Services{
		Products:  products,
		Carts:     carts,
		Wishlists: services.NewWishlistService(e.db, e.metrics, logger),
		Coupons:   services.NewCouponService(e.db, e.metrics, logger),
		Users:     services.NewUserService(e.db, e.metrics, logger),
		Orders: services.NewOrderService(e.db, e.metrics, logger, products, sender, broker, services.OrderConfig{
			StoreName:       cfg.StoreName,
			TrackingURLBase: cfg.TrackingURLBase,
			NotifyDelay:     cfg.NotifyDelay,
		}),
	}

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()
	go carts.MonitorActiveCarts(bgCtx, 30*time.Second)
	go limiter.Cleanup(bgCtx, time.Minute, 10*time.Minute)

	app := api.NewApp(cfg, logger, e.db, e.metrics, svc, broker, dispatcher, limiter)
	router := mux.NewRouter()
	app.SetupRoutes(router)

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.AppPort),
			zap.String("db_driver", cfg.DBDriver),
			zap.Bool("metrics", cfg.MetricsEnabled),
			zap.String("otlp_endpoint", cfg.OTELExporterOTLPEndpoint),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// push streams never go idle on their own
	broker.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	cancelBackground()
	dispatcher.Wait()
	logger.Info("server exited")
	return nil
}
