package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medimart/medimart/internal/config"
	"github.com/medimart/medimart/internal/domain/inventory"
	"github.com/medimart/medimart/internal/domain/invoice"
	"github.com/medimart/medimart/internal/domain/order"
	"github.com/medimart/medimart/internal/platform/auth"
	"github.com/medimart/medimart/internal/platform/blobstore"
	"github.com/medimart/medimart/internal/platform/db"
	"github.com/medimart/medimart/internal/platform/lock"
	"github.com/medimart/medimart/internal/platform/middleware"
	"github.com/medimart/medimart/internal/platform/notification"
	"github.com/medimart/medimart/internal/platform/renderer"
)

const version = "0.1.0"

// phoneRegion is the default region for parsing party phone numbers on
// invoices.
const phoneRegion = "MM"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medimart-server",
		Short: "Healthcare marketplace fulfillment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, state, at)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newLocker returns the Redis locker when REDIS_URL is set. The returned
// closer is a no-op for the in-process mutex.
func newLocker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (lock.Locker, func() error, error) {
	if cfg.RedisURL == "" {
		return lock.NewKeyedMutex(), func() error { return nil }, nil
	}
	locker, client, err := lock.NewRedisLocker(ctx, cfg.RedisURL, cfg.LockTTL, logger)
	if err != nil {
		return nil, nil, err
	}
	return locker, client.Close, nil
}

// newBlobStore returns the configured store. The memory store also needs its
// download route, so it is returned separately.
func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, *blobstore.MemoryStore, func() error, error) {
	switch cfg.StorageProvider {
	case "gcs":
		gcs, err := blobstore.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			return nil, nil, nil, err
		}
		return gcs, nil, gcs.Close, nil
	default:
		mem := blobstore.NewMemoryStore(cfg.PublicBaseURL)
		return mem, mem, func() error { return nil }, nil
	}
}

func newNotifier(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notification.Notifier, func() error, error) {
	switch cfg.NotifyProvider {
	case "pubsub":
		ps, err := notification.NewPubSubNotifier(ctx, cfg.PubSubProjectID, cfg.PubSubTopic, cfg.PubSubCredentialsJSON)
		if err != nil {
			return nil, nil, err
		}
		return ps, ps.Close, nil
	default:
		return notification.NewLogNotifier(logger), func() error { return nil }, nil
	}
}

func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Infrastructure
	locks, closeLocks, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeLocks()

	blobs, memStore, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob storage")
	}
	defer closeBlobs()

	sink, closeSink, err := newNotifier(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open notification sink")
	}
	defer closeSink()
	dispatcher := notification.NewDispatcher(sink, cfg.NotifyTimeout, logger)

	if cfg.RendererURL == "" {
		logger.Warn().Msg("RENDERER_URL not set; invoice rendering will fail")
	}
	render := renderer.NewClient(cfg.RendererURL, cfg.RendererAPIKey, cfg.RendererTimeout)
	txm := db.NewTxManager(pool)

	// Echo server
	e := newEcho(cfg, logger)
	e.GET("/health/db", db.HealthHandler(pool))
	if memStore != nil {
		blobstore.NewHandler(memStore).RegisterRoutes(e)
	}

	apiV1 := e.Group("/api/v1")
	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)}
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Orders and payments
	orderSvc := order.NewService(order.NewOrderRepoPG(pool), order.NewPaymentRepoPG(pool), txm, locks, blobs, dispatcher, logger)
	order.NewHandler(orderSvc).RegisterRoutes(apiV1)

	// Invoices
	invoiceSvc := invoice.NewService(invoice.NewRepoPG(pool), orderSvc, invoice.NewDirectoryPG(pool, phoneRegion), render, cfg.Currency, logger)
	invoice.NewHandler(invoiceSvc).RegisterRoutes(apiV1)

	// Inventory
	inventorySvc := inventory.NewService(inventory.NewRepoPG(pool), txm, locks, cfg.ExpiryWindowDays, cfg.LowStockThreshold, logger)
	inventory.NewHandler(inventorySvc).RegisterRoutes(apiV1)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	dispatcher.Wait()
	logger.Info().Msg("server stopped")
	return nil
}
