package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
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

	"github.com/pm/patient-service/internal/config"
	"github.com/pm/patient-service/internal/domain/patient"
	"github.com/pm/patient-service/internal/platform/apierror"
	"github.com/pm/patient-service/internal/platform/auth"
	"github.com/pm/patient-service/internal/platform/cache"
	"github.com/pm/patient-service/internal/platform/db"
	"github.com/pm/patient-service/internal/platform/logging"
	"github.com/pm/patient-service/internal/platform/middleware"
	"github.com/pm/patient-service/internal/platform/openapi"
	"github.com/pm/patient-service/internal/platform/telemetry"
	"github.com/pm/patient-service/internal/platform/validation"
	"github.com/pm/patient-service/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "patient-service",
		Short:        "Patient records API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the patient API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _ := cmd.Flags().GetString("store")
			return runServer(store)
		},
	}
	cmd.Flags().String("store", "", "Patient store: postgres or memory (overrides STORE)")
	return cmd
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
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Printf("Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	addMigrateFlags(upCmd)
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				fmt.Printf("Migration status for schema: %s\n", schema)
				fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Println("---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	addMigrateFlags(statusCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}

func addMigrateFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "Target schema for migrations (default DB_SCHEMA)")
	cmd.Flags().String("dir", "", "Path to migrations directory (default: embedded migrations)")
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator, schema string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrations")
	}
	if schema == "" {
		schema = cfg.DBSchema
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigratorFS(pool, migrationFiles(dir)), schema)
}

// migrationFiles prefers a directory on disk and falls back to the SQL
// compiled into the binary.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		Schema:   cfg.DBSchema,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	}
}

// deps are the process-level collaborators behind the HTTP server.
type deps struct {
	repo    patient.Repository
	tx      patient.TxRunner
	cache   patient.Cache
	pool    *pgxpool.Pool
	metrics *telemetry.Provider
}

func runServer(storeOverride string) error {
	bootLogger := logging.Default()

	// Config
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Error().Err(err).Msg("failed to load config")
		return err
	}
	if storeOverride != "" {
		cfg.Store = storeOverride
	}
	if err := cfg.Validate(); err != nil {
		bootLogger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	// Logger
	logger, logCloser := logging.New(logging.Config{
		Level:   cfg.LogLevel,
		Console: cfg.IsDev(),
		File:    cfg.LogFile,
	}, os.Stdout)
	defer logCloser.Close()

	ctx := context.Background()
	d, cleanup, err := openDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise dependencies")
		return err
	}
	defer cleanup()

	e := newServer(cfg, logger, d)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.Store).Msg("starting server")
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
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openDeps connects the configured store, the optional cache and the
// metrics provider. The returned cleanup releases them in reverse order.
func openDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (deps, func(), error) {
	var d deps
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	metrics, err := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "patient-service",
		ServiceVersion: cfg.AppVersion,
		Environment:    cfg.Env,
	})
	if err != nil {
		return d, cleanup, err
	}
	d.metrics = metrics
	closers = append(closers, func() {
		if err := metrics.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("metrics shutdown")
		}
	})

	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory patient store; data is lost on restart")
		d.repo = patient.NewMemoryRepo()
	default:
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			cleanup()
			return d, func() {}, fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, pool.Close)
		logger.Info().Msg("connected to database")

		if cfg.AutoMigrate {
			n, err := db.NewMigratorFS(pool, migrationFiles(cfg.MigrationsDir)).Up(ctx, cfg.DBSchema)
			if err != nil {
				cleanup()
				return d, func() {}, fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info().Int("applied", n).Msg("migrations applied")
		}

		d.pool = pool
		d.repo = patient.NewPatientRepo(pool)
		d.tx = db.NewTxRunner(pool)
	}

	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn().Err(err).Msg("redis unavailable, patient cache disabled")
		} else {
			closers = append(closers, func() { _ = client.Close() })
			d.cache = cache.New(client, "patient:", cfg.CacheTTL)
			logger.Info().Dur("ttl", cfg.CacheTTL).Msg("patient cache enabled")
		}
	}

	return d, cleanup, nil
}

// newServer assembles the echo instance: middleware chain, health and
// metrics endpoints and the patient API.
func newServer(cfg *config.Config, logger zerolog.Logger, d deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apierror.Handler(logger)
	e.Validator = validation.New()

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}
	if d.metrics != nil && cfg.MetricsEnabled {
		e.Use(d.metrics.MetricsMiddleware())
		e.GET("/metrics", d.metrics.PrometheusHandler())
	}
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health checks
	var pinger db.Pinger
	if d.pool != nil {
		pinger = d.pool
		e.GET("/health/db", db.HealthHandler(d.pool))
	}
	e.GET("/api/health", db.ServiceHealthHandler(pinger, cfg.AppVersion, cfg.Env))

	// API docs are public, like health
	openapi.NewGenerator("Patient Service API", cfg.AppVersion, "").RegisterRoutes(e.Group("/api"))

	api := e.Group("/api")

	// Auth middleware
	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.AuthJWKSURL == "" {
		logger.Warn().Msg("development mode: requests run as an admin without authentication")
		api.Use(auth.DevAuthMiddleware())
	} else {
		api.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// Rate limiting middleware
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		ExpiresIn:         3 * time.Minute,
	}))

	opts := []patient.Option{patient.WithLogger(logger)}
	if d.tx != nil {
		opts = append(opts, patient.WithTxRunner(d.tx))
	}
	if d.cache != nil {
		opts = append(opts, patient.WithCache(d.cache))
	}
	if d.metrics != nil {
		opts = append(opts, patient.WithMetrics(d.metrics))
	}
	patient.NewHandler(patient.NewService(d.repo, opts...)).RegisterRoutes(api)

	return e
}
