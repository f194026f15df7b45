package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/clinicbook/clinic/internal/config"
	"github.com/clinicbook/clinic/internal/domain/billing"
	"github.com/clinicbook/clinic/internal/domain/doctor"
	"github.com/clinicbook/clinic/internal/domain/identity"
	"github.com/clinicbook/clinic/internal/domain/scheduling"
	"github.com/clinicbook/clinic/internal/platform/auth"
	"github.com/clinicbook/clinic/internal/platform/db"
	"github.com/clinicbook/clinic/internal/platform/lock"
	"github.com/clinicbook/clinic/internal/platform/metrics"
	"github.com/clinicbook/clinic/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

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

// openPool loads config and connects; callers close the pool.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd, statuses)
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(cmd *cobra.Command, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createAdmin := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := identity.NewService(identity.NewUserRepoPG(pool), auth.NewTokenIssuer(jwtConfig(cfg)), cfg.BcryptCost)
			u, err := svc.CreateAdmin(ctx, email, password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	createAdmin.Flags().String("email", "", "Admin email address")
	createAdmin.Flags().String("password", "", "Admin password (min 8 characters)")
	createAdmin.Flags().String("name", "Administrator", "Display name")
	cmd.AddCommand(createAdmin)

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		SigningKey: []byte(cfg.JWTSecret),
		TTL:        cfg.JWTExpiry(),
	}
}

// newRouter builds the echo instance with global middleware, health and
// metrics endpoints. Domain routes hang off the returned /api group.
func newRouter(logger zerolog.Logger, cfg *config.Config, reg *prometheus.Registry, m *metrics.Metrics) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	api := e.Group("/api")
	api.Use(m.Middleware())
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	api.Use(auth.Authenticate(jwtConfig(cfg)))
	api.Use(middleware.Audit(logger))

	return e, api
}

// services holds the wired domain layer.
type services struct {
	identity   *identity.Service
	doctor     *doctor.Service
	scheduling *scheduling.Service
	billing    *billing.Service
}

func newServices(cfg *config.Config, q db.Querier, tx scheduling.TxRunner, m *metrics.Metrics, locker scheduling.SlotLocker) *services {
	doctorSvc := doctor.NewService(doctor.NewRepoPG(q))
	identitySvc := identity.NewService(identity.NewUserRepoPG(q), auth.NewTokenIssuer(jwtConfig(cfg)), cfg.BcryptCost)

	slots := scheduling.NewSlotRepoPG(q)
	appts := scheduling.NewAppointmentRepoPG(q)
	opts := []scheduling.Option{scheduling.WithMetrics(m)}
	if locker != nil {
		opts = append(opts, scheduling.WithLocker(locker))
	}

	return &services{
		identity:   identitySvc,
		doctor:     doctorSvc,
		scheduling: scheduling.NewService(slots, appts, doctorSvc, identitySvc, tx, opts...),
		billing:    billing.NewService(billing.NewPaymentRepoPG(q), appts, slots, doctorSvc, tx, billing.WithMetrics(m)),
	}
}

func (s *services) registerRoutes(api *echo.Group) {
	identity.NewHandler(s.identity).RegisterRoutes(api)
	doctor.NewHandler(s.doctor).RegisterRoutes(api)
	scheduling.NewHandler(s.scheduling).RegisterRoutes(api)
	billing.NewHandler(s.billing).RegisterRoutes(api)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	zerolog.DefaultContextLogger = &logger
	decimal.MarshalJSONWithoutQuotes = true

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var locker scheduling.SlotLocker
	if cfg.RedisURL != "" {
		client, err := lock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		locker = lock.New(client, cfg.SlotHoldTTL, "slot-hold:")
		logger.Info().Dur("ttl", cfg.SlotHoldTTL).Msg("slot holds enabled")
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	e, api := newRouter(logger, cfg, reg, m)
	e.GET("/health/db", db.HealthHandler(pool))
	newServices(cfg, pool, db.NewTxRunner(pool), m, locker).registerRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
