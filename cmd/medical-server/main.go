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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tshla/medical-core/internal/config"
	"github.com/tshla/medical-core/internal/domain/audiosummary"
	"github.com/tshla/medical-core/internal/domain/dictation"
	"github.com/tshla/medical-core/internal/domain/identity"
	"github.com/tshla/medical-core/internal/platform/audit"
	"github.com/tshla/medical-core/internal/platform/auth"
	"github.com/tshla/medical-core/internal/platform/db"
	"github.com/tshla/medical-core/internal/platform/metrics"
	"github.com/tshla/medical-core/internal/platform/middleware"
	"github.com/tshla/medical-core/internal/platform/softdelete"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medical-server",
		Short: "Patient identity and record integrity API server",
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

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
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

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
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	// Records are never physically removed, so there is nothing for a
	// down migration to restore safely.
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Not supported",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("down migrations are not supported; write a forward migration instead")
		},
	})

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.ResolvedAuthMode() == "development" {
		logger.Warn().Msg("running with development auth: every request acts as a fixed staff member")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	m := metrics.New()
	e, err := buildServer(cfg, pool, m, logger)
	if err != nil {
		return err
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// buildServer wires middleware, policies and domain handlers onto a fresh
// echo instance.
func buildServer(cfg *config.Config, pool *pgxpool.Pool, m *metrics.Metrics, logger zerolog.Logger) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			c.Set("request_id", id)
		},
	}))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.CORSOrigins}))
	e.Use(middleware.RequestInfo())
	e.Use(m.EchoMiddleware())

	switch cfg.ResolvedAuthMode() {
	case "development":
		e.Use(auth.DevMiddleware())
	default:
		e.Use(auth.Middleware([]byte(cfg.JWTSecret)))
	}
	e.Use(middleware.Logger(logger))

	engine := auth.NewDefaultEngine()
	recorder := audit.NewPGRecorder(pool)

	dictationLedger, err := softdelete.NewLedger(pool, "dictation")
	if err != nil {
		return nil, err
	}
	summaryLedger, err := softdelete.NewLedger(pool, "audio_summary")
	if err != nil {
		return nil, err
	}

	identitySvc := identity.NewService(
		engine, identity.NewPGRepository(pool), identity.NewRandomIssuer(), recorder, m, logger)
	dictationSvc := dictation.NewService(
		engine, dictation.NewPGRepository(pool), dictationLedger, recorder, m, logger)
	summarySvc := audiosummary.NewService(
		engine, audiosummary.NewPGRepository(pool), summaryLedger, recorder, m, logger)

	api := e.Group("/api/v1")
	identity.NewHandler(identitySvc).RegisterRoutes(api)
	dictation.NewHandler(dictationSvc).RegisterRoutes(api)
	audiosummary.NewHandler(summarySvc).RegisterRoutes(api)
	audit.NewHandler(recorder, map[string]*softdelete.Ledger{
		"dictation":     dictationLedger,
		"audio_summary": summaryLedger,
	}).RegisterRoutes(api)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	return e, nil
}
