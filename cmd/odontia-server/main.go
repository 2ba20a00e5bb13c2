package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/odontia/odontia/internal/config"
	"github.com/odontia/odontia/internal/domain/catalog"
	"github.com/odontia/odontia/internal/domain/ledger"
	"github.com/odontia/odontia/internal/domain/patient"
	"github.com/odontia/odontia/internal/platform/auth"
	"github.com/odontia/odontia/internal/platform/db"
	"github.com/odontia/odontia/internal/platform/middleware"
)

// catalogTemplateSource adapts the catalog service to the template
// source the ledger needs, avoiding a circular import between the two
// domains.
type catalogTemplateSource struct {
	svc *catalog.Service
}

func (a *catalogTemplateSource) ListTemplates(ctx context.Context) ([]ledger.Template, error) {
	templates, err := a.svc.Templates(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Template, 0, len(templates))
	for _, t := range templates {
		out = append(out, ledger.Template{ID: t.ID, Name: t.Name, UnitPrice: t.UnitPrice})
	}
	return out, nil
}

func (a *catalogTemplateSource) SaveTemplates(ctx context.Context, templates []ledger.Template) error {
	in := make([]catalog.ProcedureTemplate, 0, len(templates))
	for _, t := range templates {
		in = append(in, catalog.ProcedureTemplate{ID: t.ID, Name: t.Name, UnitPrice: t.UnitPrice})
	}
	_, err := a.svc.ReplaceTemplates(ctx, in)
	return err
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "odontia-server",
		Short: "Dental clinical records API server",
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

			if dir == "" {
				dir = cfg.MigrationsDir
			}
			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
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

			if dir == "" {
				dir = cfg.MigrationsDir
			}
			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
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

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/healthz", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	// Domain wiring. The ledger takes its price list from the catalog
	// through an adapter so edit-mode confirmations land in the shared
	// procedure_templates table.
	catalogRepo := catalog.NewRepoPG(pool)
	catalogSvc := catalog.NewService(catalogRepo, catalogRepo)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)

	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	ledgerSvc := ledger.NewService(
		ledger.NewSessionRepoPG(pool),
		&catalogTemplateSource{svc: catalogSvc},
	)
	ledger.NewHandler(ledgerSvc).RegisterRoutes(apiV1)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server starting")
		if err := e.StartServer(srv); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped unexpectedly")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}
