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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agendamiento/citas/internal/config"
	"github.com/agendamiento/citas/internal/domain/booking"
	"github.com/agendamiento/citas/internal/domain/requester"
	"github.com/agendamiento/citas/internal/platform/auth"
	"github.com/agendamiento/citas/internal/platform/db"
	"github.com/agendamiento/citas/internal/platform/meetings"
	"github.com/agendamiento/citas/internal/platform/metrics"
	"github.com/agendamiento/citas/internal/platform/middleware"
	"github.com/agendamiento/citas/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "citas-server",
		Short: "Advisory appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(teamsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func teamsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "Manage the Teams meeting integration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Verify Microsoft Graph credentials and organizer access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.MeetingsEnabled() {
				return fmt.Errorf("meetings are not configured: set TEAMS_TENANT_ID, TEAMS_CLIENT_ID, TEAMS_CLIENT_SECRET and TEAMS_ORGANIZER_ID")
			}

			client := meetings.NewGraphClient(meetings.GraphConfig{
				TenantID:           cfg.TeamsTenantID,
				ClientID:           cfg.TeamsClientID,
				ClientSecret:       cfg.TeamsClientSecret,
				OrganizerID:        cfg.TeamsOrganizerID,
				InsecureSkipVerify: cfg.TeamsInsecureSkipVerify,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := client.CheckConnectivity(ctx); err != nil {
				return fmt.Errorf("connectivity check failed: %w", err)
			}
			fmt.Println("Microsoft Graph connectivity OK.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// API groups: the public surface is rate limited, the staff surface is
	// behind auth.
	public := e.Group("/api/v1")
	staff := e.Group("/api/v1/staff")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	public.Use(middleware.RateLimit(rateLimitCfg))

	if cfg.IsDev() {
		staff.Use(auth.DevAuthMiddleware())
	} else {
		staff.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	// Observability
	m := metrics.New()
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Notifications
	var sender notification.EmailSender
	if cfg.SendGridAPIKey != "" {
		sender = notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFromAddress)
	} else {
		logger.Warn().Msg("SENDGRID_API_KEY not set, email notifications disabled")
	}
	notifier := notification.NewNotifier(sender, notification.NewTemplateEngine(), logger)

	// Requester domain
	requesterRepo := requester.NewRepoPG(pool)
	requesterSvc := requester.NewService(requesterRepo)
	requesterHandler := requester.NewHandler(requesterSvc)
	requesterHandler.RegisterRoutes(staff)

	// Booking domain
	cal := booking.NewCalendar(loc, cfg.PublicLeadTime(), cfg.StaffLeadTime())
	apptRepo := booking.NewAppointmentRepoPG(pool)
	outcomeRepo := booking.NewOutcomeRepoPG(pool, loc)
	blockRepo := booking.NewBlockRepoPG(pool)
	bookingSvc := booking.NewService(apptRepo, outcomeRepo, blockRepo, requesterSvc,
		cal, cfg.CancelLeadTime(), notifier, m, logger)
	bookingHandler := booking.NewHandler(bookingSvc)
	bookingHandler.RegisterRoutes(public, staff)

	// Meeting provisioning — consumes lifecycle events and attaches Teams
	// meetings in the background.
	var provider meetings.Provider
	if cfg.MeetingsEnabled() {
		provider = meetings.NewGraphClient(meetings.GraphConfig{
			TenantID:           cfg.TeamsTenantID,
			ClientID:           cfg.TeamsClientID,
			ClientSecret:       cfg.TeamsClientSecret,
			OrganizerID:        cfg.TeamsOrganizerID,
			InsecureSkipVerify: cfg.TeamsInsecureSkipVerify,
		})
	} else {
		logger.Warn().Msg("Teams credentials not set, using mock meeting provider")
		provider = &meetings.MockProvider{}
	}
	provisioner := booking.NewProvisioner(provider, apptRepo, notifier, m, logger, loc,
		cfg.TeamsMaxRetries, cfg.TeamsRetryDelay())
	bookingSvc.AddListener(provisioner)
	provCtx, provCancel := context.WithCancel(ctx)
	defer provCancel()
	go provisioner.Start(provCtx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
