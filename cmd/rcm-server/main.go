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

	"github.com/rcm/rcm/internal/config"
	"github.com/rcm/rcm/internal/domain/batch"
	"github.com/rcm/rcm/internal/domain/claim"
	"github.com/rcm/rcm/internal/domain/intake"
	"github.com/rcm/rcm/internal/domain/priority"
	"github.com/rcm/rcm/internal/domain/qa"
	"github.com/rcm/rcm/internal/domain/role"
	"github.com/rcm/rcm/internal/domain/sla"
	"github.com/rcm/rcm/internal/platform/auth"
	"github.com/rcm/rcm/internal/platform/db"
	"github.com/rcm/rcm/internal/platform/events"
	"github.com/rcm/rcm/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rcm-server",
		Short: "Claim lifecycle and SLA workflow engine",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnIdleTime: cfg.DBIdleTime(),
	})
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow engine API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Engine wiring.
	bus := events.NewBus()
	scorer := priority.NewScorer(cfg.AmountCeilingCents)

	claimSvc := claim.NewService(claim.NewRepoPG(pool), bus, scorer)

	clock := sla.NewClock(sla.NewRepoPG(pool), bus, cfg.SLADefault(), logger)
	taskWindows, err := cfg.SLATaskWindows()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid SLA task windows")
	}
	for taskType, window := range taskWindows {
		clock.SetTaskWindow(taskType, window)
	}
	clock.Wire()

	assembler := batch.NewAssembler(batch.NewRepoPG(pool), claimSvc,
		batch.NewLogClearinghouse(logger), cfg.BatchMaxSize, logger)
	claimSvc.AddGuard(assembler.TransitionGuard())

	engine := qa.NewEngine(qa.NewRepoPG(pool), claimSvc, qa.Rules{
		HighValueCents: cfg.QAHighValueCents,
		GracePeriod:    time.Duration(cfg.QAGracePeriodDays) * 24 * time.Hour,
		SampleRate:     cfg.QASampleRate,
	}, logger)
	engine.Wire(bus)

	resolver := role.NewResolver()

	intakeSvc := intake.NewService(claimSvc, intake.AllowAllResolver{}, logger)

	// Echo server.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevMiddleware())
	} else {
		e.Use(auth.Middleware(cfg.AuthSecret, cfg.AuthIssuer))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateBurst))

	claim.NewHandler(claimSvc).RegisterRoutes(api)
	sla.NewHandler(clock).RegisterRoutes(api)
	batch.NewHandler(assembler).RegisterRoutes(api)
	qa.NewHandler(engine).RegisterRoutes(api)
	role.NewHandler(resolver, role.NewRepoPG(pool)).RegisterRoutes(api)
	intake.NewHandler(intakeSvc).RegisterRoutes(api)

	// Graceful shutdown.
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
	return e.Shutdown(shutdownCtx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	var dir string
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			n, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s)\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
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
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = fmt.Sprintf("applied %s", s.AppliedAt.Format(time.RFC3339))
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one SLA breach evaluation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
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

			bus := events.NewBus()
			bus.SubscribeBreaches(func(ev events.SLABreached) {
				logger.Warn().
					Str("claim_id", ev.ClaimID.String()).
					Time("deadline", ev.DeadlineAt).
					Msg("sla breached")
			})

			clock := sla.NewClock(sla.NewRepoPG(pool), bus, cfg.SLADefault(), logger)
			n, err := clock.Evaluate(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Printf("swept: %d breach(es)\n", n)
			return nil
		},
	}
}
