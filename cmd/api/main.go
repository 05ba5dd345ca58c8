package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medication-adherence/internal/adapters/auth/odin"
	"medication-adherence/internal/adapters/rewards/points"
	pg "medication-adherence/internal/adapters/storage/postgres"
	"medication-adherence/internal/config"
	"medication-adherence/internal/jobs"
	"medication-adherence/internal/platform/logger"
	"medication-adherence/internal/platform/metrics"
	"medication-adherence/internal/ports/auth"
	"medication-adherence/internal/ports/rewards"
	"medication-adherence/internal/router"
)

// @title Medication Adherence API
// @version 1.0
// @description Agenda de dosis, registro de tomas y adherencia.
// @BasePath /
func main() {
	rootCmd := &cobra.Command{
		Use:   "adherence-api",
		Short: "Medication adherence API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the missed-dose sweeper if enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DBDSN == "" {
				return errors.New("DB_DSN is required for migrate")
			}
			db, err := pg.Open(cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			if err := pg.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			newLogger(cfg).Info("schema applied", nil)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the missed-dose sweeper once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			lg := newLogger(cfg)

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			app := router.New(router.Options{DB: db, Config: cfg, Logger: lg})
			rep, err := jobs.NewSweeper(app.Regimens, app.Agenda, app.Doses, lg).Run(cmd.Context())
			lg.Info("sweep finished", map[string]any{"owners": rep.Owners, "marked": rep.Marked, "failed": rep.Failed})
			return err
		},
	}
}

func runServer(migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lg := newLogger(cfg)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		if migrate {
			if err := pg.Migrate(context.Background(), db); err != nil {
				return err
			}
		}
	} else {
		lg.Warn("DB_DSN not set, using in-memory storage", nil)
	}

	verifier, err := newVerifier(cfg)
	if err != nil {
		return err
	}
	if verifier == nil {
		lg.Warn("dev mode: identity taken from X-Debug-User-ID", nil)
	}

	m := metrics.New()
	app := router.New(router.Options{
		AuthVerifier: verifier,
		DB:           db,
		Config:       cfg,
		Logger:       lg,
		Metrics:      m,
		Rewards:      newRewards(cfg, lg),
	})

	if cfg.SweepEnabled {
		sw := jobs.NewSweeper(app.Regimens, app.Agenda, app.Doses, lg)
		sched, err := jobs.NewScheduler(cfg.SweepSchedule, cfg.Location(), sw, lg, m)
		if err != nil {
			return fmt.Errorf("sweeper schedule %q: %w", cfg.SweepSchedule, err)
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
		lg.Info("sweeper scheduled", map[string]any{"schedule": cfg.SweepSchedule})
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("starting server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	lg.Info("shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	lg.Info("server stopped", nil)
	return nil
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})
}

// openDB devuelve nil sin DB_DSN (repos in-memory).
func openDB(cfg *config.Config) (*sql.DB, error) {
	if cfg.DBDSN == "" {
		return nil, nil
	}
	db, err := pg.Open(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// newVerifier: sin Odin configurado solo se permite el modo dev.
func newVerifier(cfg *config.Config) (auth.AuthVerifier, error) {
	client, err := odin.NewClient(odin.Config{BaseURL: cfg.OdinBaseURL, APIKey: cfg.OdinAPIKey})
	switch {
	case err == nil:
		return odin.NewVerifier(client), nil
	case errors.Is(err, odin.ErrOdinNotConfigured) && cfg.IsDev():
		return nil, nil
	default:
		return nil, fmt.Errorf("auth verifier: %w", err)
	}
}

func newRewards(cfg *config.Config, lg logger.Logger) rewards.Notifier {
	c, err := points.NewClient(points.Config{BaseURL: cfg.PointsBaseURL, APIKey: cfg.PointsAPIKey})
	if err != nil {
		lg.Info("points service not configured, rewards disabled", nil)
		return rewards.Nop{}
	}
	return c
}
