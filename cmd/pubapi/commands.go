package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eringen/pubapi"
	"github.com/eringen/pubapi/logs"
	"github.com/eringen/pubapi/storage"
	"github.com/eringen/pubapi/telemetry"
)

func newRootCommand() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "pubapi",
		Short:         "JSON API for contact-form submissions and blog posts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path (optional)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Provision the schema and start the HTTP server",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), cfgFile)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Provision the schema and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runMigrate(cmd.Context(), cfgFile)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the pubapi version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "pubapi %s\n", version)
			},
		},
	)
	return root
}

// setup loads config and opens the logger and database shared by serve and
// migrate.
func setup(ctx context.Context, cfgFile string) (pubapi.SiteConfig, *slog.Logger, io.Closer, *storage.DB, error) {
	cfg, err := pubapi.LoadConfig(cfgFile)
	if err != nil {
		return cfg, nil, nil, nil, err
	}
	logger, logCloser := logs.New(cfg.Logging, "pubapi", cfg.Server.Environment)
	logger = logger.With(slog.String("version", version))
	slog.SetDefault(logger)

	db, err := storage.Open(ctx, cfg.Database.Storage())
	if err != nil {
		logCloser.Close()
		return cfg, nil, nil, nil, err
	}
	logger.Info("database opened", "driver", db.Dialect())
	return cfg, logger, logCloser, db, nil
}

func runMigrate(ctx context.Context, cfgFile string) error {
	cfg, logger, logCloser, db, err := setup(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	defer db.Close()

	app, err := pubapi.New(cfg, db, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Provision(ctx); err != nil {
		return fmt.Errorf("provision schema: %w", err)
	}
	logger.Info("schema provisioned", "tables", len(app.Tables()))
	return nil
}

// provisionOrDegrade provisions the schema before serving. A failure is
// fatal only with database.strict_provisioning; otherwise it is logged and
// the server starts degraded.
func provisionOrDegrade(ctx context.Context, app *pubapi.App, logger *slog.Logger) error {
	err := app.Provision(ctx)
	if err == nil {
		return nil
	}
	if app.Config.Database.StrictProvisioning {
		return fmt.Errorf("provision schema: %w", err)
	}
	logger.Error("schema provisioning failed, serving degraded", "error", err)
	return nil
}

func runServe(ctx context.Context, cfgFile string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, logCloser, db, err := setup(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	defer db.Close()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	app, err := pubapi.New(cfg, db, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := provisionOrDegrade(ctx, app, logger); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	var errs []error
	if err := app.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	logger.Info("server stopped")
	return errors.Join(errs...)
}
