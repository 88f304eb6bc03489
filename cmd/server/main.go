// Command server runs the exam generation API: HTTP intake, the
// background generation worker pool, and the synchronous regeneration
// endpoints.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/examgen/examgen-api/internal/config"
	"github.com/examgen/examgen-api/internal/platform/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "examgen-api",
		Short:        "Asynchronous exam generation service",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, migrateCmd())

	// Bare `examgen-api` serves.
	root.RunE = serve.RunE

	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and the generation workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}

			app, err := newApplication(cfg, log)
			if err != nil {
				return fmt.Errorf("failed to build application: %w", err)
			}
			defer app.Close()

			return app.Run(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}

			db, err := openDatabase(cfg.Database.URL)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := runMigrations(db); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func loadConfigAndLogger() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, logger.Setup(cfg.Server.LogLevel), nil
}
