// Package main provides a CLI tool for case-state schema migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/vehicle-tracking-service/internal/config"
	"github.com/helixir/vehicle-tracking-service/internal/database"
	"github.com/helixir/vehicle-tracking-service/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type migrateFunc func(ctx context.Context, m *database.Migrator, logger zerolog.Logger) error

func newRootCmd() *cobra.Command {
	var migrationsPath string

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the Postgres case-state schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&migrationsPath, "path", "", "override the migrations directory path")

	action := func(fn migrateFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), migrationsPath, fn)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: action(func(ctx context.Context, m *database.Migrator, logger zerolog.Logger) error {
				if err := m.Up(ctx); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				printVersion(m, logger)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: action(func(_ context.Context, m *database.Migrator, logger zerolog.Logger) error {
				if err := m.Down(); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				printVersion(m, logger)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Run N migration steps (positive=up, negative=down)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return withMigrator(cmd.Context(), migrationsPath, func(_ context.Context, m *database.Migrator, logger zerolog.Logger) error {
					if err := m.Steps(n); err != nil {
						return fmt.Errorf("migrate steps: %w", err)
					}
					printVersion(m, logger)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version and check it against this build",
			Args:  cobra.NoArgs,
			RunE: action(func(ctx context.Context, m *database.Migrator, logger zerolog.Logger) error {
				printVersion(m, logger)
				if err := m.Verify(ctx); err != nil {
					return fmt.Errorf("schema check: %w", err)
				}
				logger.Info().Uint("expected_version", database.SchemaVersion).Msg("schema matches this build")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "force V",
			Short: "Force the migration version after a failed migration",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
				}
				return withMigrator(cmd.Context(), migrationsPath, func(_ context.Context, m *database.Migrator, logger zerolog.Logger) error {
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					printVersion(m, logger)
					return nil
				})
			},
		},
	)

	return root
}

// withMigrator connects to the configured database and runs fn against it.
func withMigrator(parent context.Context, pathOverride string, fn migrateFunc) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	})
	logger = observability.WithComponent(logger, "migrate")

	migrationDir := cfg.Database.MigrationPath
	if pathOverride != "" {
		migrationDir = pathOverride
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	migrator, err := database.NewMigrator(db, migrationDir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	return fn(ctx, migrator, logger)
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	v, dirty, err := migrator.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", v).
		Bool("dirty", dirty).
		Msg("current migration version")
}
