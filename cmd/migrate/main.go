package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"ms-checkin/internal/config"
	"ms-checkin/internal/database"
	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"
)

var migrationsDir string

var rootCmd = &cobra.Command{
	Use:           "migrate",
	Short:         "Manage the check-in database schema",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			return r.MigrateUp()
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			return r.MigrateDown()
		})
	},
}

var toCmd = &cobra.Command{
	Use:   "to <version>",
	Short: "Migrate up or down to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			return r.MigrateTo(uint(version))
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd.Context(), func(r *migrations.Runner) error {
			version, dirty, err := r.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "migrations directory (default from MIGRATIONS_DIR)")
	rootCmd.AddCommand(upCmd, downCmd, toCmd, versionCmd)
}

func withRunner(ctx context.Context, fn func(r *migrations.Runner) error) error {
	cfg := config.Load()
	if cfg.Database.DSN == "" {
		return errors.New("config: POSTGRES_DSN is required")
	}
	if migrationsDir != "" {
		cfg.Database.MigrationsDir = migrationsDir
	}

	log := logger.NewLogger(logger.Options{
		Dir:     cfg.Log.Dir,
		Service: "checkin-migrate",
		Level:   cfg.Log.Level,
	})
	defer log.Close()

	sqldb, err := database.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer sqldb.Close()

	runner := migrations.NewRunner(sqldb, migrations.MigrateOptions{MigrationsDir: cfg.Database.MigrationsDir}, log)
	defer runner.Close()

	if err := fn(runner); err != nil {
		return err
	}
	log.Info("DATABASE", "Migration command completed")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
