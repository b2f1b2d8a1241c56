package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/rollcall/internal/cli"
	"github.com/Veraticus/rollcall/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the local journal schema to the latest version.

The journal holds unsent attendance drafts, recognition attempts and the
history of attendance changes.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}

	cmd.Flags().Bool("status", false, "show current schema version without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if status {
		store, err := storage.NewSQLiteStorage(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() { _ = store.Close() }()

		version, err := store.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, cli.FormatTitle("Database Migration Status"))
		fmt.Fprintf(out, "Database:        %s\n", store.Path())
		fmt.Fprintf(out, "Current version: %d\n", version)
		fmt.Fprintf(out, "Latest version:  %d\n", storage.ExpectedSchemaVersion)
		if version < storage.ExpectedSchemaVersion {
			fmt.Fprintln(out, cli.FormatWarning("Run 'rollcall migrate' to update."))
		}
		return nil
	}

	slog.Info("Running database migrations", "database", cfg.Database.Path)
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database migrations completed successfully!"))
	return nil
}
