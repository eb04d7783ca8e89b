package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/solatis/recordkeeper/internal/core/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending history database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.OutOrStdout(), cfg.History.DBURL)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrateStatus(cmd.OutOrStdout(), cfg.History.DBURL)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrate(w io.Writer, url string) error {
	if url == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(url)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := db.MigrateUp(database); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	printSuccess(w, "history database is up to date")
	return nil
}

func runMigrateStatus(w io.Writer, url string) error {
	if url == "" {
		return fmt.Errorf("--db-url required")
	}
	database, err := db.Open(url)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	statuses, err := db.MigrateStatus(database)
	if err != nil {
		return err
	}
	for _, s := range statuses {
		if s.Applied {
			at := "-"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			_, _ = successColor.Fprintf(w, "  applied ")
			fmt.Fprintf(w, "%s  %s  %dms\n", s.ID, at, s.ExecutionMs)
			continue
		}
		_, _ = warningColor.Fprintf(w, "  pending ")
		fmt.Fprintln(w, s.ID)
	}
	return nil
}
