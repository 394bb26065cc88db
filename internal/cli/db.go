package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/database/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database utilities",
	Long: `Database utilities for maintrack.

Examples:
  maintrack db status     Show the database path and applied migrations`,
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dbStatus(cmd.Context(), appConfig, cmd.OutOrStdout())
	},
}

func init() {
	dbCmd.AddCommand(dbStatusCmd)

	rootCmd.AddCommand(dbCmd)
}

// dbStatus opens the database, which applies pending migrations, and lists
// what is recorded as applied.
func dbStatus(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.GetApplied(ctx, db.DB)
	if err != nil {
		return err
	}

	pending, err := migrations.Pending(ctx, db.DB)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Database: %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "Applied migrations: %d\n", len(applied))
	fmt.Fprintf(out, "Pending migrations: %d\n\n", len(pending))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHECKSUM\tAPPLIED AT")
	for _, m := range applied {
		sum := m.Checksum
		if len(sum) > 12 {
			sum = sum[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, sum, m.AppliedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
