package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/watzon/maintrack/internal/catalog"
	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
)

var errNoCatalog = errors.New("no catalog pattern: pass one or set catalog.path")

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage declarative template definitions",
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync [glob]",
	Short: "Create or update templates from YAML definitions",
	Long: `Load every YAML file matching the glob (default catalog.path) and
create or update the templates they define.

Examples:
  maintrack catalog sync 'templates/**/*.yaml'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := appConfig.Catalog.Path
		if len(args) == 1 {
			pattern = args[0]
		}
		return syncCatalog(cmd.Context(), appConfig, pattern, cmd.OutOrStdout())
	},
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check [glob]",
	Short: "Validate YAML definitions without touching the database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := appConfig.Catalog.Path
		if len(args) == 1 {
			pattern = args[0]
		}
		return checkCatalog(pattern, cmd.OutOrStdout())
	},
}

func init() {
	catalogCmd.AddCommand(catalogSyncCmd)
	catalogCmd.AddCommand(catalogCheckCmd)

	rootCmd.AddCommand(catalogCmd)
}

func syncCatalog(ctx context.Context, cfg *config.Config, pattern string, out io.Writer) error {
	if pattern == "" {
		return errNoCatalog
	}
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	result, err := catalog.NewSyncer(db, clock.Real()).SyncPattern(ctx, pattern)
	if err != nil {
		return err
	}
	if err := printJSON(out, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d template(s) failed to sync", result.Failed)
	}
	return nil
}

func checkCatalog(pattern string, out io.Writer) error {
	if pattern == "" {
		return errNoCatalog
	}

	p, err := catalog.CompilePattern(pattern)
	if err != nil {
		return err
	}
	defs, err := p.Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ %d template definition(s) valid\n", len(defs))
	return nil
}
