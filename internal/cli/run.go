package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/requestctx"
	"github.com/watzon/maintrack/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run one job now and print its summary",
	Long: `Run a single job against the configured database and print the
summary it returns as JSON.

Jobs:
  generate      Create instances for templates due within the lookahead
  expire        Expire overdue instances and complete finished ones
  performance   Recompute operator performance`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{runner.JobGenerate, runner.JobExpire, runner.JobPerformance},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd.Context(), appConfig, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runJob(ctx context.Context, cfg *config.Config, name string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	r, err := runner.FromConfig(db, clock.Real(), cfg)
	if err != nil {
		return err
	}

	summary, err := r.Run(requestctx.WithTrigger(ctx, requestctx.TriggerCLI), name)
	if err != nil {
		return err
	}

	return printJSON(out, summary)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
