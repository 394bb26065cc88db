package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/maintrack/internal/catalog"
	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/runner"
	"github.com/watzon/maintrack/internal/server"
)

const shutdownTimeout = 10 * time.Second

var (
	servePort        int
	serveHost        string
	serveNoScheduler bool
	serveNoWatch     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the scheduled jobs",
	Long: `Start the maintrack server.

The server will:
  - Sync templates from catalog.path, if set
  - Schedule the generate, expire and performance jobs
  - Serve the inspection and job API

Use --no-scheduler to serve the API without running jobs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", config.DefaultHost, "Host to bind to")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Do not run scheduled jobs")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not watch the template catalog")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	clk := clock.Real()

	r, err := runner.FromConfig(db, clk, cfg)
	if err != nil {
		return err
	}

	if cfg.Catalog.Path != "" {
		watcher, err := startCatalog(ctx, db, clk, &cfg.Catalog, !serveNoWatch)
		if err != nil {
			return err
		}
		if watcher != nil {
			defer func() { _ = watcher.Stop() }()
		}
	}

	if cfg.Scheduler.Enabled && !serveNoScheduler {
		if err := r.Start(); err != nil {
			return err
		}
		defer r.Stop()
	}

	srv := server.New(cfg, db, r,
		server.WithVersion(version),
		server.WithClock(clk),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	log.Info().
		Str("url", "http://"+cfg.Server.Address()).
		Bool("scheduler", cfg.Scheduler.Enabled && !serveNoScheduler).
		Msg("Server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startCatalog syncs the catalog once and, when asked, keeps watching it.
func startCatalog(ctx context.Context, db *database.DB, clk clock.Clock, cfg *config.CatalogConfig, watch bool) (*catalog.Watcher, error) {
	syncer := catalog.NewSyncer(db, clk)
	if _, err := syncer.SyncPattern(ctx, cfg.Path); err != nil {
		return nil, fmt.Errorf("syncing catalog: %w", err)
	}

	if !watch || !cfg.Watch {
		return nil, nil
	}

	watcher, err := catalog.NewWatcher(syncer, cfg.Path, cfg.Debounce)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(); err != nil {
		_ = watcher.Stop()
		return nil, err
	}
	return watcher, nil
}
