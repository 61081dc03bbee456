package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/hostsweep/internal/api"
	"github.com/anstrom/hostsweep/internal/api/handlers"
	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/scheduler"
)

const (
	engineShutdownTimeout = 10 * time.Second
	systemMetricsInterval = 15 * time.Second
	configScheduleName    = "config"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API",
	Long: `Run the hostsweep API in the foreground. Scans are started and canceled
over HTTP and their events are streamed on /api/v1/ws. When schedule.enabled
is set the configured range is also scanned on its cron schedule.`,
	Example: `  hostsweep server
  hostsweep server --port 9090
  HOSTSWEEP_DATABASE_ENABLED=true hostsweep server`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "", "listen address")
	serverCmd.Flags().Int("port", 0, "listen port")

	bindFlags(serverCmd, map[string]string{
		"api.listen_addr": "host",
		"api.port":        "port",
	})
}

// runServer serves the API until ctx ends, then stops the scheduler and the
// engine.
func runServer(ctx context.Context, cfg *config.Config) error {
	logger := logging.Default()
	m := metrics.GetGlobalMetrics()
	go m.StartPeriodicUpdates(ctx, systemMetricsInterval)

	reg, database, err := openRegistry(ctx, cfg, m)
	if err != nil {
		return err
	}
	var pinger handlers.DatabasePinger
	if database != nil {
		pinger = database
		defer func() {
			if closeErr := database.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", closeErr)
			}
		}()
	}

	hub := handlers.NewEventHub(logger.Logger, m)
	engine := newEngine(cfg, hub, reg, m, logger)

	sched := scheduler.NewScheduler(engine)
	if cfg.Schedule.Enabled {
		if _, err := sched.AddJob(configScheduleName, cfg.Schedule.Cron, cfg.Schedule.Range); err != nil {
			return fmt.Errorf("failed to schedule scans: %w", err)
		}
	}
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv, err := api.New(cfg.API, api.Deps{
		Engine:    engine,
		Hub:       hub,
		Scheduler: sched,
		Database:  pinger,
		Metrics:   m,
		Logger:    logger,
		Version:   handlers.VersionInfo{Version: version, Commit: commit, BuildTime: buildTime},
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	fmt.Printf("API server listening on http://%s\n", cfg.GetAPIAddress())
	fmt.Printf("Event stream: ws://%s/api/v1/ws\n", cfg.GetAPIAddress())

	serveErr := srv.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), engineShutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Scan did not stop in time", "error", err)
	}

	return serveErr
}
