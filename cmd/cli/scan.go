package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/scanner"
)

var (
	scanStart string
	scanEnd   string
	scanJSON  bool
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [range]",
	Short: "Scan an address range for live hosts",
	Long: `Probe every address in a range and report the hosts that answer.

A range is a CIDR block, a hyphenated span or a comma-separated list of
addresses. Alternatively pass the first and last address with --start and
--end. Press Ctrl-C to cancel; results gathered so far are still printed.`,
	Example: `  hostsweep scan 192.168.1.0/24
  hostsweep scan 192.168.1.1-192.168.1.50
  hostsweep scan "192.168.1.21, 192.168.1.42"
  hostsweep scan --start 10.0.0.1 --end 10.0.0.254 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := scanRequestFromArgs(args, scanStart, scanEnd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runScan(ctx, cfg, req, cmd.OutOrStdout(), scanJSON)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanStart, "start", "", "first address of the range")
	scanCmd.Flags().StringVar(&scanEnd, "end", "", "last address of the range")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print events as JSON lines")
	scanCmd.Flags().Int("concurrency", 0, "addresses probed at once")
	scanCmd.Flags().IntSlice("ports", nil, "TCP ports probed on each address")
	scanCmd.Flags().Duration("port-timeout", 0, "timeout for one connect attempt")
	scanCmd.Flags().Float64("rate", 0, "addresses dispatched per second (0 for no limit)")
	scanCmd.Flags().Bool("no-os-lookup", false, "skip the system resolver fallback")

	scanCmd.MarkFlagsRequiredTogether("start", "end")

	bindFlags(scanCmd, map[string]string{
		"scanning.concurrency":       "concurrency",
		"scanning.ports":             "ports",
		"scanning.port_timeout":      "port-timeout",
		"scanning.rate_limit":        "rate",
		"resolver.disable_os_lookup": "no-os-lookup",
	})
}

// bindFlags binds config keys to command flags so applyOverrides sees them.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", name, err)
		}
	}
}

// scanRequestFromArgs builds a request from the positional range or the
// --start/--end pair.
func scanRequestFromArgs(args []string, start, end string) (scanner.Request, error) {
	switch {
	case len(args) == 1 && start == "" && end == "":
		return scanner.Request{Range: args[0]}, nil
	case len(args) == 0 && start != "" && end != "":
		return scanner.Request{StartIP: start, EndIP: end}, nil
	default:
		return scanner.Request{}, fmt.Errorf("invalid arguments: give a range or both --start and --end")
	}
}

// runScan runs one scan to completion, canceling it when ctx ends, and
// prints the outcome to out.
func runScan(ctx context.Context, cfg *config.Config, req scanner.Request, out io.Writer, jsonMode bool) error {
	logger, closeLog := scanLogger(cfg)
	defer closeLog()
	m := metrics.GetGlobalMetrics()

	reg, database, err := openRegistry(ctx, cfg, m)
	if err != nil {
		return err
	}
	if database != nil {
		defer func() { _ = database.Close() }()
	}

	printer := newEventPrinter(out, jsonMode)
	engine := newEngine(cfg, printer, reg, m, logger)

	if _, err := engine.Start(req); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = engine.Wait(context.Background())
	}()

	select {
	case <-done:
	case <-ctx.Done():
		engine.Cancel()
		<-done
	}

	complete, failure := printer.result()
	if failure != nil {
		return fmt.Errorf("scan failed: %s", failure.Message)
	}
	if complete == nil || jsonMode {
		return nil
	}
	return renderResults(out, complete.Results)
}

// scanLogger keeps stdout for scan output by moving stdout logging to
// stderr, quiet unless verbose.
func scanLogger(cfg *config.Config) (*logging.Logger, func()) {
	logCfg := cfg.LoggerConfig()
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
		if !verbose {
			logCfg.Level = logging.LevelWarn
		}
	}

	logger, err := logging.New(logCfg)
	if err != nil {
		return logging.Default(), func() {}
	}
	return logger, func() { _ = logger.Close() }
}
