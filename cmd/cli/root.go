// Package cli provides the hostsweep command-line interface: one-off scans,
// the API server, and configuration and database maintenance.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/logging"
)

const envPrefix = "HOSTSWEEP"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hostsweep",
	Short: "LAN host discovery",
	Long: `hostsweep finds live hosts on an IPv4 network by probing a few common TCP
ports on every address in a range, then resolves names for the hosts that
answer. Scans run from the command line or through the HTTP API.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hostsweep.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig locates the config file and wires environment overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home + "/.config/hostsweep")
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("hostsweep")
	}

	// HOSTSWEEP_SCANNING_CONCURRENCY overrides scanning.concurrency
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging installs the default logger from the configuration. Logging
// setup failures fall back to stdout text logging.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logCfg := cfg.LoggerConfig()
	if verbose {
		logCfg.Level = logging.LevelDebug
	}

	logger, err := logging.New(logCfg)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Debug("Structured logging initialized", "level", logCfg.Level, "format", logCfg.Format)
	}
}

// loadConfig reads the file viper located, then applies environment and
// flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}

	applyOverrides(cfg, viper.GetViper())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every key set in v, by environment or bound flag,
// onto cfg.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	setInt := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setBool := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	setInt("scanning.concurrency", &cfg.Scanning.Concurrency)
	setInt("scanning.max_addresses", &cfg.Scanning.MaxAddresses)
	if v.IsSet("scanning.ports") {
		if ports := v.GetIntSlice("scanning.ports"); len(ports) > 0 {
			cfg.Scanning.Ports = ports
		}
	}
	if v.IsSet("scanning.port_timeout") {
		cfg.Scanning.PortTimeout = v.GetDuration("scanning.port_timeout")
	}
	if v.IsSet("scanning.rate_limit") {
		cfg.Scanning.RateLimit = v.GetFloat64("scanning.rate_limit")
	}

	setBool("resolver.disable_os_lookup", &cfg.Resolver.DisableOSLookup)
	setInt("resolver.max_concurrent", &cfg.Resolver.MaxConcurrent)

	setString("api.listen_addr", &cfg.API.ListenAddr)
	setInt("api.port", &cfg.API.Port)

	setBool("database.enabled", &cfg.Database.Enabled)
	setString("database.host", &cfg.Database.Host)
	setInt("database.port", &cfg.Database.Port)
	setString("database.database", &cfg.Database.Database)
	setString("database.username", &cfg.Database.Username)
	setString("database.password", &cfg.Database.Password)

	setBool("schedule.enabled", &cfg.Schedule.Enabled)
	setString("schedule.cron", &cfg.Schedule.Cron)
	setString("schedule.range", &cfg.Schedule.Range)

	setString("logging.level", &cfg.Logging.Level)
	setString("logging.format", &cfg.Logging.Format)
	setString("logging.output", &cfg.Logging.Output)
}
