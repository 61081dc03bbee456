package cli

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/db"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/registry"
)

const databaseTimeout = 30 * time.Second

var (
	deviceHostname string
	deviceName     string
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the known-device database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(ctx context.Context, database *db.DB) error {
			if err := db.NewMigrator(database.DB).Up(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
			return nil
		})
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(ctx context.Context, database *db.DB) error {
			statuses, err := db.NewMigrator(database.DB).Status(ctx)
			if err != nil {
				return err
			}
			return renderMigrations(cmd.OutOrStdout(), statuses)
		})
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage known devices",
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Register or update a known device",
	Long: `Register a known device. With the database enabled the device is stored in
Postgres; otherwise it is added to registry.known in the configuration file.`,
	Example: `  hostsweep devices add 192.168.1.10 --hostname nas.lan --name "Storage"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := netip.ParseAddr(args[0])
		if err != nil || !addr.Is4() {
			return fmt.Errorf("invalid IPv4 address: %q", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Database.Enabled {
			path := viper.ConfigFileUsed()
			if path == "" {
				path = defaultConfigFile
			}
			if err := addKnownDevice(path, addr, deviceHostname, deviceName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s in %s\n", addr, path)
			return nil
		}

		return withDatabase(cmd, func(ctx context.Context, database *db.DB) error {
			repo := db.NewDeviceRepository(database, metrics.GetGlobalMetrics())
			device := &db.Device{IPAddress: db.NewIPAddr(addr)}
			if deviceHostname != "" {
				device.Hostname = &deviceHostname
			}
			if deviceName != "" {
				device.Name = &deviceName
			}
			if err := repo.Upsert(ctx, device); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s\n", addr)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dbCmd, devicesCmd)
	dbCmd.AddCommand(dbMigrateCmd, dbStatusCmd)
	devicesCmd.AddCommand(devicesAddCmd)

	devicesAddCmd.Flags().StringVar(&deviceHostname, "hostname", "", "last known hostname")
	devicesAddCmd.Flags().StringVar(&deviceName, "name", "", "display name")
}

// withDatabase connects with the configured settings, which must enable the
// database, and runs fn.
func withDatabase(cmd *cobra.Command, fn func(ctx context.Context, database *db.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireDatabase(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), databaseTimeout)
	defer cancel()

	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	return fn(ctx, database)
}

// addKnownDevice registers addr in the registry.known list of the config
// file at path, replacing any entry for the same address.
func addKnownDevice(path string, addr netip.Addr, hostname, name string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	known, err := registry.NewMemory(cfg.Registry.Known)
	if err != nil {
		return err
	}
	known.Add(addr, hostname, name)
	cfg.Registry.Known = known.Known()
	return cfg.Save(path)
}

func requireDatabase(cfg *config.Config) error {
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is disabled; set database.enabled in the configuration")
	}
	return nil
}

func renderMigrations(out io.Writer, statuses []db.MigrationStatus) error {
	table := tablewriter.NewWriter(out)
	table.Header("Migration", "Status", "Applied")
	for _, s := range statuses {
		state, applied := "pending", "-"
		if s.Applied {
			state = "applied"
			applied = s.AppliedAt.Format("2006-01-02 15:04")
		}
		if err := table.Append([]string{s.Name, state, applied}); err != nil {
			return err
		}
	}
	return table.Render()
}
