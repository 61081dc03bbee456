package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostsweep/internal/auth"
	"github.com/anstrom/hostsweep/internal/config"
)

const defaultConfigFile = "hostsweep.yaml"

var (
	configForce bool
	apiKeySave  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := defaultConfigFile
		if len(args) == 1 {
			path = args[0]
		}
		if err := writeDefaultConfig(path, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return showConfig(cmd.OutOrStdout(), cfg)
	},
}

var configAPIKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an API key",
	Long: `Generate a random API key and print it with its bcrypt hash. Only the hash
belongs in the configuration (api.api_key_hashes); the key is shown once.
With --save the hash is appended to the configuration file in use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := auth.GenerateAPIKey()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "API key:  %s\n", key.Key)
		fmt.Fprintf(out, "Hash:     %s\n", key.Hash)

		if !apiKeySave {
			fmt.Fprintln(out, "Add the hash to api.api_key_hashes to enable it.")
			return nil
		}

		path := viper.ConfigFileUsed()
		if path == "" {
			path = defaultConfigFile
		}
		if err := appendAPIKeyHash(path, key.Hash); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved hash for %s to %s\n", key.KeyPrefix, path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configAPIKeyCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configAPIKeyCmd.Flags().BoolVar(&apiKeySave, "save", false, "append the hash to the configuration file")
}

func writeDefaultConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	return config.Default().Save(path)
}

// showConfig prints cfg as YAML with the database password masked.
func showConfig(out io.Writer, cfg *config.Config) error {
	redacted := *cfg
	if redacted.Database.Password != "" {
		redacted.Database.Password = "********"
	}

	data, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func appendAPIKeyHash(path, hash string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.API.APIKeyHashes = append(cfg.API.APIKeyHashes, hash)
	return cfg.Save(path)
}
