package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage gxa configuration",
	Long: `Manage gxa configuration stored in gxa.yaml (see --config).

Available commands:
  show              - Show the effective configuration (file, .env and GXA_* overrides)
  set <key> <value> - Set a value in the configuration file
  get <key>         - Get an effective configuration value

Keys:
  ` + strings.Join(config.Keys(), "\n  "),
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		shown := *cfg
		shown.Database.DSN = storage.MaskDSN(cfg.Database.DSN)

		if jsonOutput {
			return outputJSON(cmd, shown)
		}
		data, err := yaml.Marshal(shown)
		if err != nil {
			return err
		}
		printf(cmd, "# gxa configuration (%s)\n%s", configPath, data)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the configuration file.

Examples:
  gxa config set database.driver postgres
  gxa config set database.dsn "host=db user=gxa dbname=gxa sslmode=disable"
  gxa config set logging.format text`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		key, value := args[0], args[1]
		if err := cfg.Set(key, value); err != nil {
			return fmt.Errorf("set config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("set config: %w", err)
		}
		if err := config.Save(configPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		if key == "database.dsn" {
			value = storage.MaskDSN(value)
		}
		printf(cmd, "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		key := args[0]
		value, err := cfg.Get(key)
		if err != nil {
			return fmt.Errorf("get config: %w", err)
		}
		if value == "" {
			printf(cmd, "%s (not set)\n", key)
		} else {
			printf(cmd, "%s\n", value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}
