package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/internal/storage"
	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/config"
)

var (
	initDriver string
	initDSN    string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file and database schema",
	Long: `Create the configuration file (when missing) and apply the database schema.

This creates:
  - gxa.yaml with defaults, or the --driver/--dsn given
  - the audit_entries and entity_records tables

Running init again is safe; it only applies missing migrations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		created := false
		if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
			cfg := config.Default()
			if initDriver != "" {
				cfg.Database.Driver = initDriver
			}
			if initDSN != "" {
				cfg.Database.DSN = initDSN
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(configPath, cfg); err != nil {
				return err
			}
			created = true
		} else if err != nil {
			return fmt.Errorf("stat %s: %w", configPath, err)
		}

		client, err := openClient(cmd)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer client.Close()

		cfg := client.Config()
		if jsonOutput {
			return outputJSON(cmd, map[string]any{
				"config":         configPath,
				"config_created": created,
				"driver":         cfg.Database.Driver,
				"dsn":            storage.MaskDSN(cfg.Database.DSN),
				"entity_types":   client.HandlerTypes(),
			})
		}
		if created {
			printf(cmd, "Wrote %s\n", color.Success(configPath))
		}
		printf(cmd, "Initialized %s database %s\n", cfg.Database.Driver, color.Info(storage.MaskDSN(cfg.Database.DSN)))
		printf(cmd, "  Entity types: %v\n", client.HandlerTypes())
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initDriver, "driver", "", "database driver for a new config (sqlite, postgres)")
	initCmd.Flags().StringVar(&initDSN, "dsn", "", "database DSN for a new config")
	rootCmd.AddCommand(initCmd)
}
