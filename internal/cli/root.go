package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	configPath string
	envFile    string
	noColor    bool
	logLevel   string
	actorFlag  string

	rootCmd = &cobra.Command{
		Use:   "gxa",
		Short: "gxa - audited entity store with signed rollback",
		Long: `gxa records every change to quality-relevant entities (machines, assets,
parts, settings) as a signed, hash-chained audit entry, and restores an entity
to a prior state from its audit trail after verifying the entry's signature.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// errReported signals a failure whose details were already printed.
var errReported = errors.New("failure reported")

func init() {
	addPersistentFlags(rootCmd)
}

func addPersistentFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	pf.StringVar(&configPath, "config", "gxa.yaml", "path to the configuration file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with GXA_* overrides")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); default warn, or the configured level for serve")
	pf.StringVar(&actorFlag, "actor", "", "actor recorded on audit entries (default $GXA_ACTOR or $USER)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmtErr("%v", err)
		}
		os.Exit(1)
	}
}

// outputJSON prints v as indented JSON on the command's output.
func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
