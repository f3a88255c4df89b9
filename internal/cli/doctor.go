package cli

import (
	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/pkg/color"
)

var (
	doctorStrict bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database health",
	Long: `Check database health.

Checks that the database is reachable, the schema is applied and every entity
type found in the audit log has a restore handler. Use --strict to include a
full signature and hash chain scan.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		result, err := client.Doctor(cmdContext(cmd), doctorStrict)
		if err != nil {
			return err
		}

		if jsonOutput {
			if err := outputJSON(cmd, result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			printf(cmd, "%s\n", color.Success("Database is healthy."))
		} else {
			printf(cmd, "Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				sev := f.Severity
				if sev == "critical" || sev == "error" {
					sev = color.Error(sev)
				} else {
					sev = color.Warning(sev)
				}
				printf(cmd, "  [%s] %s: %s\n", sev, f.Category, f.Description)
			}
		}

		if !result.Healthy {
			return errReported
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "include full integrity verification")
	rootCmd.AddCommand(doctorCmd)
}
