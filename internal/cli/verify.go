package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/internal/verify"
	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/naming"
	"github.com/gxp-audit/gxa/pkg/progress"
)

var (
	verifyAll bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [<entity-type> <entity-id>]",
	Short: "Verify audit signatures and hash chains",
	Long: `Verify audit signatures and hash chains.

Checks every entry's signature and the hash chain linking the entries of each
entity stream. Exits with status 1 when tampering is detected.

Examples:
  gxa verify                    # Verify all streams
  gxa verify machines 42        # Verify one entity's stream
  gxa verify --all              # Verify all streams`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <entity-type> <entity-id>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()
		ctx := cmdContext(cmd)

		var results []*verify.Result
		if verifyAll || len(args) == 0 {
			bar := progress.NewBar(cmd.ErrOrStderr(), "verify", !jsonOutput && color.Enabled())
			results, err = client.VerifyAllProgress(ctx, bar.Callback())
			bar.Finish()
		} else {
			var r *verify.Result
			r, err = client.Verify(ctx, naming.NormalizeEntityType(args[0]), args[1])
			results = []*verify.Result{r}
		}
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		if jsonOutput {
			if err := outputJSON(cmd, results); err != nil {
				return err
			}
		} else {
			printResults(cmd, results)
		}
		if verify.Tampered(results) {
			return errReported
		}
		return nil
	},
}

func printResults(cmd *cobra.Command, results []*verify.Result) {
	if len(results) == 0 {
		printf(cmd, "No audit entries.\n")
		return
	}
	for _, res := range results {
		status := color.Success("OK")
		if res.TamperDetected {
			status = color.Error("TAMPERED")
		}
		printf(cmd, "%-32s  %3d entries  %s\n", res.Stream.String(), res.Entries, status)
		for _, bad := range res.BadSignatures {
			printf(cmd, "  entry %s (%s): signature %s\n", color.EntryID(bad.EntryID.String()), bad.Action, color.Signature(bad.Status))
		}
		if res.ChainBreak != nil {
			printf(cmd, "  chain broken at entry %s: %s\n", color.EntryID(res.ChainBreak.EntryID.String()), res.ChainBreak.Reason)
		}
	}
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyAll, "all", false, "verify all streams")
	rootCmd.AddCommand(verifyCmd)
}
