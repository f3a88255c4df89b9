package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/model"
)

var showCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Preview an audit entry before rolling back",
	Long: `Preview an audit entry: its header, actor, signature status and the
old and new snapshots, and whether it can be rolled back.

The entity's current revision is shown so the rollback can be pinned to the
state you reviewed with --expected-revision.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := model.ParseEntryID(args[0])
		if err != nil {
			return err
		}
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		p, err := client.Preview(cmdContext(cmd), id)
		if errors.Is(err, errclass.ErrEntryNotFound) {
			fmtErr("%s", formatEntryNotFoundError(args[0]))
			return errReported
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, p)
		}
		printPreview(cmd, p)
		return nil
	},
}

func printPreview(cmd *cobra.Command, p *rollback.Preview) {
	printf(cmd, "%s\n", color.Header(p.Header))
	if p.DisplayName != "" {
		printf(cmd, "  Name:      %s\n", color.Entity(p.DisplayName))
	}
	printf(cmd, "  Entry:     %s\n", color.EntryID(p.EntryID.String()))
	printf(cmd, "  User:      %s\n", p.UserDisplay)
	printf(cmd, "  When:      %s\n", signature.FormatTimestamp(p.OccurredAt))
	if p.Note != "" {
		printf(cmd, "  Note:      %s\n", p.Note)
	}
	printf(cmd, "  Signature: %s\n", color.Signature(p.SignatureStatus))
	if p.Revision > 0 {
		printf(cmd, "  Revision:  %d\n", p.Revision)
	}
	printf(cmd, "\n%s\n%s\n", color.Dim("Old value"), p.OldJSON)
	printf(cmd, "\n%s\n%s\n\n", color.Dim("New value"), p.NewJSON)

	switch {
	case p.CanRollback:
		printf(cmd, "%s\n", color.Success(fmt.Sprintf("Rollback available: gxa rollback %s --expected-revision %d",
			p.EntryID, p.Revision)))
	case !p.Eligible:
		printf(cmd, "%s\n", color.Warning(model.OutcomeIneligible.Status()))
	case p.SignatureStatus != model.SignatureValid:
		printf(cmd, "%s\n", color.Error(model.OutcomeSignatureInvalid.Status()))
	case !p.HandlerFound:
		printf(cmd, "%s\n", color.Warning(model.OutcomeNoHandler.Status()))
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
}
