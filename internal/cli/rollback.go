package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/internal/rollback"
	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/model"
)

var (
	rollbackYes              bool
	rollbackExpectedRevision uint64
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <entry-id>",
	Short: "Restore an entity to its state before an audit entry",
	Long: `Restore an entity to the state recorded before the given audit entry.

The entry must carry a prior snapshot, its signature must verify and the
entity type must have a restore handler. You are asked to confirm on the
terminal unless --yes is given. The rollback itself is recorded as a new
signed ROLLBACK audit entry.

Pass --expected-revision with the revision printed by 'gxa show' to abort
when the entity was written after you reviewed the entry.

Examples:
  gxa rollback 1803421950417936384
  gxa rollback 1803421950417936384 --expected-revision 7 --yes`,
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
		ctx := cmdContext(cmd)

		entry, err := client.Entry(ctx, id)
		if errors.Is(err, errclass.ErrEntryNotFound) {
			fmtErr("%s", formatEntryNotFoundError(args[0]))
			return errReported
		}
		if err != nil {
			return err
		}

		var confirmer rollback.Confirmer = rollback.Static(true)
		if !rollbackYes {
			if jsonOutput {
				return errors.New("--json requires --yes; there is no terminal prompt in JSON mode")
			}
			confirmer = &rollback.Terminal{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
		}

		target := rollback.Target{EntityType: entry.EntityType, EntityID: entry.EntityID, EntryID: id}
		if cmd.Flags().Changed("expected-revision") {
			rev := model.Revision(rollbackExpectedRevision)
			target.ExpectedRevision = &rev
		}
		applied, err := client.Rollback(ctx, requestContext(), target, confirmer)
		outcome := model.OutcomeOf(err)

		if jsonOutput {
			if jerr := outputJSON(cmd, map[string]any{
				"outcome": outcome,
				"status":  outcome.Status(),
				"entry":   applied,
			}); jerr != nil {
				return jerr
			}
		} else {
			printf(cmd, "%s: %s\n", color.Outcome(outcome), outcome.Status())
			if applied != nil {
				printf(cmd, "  Recorded %s as entry %s\n", applied.Header(), color.EntryID(applied.ID.String()))
			}
		}
		if outcome != model.OutcomeCompleted {
			return errReported
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVarP(&rollbackYes, "yes", "y", false, "do not ask for confirmation")
	rollbackCmd.Flags().Uint64Var(&rollbackExpectedRevision, "expected-revision", 0, "abort unless the entity is still at this revision")
	rootCmd.AddCommand(rollbackCmd)
}
