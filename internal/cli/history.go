package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/internal/signature"
	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/gxa"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/naming"
)

var (
	historyLimit  int
	historyAction string
)

var historyCmd = &cobra.Command{
	Use:   "history <entity-type> <entity-id>",
	Short: "Show the audit trail of an entity",
	Long: `Show the audit trail of an entity, newest first.

The first line shows the entity's current revision, for use with
'gxa rollback --expected-revision'. Each following line shows the entry id,
time, action, actor, signature status and whether the entry can be rolled
back (marked with ↺).

Examples:
  gxa history machines 42
  gxa history machines 42 -n 5
  gxa history settings retention --action UPDATE`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType := naming.NormalizeEntityType(args[0])
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		items, err := client.History(cmdContext(cmd), entityType, args[1])
		if err != nil {
			return err
		}
		items = filterHistory(items, historyAction, historyLimit)

		if jsonOutput {
			return outputJSON(cmd, items)
		}
		if len(items) == 0 {
			printf(cmd, "No audit entries for %s #%s.\n", entityType, args[1])
			if hint := suggestEntityTypes(entityType, client.HandlerTypes()); hint != "" {
				printf(cmd, "%s\n", hint)
			}
			return nil
		}
		printf(cmd, "%s #%s  revision %d\n", color.Entity(entityType), args[1], items[0].Revision)
		for _, it := range items {
			mark := " "
			if it.Eligible {
				mark = color.Success("↺")
			}
			printf(cmd, "%s  %s  %-8s  %-12s  %s %s",
				color.EntryID(it.ID.String()),
				color.Dim(signature.FormatTimestamp(it.OccurredAt)),
				it.Action,
				it.UserDisplay(),
				color.Signature(it.Signature),
				mark,
			)
			if it.Note != "" {
				printf(cmd, "  %s", it.Note)
			}
			printf(cmd, "\n")
		}
		return nil
	},
}

func filterHistory(items []gxa.HistoryItem, action string, limit int) []gxa.HistoryItem {
	if action != "" {
		want := model.Action(strings.ToUpper(action))
		filtered := items[:0]
		for _, it := range items {
			if it.Action == want {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "show at most N entries")
	historyCmd.Flags().StringVar(&historyAction, "action", "", "only show entries with this action")
	rootCmd.AddCommand(historyCmd)
}
