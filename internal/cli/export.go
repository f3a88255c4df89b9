package cli

import (
	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/naming"
)

var exportCmd = &cobra.Command{
	Use:   "export <entity-type> [<entity-id>]",
	Short: "Record an export of an audit trail",
	Long: `Record that the audit trail of an entity type, or of one entity, was
exported. An EXPORT audit entry is written; no file is produced. EXPORT
entries carry no snapshot and can never be rolled back.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType := naming.NormalizeEntityType(args[0])
		entityID := ""
		if len(args) == 2 {
			entityID = args[1]
		}
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		e, err := client.Export(cmdContext(cmd), requestContext(), entityType, entityID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, e)
		}
		printf(cmd, "Recorded %s as entry %s\n", e.Header(), color.EntryID(e.ID.String()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}
