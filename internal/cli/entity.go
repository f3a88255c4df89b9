package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/errclass"
	"github.com/gxp-audit/gxa/pkg/jsonutil"
	"github.com/gxp-audit/gxa/pkg/model"
	"github.com/gxp-audit/gxa/pkg/naming"
)

var (
	entityData string
	entityFile string
	entityNote string
)

var entityCmd = &cobra.Command{
	Use:   "entity <command>",
	Short: "Read and write audited entities",
	Long: `Read and write audited entities. Every write records a signed audit entry.

Available commands:
  get <type> <id>                      - Show current state and revision
  put <type> <id> --data '<json>'      - Create or update
  delete <type> <id>                   - Delete`,
	DisableFlagsInUseLine: true,
}

var entityGetCmd = &cobra.Command{
	Use:   "get <entity-type> <entity-id>",
	Short: "Show an entity's current state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		st, err := client.EntityState(cmdContext(cmd), naming.NormalizeEntityType(args[0]), args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cmd, st)
		}
		state := "deleted"
		if st.Exists() {
			state = jsonutil.Pretty(st.State)
		}
		printf(cmd, "%s  revision %d\n%s\n", color.Entity(st.Key.Type+" #"+st.Key.ID), st.Revision, state)
		return nil
	},
}

var entityPutCmd = &cobra.Command{
	Use:   "put <entity-type> <entity-id>",
	Short: "Create or update an entity",
	Long: `Create or update an entity from JSON given with --data, or read from
--file ("-" for stdin).

Examples:
  gxa entity put machines 42 --data '{"code":"M-42","name":"Autoclave","status":"active"}'
  gxa entity put settings retention --file setting.json --note "annual review"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := entityBody(cmd)
		if err != nil {
			return err
		}
		entityType := naming.NormalizeEntityType(args[0])
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		e, err := client.Put(cmdContext(cmd), requestContext(), entityType, args[1], body, entityNote)
		if errors.Is(err, errclass.ErrNameInvalid) {
			if hint := suggestEntityTypes(entityType, client.HandlerTypes()); hint != "" {
				return fmt.Errorf("%w\n  %s", err, hint)
			}
		}
		if err != nil {
			return err
		}
		return printWritten(cmd, e)
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete <entity-type> <entity-id>",
	Short: "Delete an entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		e, err := client.Delete(cmdContext(cmd), requestContext(), naming.NormalizeEntityType(args[0]), args[1], entityNote)
		if err != nil {
			return err
		}
		return printWritten(cmd, e)
	},
}

func entityBody(cmd *cobra.Command) (string, error) {
	switch {
	case entityData != "" && entityFile != "":
		return "", errors.New("use either --data or --file")
	case entityData != "":
		return entityData, nil
	case entityFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case entityFile != "":
		data, err := os.ReadFile(entityFile)
		return string(data), err
	}
	return "", errors.New("entity body required: pass --data or --file")
}

func printWritten(cmd *cobra.Command, e *model.AuditEntry) error {
	if jsonOutput {
		return outputJSON(cmd, e)
	}
	printf(cmd, "Recorded %s as entry %s\n", e.Header(), color.EntryID(e.ID.String()))
	return nil
}

func init() {
	entityPutCmd.Flags().StringVar(&entityData, "data", "", "entity JSON")
	entityPutCmd.Flags().StringVar(&entityFile, "file", "", "read entity JSON from a file, or - for stdin")
	for _, c := range []*cobra.Command{entityPutCmd, entityDeleteCmd} {
		c.Flags().StringVar(&entityNote, "note", "", "note recorded on the audit entry")
	}
	entityCmd.AddCommand(entityGetCmd)
	entityCmd.AddCommand(entityPutCmd)
	entityCmd.AddCommand(entityDeleteCmd)
	rootCmd.AddCommand(entityCmd)
}
