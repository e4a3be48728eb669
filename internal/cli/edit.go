package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// EditResult reports the effect of an import, remove or clear.
type EditResult struct {
	Table    string `json:"table"`
	Affected int    `json:"affected"`
	Total    int    `json:"total"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <table> <file.json>",
		Short: "Upsert entities from a JSON array",
		Long: `Upsert every entity of a JSON array into an entity table.

Each element must be an object with a string "id". Existing entities with
the same id are replaced in place.

Examples:
  receiptvault import invoices invoices.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := entityTable(args[0])
			if err != nil {
				return err
			}
			records, err := readRecords(args[1])
			if err != nil {
				return err
			}
			return runEdit(rootOpts, cmd, table, "imported", func(s *entitystore.Store[entitystore.Record]) int {
				for _, r := range records {
					s.UpsertEntity(r)
				}
				return len(records)
			})
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <table> <id>...",
		Short: "Remove entities by id",
		Long: `Remove entities from an entity table. Unknown ids are ignored.

Examples:
  receiptvault remove scans scan-1 scan-2`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := entityTable(args[0])
			if err != nil {
				return err
			}
			ids := args[1:]
			return runEdit(rootOpts, cmd, table, "removed", func(s *entitystore.Store[entitystore.Record]) int {
				before := len(s.State().Entities)
				s.RemoveEntities(ids...)
				return before - len(s.State().Entities)
			})
		},
	}
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <table>",
		Short: "Remove every entity of a table",
		Long: `Remove every entity of an entity table.

Examples:
  receiptvault clear merchants`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := entityTable(args[0])
			if err != nil {
				return err
			}
			return runEdit(rootOpts, cmd, table, "cleared", func(s *entitystore.Store[entitystore.Record]) int {
				n := len(s.State().Entities)
				s.ClearEntities()
				return n
			})
		},
	}
}

// runEdit hydrates a store over table, applies edit and closes the store,
// which makes the change durable.
func runEdit(opts *RootOptions, cmd *cobra.Command, table tablestore.TableName, verb string, edit func(*entitystore.Store[entitystore.Record]) int) (err error) {
	e, err := opts.newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var f failures
	s, err := e.recordStore(cmd.Context(), table, f.observe)
	if err != nil {
		return err
	}
	affected := edit(s)
	total := len(s.State().Entities)
	if err := s.Close(); err != nil {
		return err
	}
	if err := f.err(); err != nil {
		return err
	}

	result := EditResult{Table: string(table), Affected: affected, Total: total}
	if opts.Format == "json" {
		return e.out.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s (%d remaining)\n", verb, affected, table, total)
	return nil
}

// readRecords decodes a JSON array of entities.
func readRecords(path string) ([]entitystore.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read input file", err).WithKind(CodeInput)
	}
	var records []entitystore.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, WrapExitError(ExitCommandError, "input must be a JSON array of objects", err).WithKind(CodeInput)
	}
	for i, r := range records {
		if r.EntityID() == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("entity %d has no string id", i)).WithKind(CodeInput)
		}
	}
	return records, nil
}
