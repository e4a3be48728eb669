package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/receiptvault/internal/tablestore"
)

// TableInfo describes one declared table.
type TableInfo struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Entity bool   `json:"entity"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables with their row counts",
		Long: `List every declared table with its row count.

Examples:
  receiptvault tables --db receipts.db
  receiptvault tables --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(rootOpts, cmd)
		},
	}
}

func runTables(opts *RootOptions, cmd *cobra.Command) (err error) {
	e, err := opts.newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	ctx := cmd.Context()
	db, err := e.db(ctx)
	if err != nil {
		return err
	}
	counts, err := db.Stats(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count rows", err).WithKind(CodeStorage)
	}

	infos := make([]TableInfo, 0, len(tablestore.Tables))
	for _, t := range tablestore.Tables {
		infos = append(infos, TableInfo{Name: string(t), Rows: counts[t], Entity: t.IsEntity()})
	}

	if opts.Format == "json" {
		return e.out.Success(infos)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tKIND")
	for _, info := range infos {
		kind := "entity"
		if !info.Entity {
			kind = "key-value"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Name, info.Rows, kind)
	}
	return tw.Flush()
}
