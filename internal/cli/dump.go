package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/receiptvault/internal/canonical"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/filter"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Where string // filter expression over entity fields
	Index string // field=value lookup on an indexed field
}

// SharedEntry is one row of the key-value table.
type SharedEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <table>",
		Short: "Print the rows of a table",
		Long: `Print the rows of a table as canonical JSON.

Entity tables are read through a store, so the output is exactly what the
application hydrates. --index reads durable rows through an index instead.

Examples:
  receiptvault dump invoices
  receiptvault dump scans --where 'status == "ready" && sizeInBytes > 1024'
  receiptvault dump merchants --index parentCompanyId=acme
  receiptvault dump shared --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Where, "where", "", "filter expression over entity fields")
	cmd.Flags().StringVar(&opts.Index, "index", "", "field=value lookup on an indexed field")

	return cmd
}

func runDump(opts *DumpOptions, tableArg string, cmd *cobra.Command) (err error) {
	table, err := tablestore.ParseTableName(tableArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid table", err)
	}
	var where *filter.Filter
	if opts.Where != "" {
		if where, err = filter.Compile(opts.Where); err != nil {
			return WrapExitError(ExitCommandError, "invalid --where expression", err)
		}
	}
	if !table.IsEntity() && (where != nil || opts.Index != "") {
		return NewExitError(ExitCommandError, "--where and --index only apply to entity tables")
	}

	e, err := opts.newEnv(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if !table.IsEntity() {
		return dumpShared(e, cmd)
	}

	var records []entitystore.Record
	if opts.Index != "" {
		records, err = dumpIndex(e, cmd, table, opts.Index)
	} else {
		records, err = dumpStore(e, cmd, table)
	}
	if err != nil {
		return err
	}

	if where != nil {
		matched := make([]entitystore.Record, 0, len(records))
		for _, r := range records {
			ok, err := where.Match(r)
			if err != nil {
				return WrapExitError(ExitFailure, fmt.Sprintf("filter failed on %q", r.EntityID()), err)
			}
			if ok {
				matched = append(matched, r)
			}
		}
		records = matched
	}

	if opts.Format == "json" {
		return e.out.Success(records)
	}
	w := cmd.OutOrStdout()
	for _, r := range records {
		line, err := canonical.Marshal(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(line))
	}
	e.out.VerboseLog("%d %s", len(records), table)
	return nil
}

// dumpStore hydrates a store over the table and returns its collection.
func dumpStore(e *env, cmd *cobra.Command, table tablestore.TableName) ([]entitystore.Record, error) {
	var f failures
	s, err := e.recordStore(cmd.Context(), table, f.observe)
	if err != nil {
		return nil, err
	}
	records := s.State().Entities
	if err := s.Close(); err != nil {
		return nil, err
	}
	if err := f.err(); err != nil {
		return nil, err
	}
	return records, nil
}

// dumpIndex reads durable rows through an index.
func dumpIndex(e *env, cmd *cobra.Command, table tablestore.TableName, lookup string) ([]entitystore.Record, error) {
	field, value, ok := strings.Cut(lookup, "=")
	if !ok || field == "" {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("--index must be field=value, got %q", lookup))
	}

	ctx := cmd.Context()
	db, err := e.db(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]entitystore.Record, 0)
	err = db.View(ctx, []tablestore.TableName{table}, func(tx *tablestore.Tx) error {
		rows, err := tx.FindByIndex(table, field, value)
		if err != nil {
			return err
		}
		for _, row := range rows {
			var r entitystore.Record
			if err := json.Unmarshal(row.Body, &r); err != nil {
				return fmt.Errorf("decode row %q: %w", row.ID, err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "index lookup failed", err).WithKind(CodeStorage)
	}
	return records, nil
}

func dumpShared(e *env, cmd *cobra.Command) error {
	ctx := cmd.Context()
	db, err := e.db(ctx)
	if err != nil {
		return err
	}

	entries := make([]SharedEntry, 0)
	err = db.View(ctx, []tablestore.TableName{tablestore.TableShared}, func(tx *tablestore.Tx) error {
		keys, err := tx.SharedKeys()
		if err != nil {
			return err
		}
		for _, k := range keys {
			v, _, err := tx.GetShared(k)
			if err != nil {
				return err
			}
			entries = append(entries, SharedEntry{Key: k, Value: json.RawMessage(v)})
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read shared table", err).WithKind(CodeStorage)
	}

	if e.out.Format == "json" {
		return e.out.Success(entries)
	}
	w := cmd.OutOrStdout()
	for _, entry := range entries {
		fmt.Fprintf(w, "%s\t%s\n", entry.Key, entry.Value)
	}
	return nil
}
