// Package schema declares the versioned table layout of the local database.
//
// The layout lives in an embedded CUE document (schema.cue) so the table set,
// primary keys and secondary indexes are validated by CUE constraints before
// any DDL is generated from them.
package schema

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var defaultSource []byte

// SharedTable is the name of the generic key-value table.
const SharedTable = "shared"

// Primary key column names.
const (
	KeyID     = "id"
	KeyShared = "key"
)

// Schema is a compiled table layout.
type Schema struct {
	Version int
	Tables  []Table
}

// Table describes one durable table.
type Table struct {
	Name       string
	PrimaryKey string
	// Indexes lists JSON fields of the row body that get a secondary index.
	Indexes []string
}

// HasIndex reports whether field is declared as a secondary index.
func (t Table) HasIndex(field string) bool {
	for _, ix := range t.Indexes {
		if ix == field {
			return true
		}
	}
	return false
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// TableNames returns table names in declaration order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	return names
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
	defaultErr    error
)

// Default returns the embedded schema. It is compiled once per process.
func Default() (*Schema, error) {
	defaultOnce.Do(func() {
		defaultSchema, defaultErr = Compile(defaultSource, "schema.cue")
	})
	return defaultSchema, defaultErr
}

// Compile parses a CUE schema document.
//
// The document must declare an integer `version` and a `tables` struct. The
// table named "shared" must use "key" as its primary key; every other table
// must use "id".
func Compile(src []byte, filename string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	s := &Schema{}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &CompileError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version, err := versionVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	s.Version = int(version)

	tablesVal := v.LookupPath(cue.ParsePath("tables"))
	if !tablesVal.Exists() {
		return nil, &CompileError{Field: "tables", Message: "tables is required", Pos: v.Pos()}
	}
	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		t, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, t)
	}

	if len(s.Tables) == 0 {
		return nil, &CompileError{Field: "tables", Message: "at least one table is required", Pos: tablesVal.Pos()}
	}
	if _, ok := s.Table(SharedTable); !ok {
		return nil, &CompileError{Field: "tables", Message: "shared table is required", Pos: tablesVal.Pos()}
	}

	return s, nil
}

func compileTable(name string, v cue.Value) (Table, error) {
	t := Table{Name: name}

	pk, err := v.LookupPath(cue.ParsePath("primaryKey")).String()
	if err != nil {
		return Table{}, formatCUEError(err)
	}
	t.PrimaryKey = pk

	want := KeyID
	if name == SharedTable {
		want = KeyShared
	}
	if pk != want {
		return Table{}, &CompileError{
			Field:   "tables." + name + ".primaryKey",
			Message: fmt.Sprintf("must be %q, got %q", want, pk),
			Pos:     v.Pos(),
		}
	}

	indexes, err := compileIndexes(name, pk, v.LookupPath(cue.ParsePath("indexes")))
	if err != nil {
		return Table{}, err
	}
	t.Indexes = indexes
	if t.PrimaryKey == KeyShared && len(t.Indexes) > 0 {
		return Table{}, &CompileError{
			Field:   "tables." + name + ".indexes",
			Message: "the shared table cannot declare indexes",
			Pos:     v.Pos(),
		}
	}

	return t, nil
}

// compileIndexes reads the optional index list of a table.
func compileIndexes(table, pk string, v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	if def, ok := v.Default(); ok {
		v = def
	}
	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var indexes []string
	seen := make(map[string]bool)
	for list.Next() {
		field, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if seen[field] || field == pk {
			return nil, &CompileError{
				Field:   "tables." + table + ".indexes",
				Message: fmt.Sprintf("duplicate index %q", field),
				Pos:     list.Value().Pos(),
			}
		}
		seen[field] = true
		indexes = append(indexes, field)
	}
	return indexes, nil
}

// CompileError reports an invalid schema document.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
