package tablestore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/roach88/receiptvault/internal/schema"
)

// Migration upgrades an existing database to Version.
//
// Fresh databases never run migrations: the DDL generated from the schema
// already describes the latest layout. Migrations only alter tables that
// existed before Version. They run inside the same transaction as the
// idempotent DDL, in ascending version order.
type Migration struct {
	Version int
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// migrations is the forward chain for the embedded schema. Version 1 is the
// base layout, so the chain is empty until the first layout change.
var migrations []Migration

// migrate creates missing tables and indexes and runs pending migrations.
// It refuses to touch a database written by a newer schema.
func migrate(ctx context.Context, db *sql.DB, s *schema.Schema, chain []Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > s.Version {
		return fmt.Errorf("%w: database v%d, binary v%d", ErrSchemaTooNew, version, s.Version)
	}

	fresh := version == 0
	if !fresh {
		pending := make([]Migration, 0, len(chain))
		for _, m := range chain {
			if m.Version > version && m.Version <= s.Version {
				pending = append(pending, m)
			}
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

		for _, m := range pending {
			if err := m.Apply(ctx, tx); err != nil {
				return fmt.Errorf("migrate to v%d: %w", m.Version, err)
			}
		}
	}

	for _, stmt := range ddl(s) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", s.Version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return tx.Commit()
}

// ddl renders idempotent CREATE statements for every table in the schema.
func ddl(s *schema.Schema) []string {
	var stmts []string
	for _, t := range s.Tables {
		if t.PrimaryKey == schema.KeyShared {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE TABLE IF NOT EXISTS %s (
					key TEXT PRIMARY KEY NOT NULL,
					value TEXT NOT NULL
				)`, quote(t.Name)))
			continue
		}

		cols := "id TEXT PRIMARY KEY NOT NULL,\n\t\t\t\tbody TEXT NOT NULL CHECK (json_valid(body))"
		for _, field := range t.Indexes {
			cols += fmt.Sprintf(",\n\t\t\t\t%s GENERATED ALWAYS AS (json_extract(body, '$.%s')) VIRTUAL",
				quote(indexColumn(field)), field)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t\t\t%s\n\t\t\t)", quote(t.Name), cols))

		for _, field := range t.Indexes {
			stmts = append(stmts, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
				quote("idx_"+t.Name+"_"+field), quote(t.Name), quote(indexColumn(field))))
		}
	}
	return stmts
}

// indexColumn is the generated column backing a secondary index.
func indexColumn(field string) string {
	return "ix_" + field
}

// quote renders an SQL identifier. Names come from the CUE schema, which
// restricts them to [A-Za-z0-9_].
func quote(ident string) string {
	return `"` + ident + `"`
}
