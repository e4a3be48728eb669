package tablestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/receiptvault/internal/schema"
)

// DB is an open table store.
type DB struct {
	db     *sql.DB
	schema *schema.Schema
}

// Open creates or opens a SQLite database at the given path and brings its
// layout up to the given schema version.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - immediate locking for write transactions
//
// Safe to call repeatedly on the same path.
func Open(ctx context.Context, path string, s *schema.Schema) (*DB, error) {
	return openWithMigrations(ctx, path, s, migrations)
}

func openWithMigrations(ctx context.Context, path string, s *schema.Schema, chain []Migration) (*DB, error) {
	if s == nil {
		return nil, fmt.Errorf("open table store: nil schema")
	}
	for _, t := range Tables {
		if _, ok := s.Table(string(t)); !ok {
			return nil, fmt.Errorf("open table store: schema does not declare table %q", t)
		}
	}

	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := migrate(ctx, db, s, chain); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{db: db, schema: s}, nil
}

// dsn appends the driver options to a database path.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate"
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Schema returns the layout the database was opened with.
func (d *DB) Schema() *schema.Schema {
	return d.schema
}

// View runs fn inside a read transaction scoped to tables.
func (d *DB) View(ctx context.Context, tables []TableName, fn func(*Tx) error) error {
	return d.run(ctx, tables, false, fn)
}

// Update runs fn inside a read-write transaction scoped to tables.
// The transaction commits if fn returns nil and rolls back otherwise.
func (d *DB) Update(ctx context.Context, tables []TableName, fn func(*Tx) error) error {
	return d.run(ctx, tables, true, fn)
}

func (d *DB) run(ctx context.Context, tables []TableName, writable bool, fn func(*Tx) error) error {
	scope := make(map[TableName]bool, len(tables))
	for _, t := range tables {
		if !t.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownTable, t)
		}
		scope[t] = true
	}

	sqlTx, err := d.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: !writable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	tx := &Tx{
		ctx:      ctx,
		tx:       sqlTx,
		schema:   d.schema,
		scope:    scope,
		writable: writable,
	}
	if err := fn(tx); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats returns the row count of every declared table.
func (d *DB) Stats(ctx context.Context) (map[TableName]int, error) {
	counts := make(map[TableName]int, len(Tables))
	err := d.View(ctx, Tables, func(tx *Tx) error {
		for _, t := range Tables {
			n, err := tx.Count(t)
			if err != nil {
				return err
			}
			counts[t] = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return counts, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (d *DB) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := d.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
