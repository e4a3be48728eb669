package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/receiptvault/internal/schema"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	s, _ := schema.Default()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), path, s)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	s, _ := schema.Default()
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		db, err := Open(context.Background(), path, s)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		db.Close()
	}

	db, err := Open(context.Background(), path, s)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer db.Close()

	for _, table := range Tables {
		var name string
		err := db.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			string(table),
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_CreatesSecondaryIndexes(t *testing.T) {
	db := createTestDB(t)

	indexes := []string{
		"idx_invoices_merchantReference",
		"idx_invoices_userIdentifier",
		"idx_merchants_parentCompanyId",
		"idx_scans_userIdentifier",
		"idx_scans_status",
	}
	for _, ix := range indexes {
		var name string
		err := db.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", ix).Scan(&name)
		if err != nil {
			t.Errorf("index %q not found: %v", ix, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	s, _ := schema.Default()
	_, err := Open(context.Background(), "/nonexistent/dir/test.db", s)
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestOpen_NilSchema(t *testing.T) {
	_, err := Open(context.Background(), ":memory:", nil)
	if err == nil {
		t.Error("expected error for nil schema")
	}
}

func TestOpen_SchemaMissingTable(t *testing.T) {
	s, err := schema.Compile([]byte(`
		version: 1
		tables: shared: primaryKey: "key"
	`), "small.cue")
	if err != nil {
		t.Fatalf("Compile() failed: %v", err)
	}
	if _, err := Open(context.Background(), ":memory:", s); err == nil {
		t.Error("expected error for schema without entity tables")
	}
}

func TestOpen_InMemory(t *testing.T) {
	s, _ := schema.Default()
	db, err := Open(context.Background(), ":memory:", s)
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	defer db.Close()

	stats, err := db.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if len(stats) != len(Tables) {
		t.Errorf("stats has %d tables, want %d", len(stats), len(Tables))
	}
}

func TestClose_NilDB(t *testing.T) {
	d := &DB{db: nil}
	if err := d.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestPragma_JournalMode(t *testing.T) {
	db := createTestDB(t)
	if err := db.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
}

func TestPragma_BusyTimeout(t *testing.T) {
	db := createTestDB(t)
	if err := db.verifyPragma("busy_timeout", "5000"); err != nil {
		t.Error(err)
	}
}

func TestSchemaVersion_Recorded(t *testing.T) {
	db := createTestDB(t)
	if err := db.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestSchemaVersion_RefusesNewerDatabase(t *testing.T) {
	s, _ := schema.Default()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), path, s)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := db.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	db.Close()

	_, err = Open(context.Background(), path, s)
	if !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("Open() error = %v, want ErrSchemaTooNew", err)
	}
}

func TestMigrations_RunInOrderOnUpgrade(t *testing.T) {
	v1, _ := schema.Default()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), path, v1)
	if err != nil {
		t.Fatalf("Open(v1) failed: %v", err)
	}
	db.Close()

	v3 := &schema.Schema{Version: 3, Tables: v1.Tables}
	var applied []int
	chain := []Migration{
		{Version: 3, Apply: func(ctx context.Context, tx *sql.Tx) error {
			applied = append(applied, 3)
			return nil
		}},
		{Version: 2, Apply: func(ctx context.Context, tx *sql.Tx) error {
			applied = append(applied, 2)
			_, err := tx.ExecContext(ctx, `CREATE TABLE legacy_marker (id TEXT)`)
			return err
		}},
	}

	db, err = openWithMigrations(context.Background(), path, v3, chain)
	if err != nil {
		t.Fatalf("Open(v3) failed: %v", err)
	}
	defer db.Close()

	if len(applied) != 2 || applied[0] != 2 || applied[1] != 3 {
		t.Errorf("applied = %v, want [2 3]", applied)
	}
	if err := db.verifyPragma("user_version", "3"); err != nil {
		t.Error(err)
	}
}

func TestMigrations_SkippedOnFreshDatabase(t *testing.T) {
	s, _ := schema.Default()
	ran := false
	chain := []Migration{{Version: 1, Apply: func(context.Context, *sql.Tx) error {
		ran = true
		return nil
	}}}

	db, err := openWithMigrations(context.Background(), ":memory:", s, chain)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if ran {
		t.Error("migration ran on a fresh database")
	}
}

func TestMigrations_FailureRollsBack(t *testing.T) {
	v1, _ := schema.Default()
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), path, v1)
	if err != nil {
		t.Fatalf("Open(v1) failed: %v", err)
	}
	db.Close()

	v2 := &schema.Schema{Version: 2, Tables: v1.Tables}
	boom := errors.New("boom")
	chain := []Migration{{Version: 2, Apply: func(context.Context, *sql.Tx) error { return boom }}}

	if _, err := openWithMigrations(context.Background(), path, v2, chain); !errors.Is(err, boom) {
		t.Fatalf("Open(v2) error = %v, want boom", err)
	}

	db, err = Open(context.Background(), path, v1)
	if err != nil {
		t.Fatalf("reopen v1 failed: %v", err)
	}
	defer db.Close()
	if err := db.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}
