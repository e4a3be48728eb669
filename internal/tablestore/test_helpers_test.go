package tablestore

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/receiptvault/internal/schema"
)

// createTestDB opens a fresh database in a temp directory.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	s, err := schema.Default()
	if err != nil {
		t.Fatalf("schema.Default() failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), path, s)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// row builds an entity row from a field map; "id" is taken from the map.
func row(t *testing.T, fields map[string]any) Row {
	t.Helper()
	body, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal row: %v", err)
	}
	return Row{ID: fields["id"].(string), Body: body}
}
