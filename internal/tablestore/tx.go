package tablestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/receiptvault/internal/schema"
)

// Row is one persisted entity.
type Row struct {
	ID   string
	Body json.RawMessage
}

// Tx is a transaction scoped to a fixed set of tables.
type Tx struct {
	ctx      context.Context
	tx       *sql.Tx
	schema   *schema.Schema
	scope    map[TableName]bool
	writable bool
}

// check validates that table is in scope and of the expected kind.
func (t *Tx) check(table TableName, entity, write bool) error {
	if !t.scope[table] {
		return fmt.Errorf("%w: %s", ErrTableNotInScope, table)
	}
	if table.IsEntity() != entity {
		return fmt.Errorf("%w: %s", ErrWrongTableKind, table)
	}
	if write && !t.writable {
		return fmt.Errorf("%w: %s", ErrReadOnly, table)
	}
	return nil
}

// Keys returns every primary key stored in an entity table.
func (t *Tx) Keys(table TableName) ([]string, error) {
	if err := t.check(table, true, false); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, fmt.Sprintf("SELECT id FROM %s ORDER BY rowid", quote(string(table))))
	if err != nil {
		return nil, fmt.Errorf("query keys %s: %w", table, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan key %s: %w", table, err)
		}
		keys = append(keys, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys %s: %w", table, err)
	}
	return keys, nil
}

// All returns every row of an entity table in first-insertion order.
func (t *Tx) All(table TableName) ([]Row, error) {
	if err := t.check(table, true, false); err != nil {
		return nil, err
	}
	return t.queryRows(table, fmt.Sprintf("SELECT id, body FROM %s ORDER BY rowid", quote(string(table))))
}

// Get returns one row by primary key.
func (t *Tx) Get(table TableName, id string) (Row, bool, error) {
	if err := t.check(table, true, false); err != nil {
		return Row{}, false, err
	}

	var body string
	err := t.tx.QueryRowContext(t.ctx,
		fmt.Sprintf("SELECT body FROM %s WHERE id = ?", quote(string(table))), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("get %s/%s: %w", table, id, err)
	}
	return Row{ID: id, Body: json.RawMessage(body)}, true, nil
}

// FindByIndex returns rows whose indexed field equals value.
func (t *Tx) FindByIndex(table TableName, field string, value any) ([]Row, error) {
	if err := t.check(table, true, false); err != nil {
		return nil, err
	}
	def, ok := t.schema.Table(string(table))
	if !ok || !def.HasIndex(field) {
		return nil, fmt.Errorf("%w: %s.%s", ErrNoIndex, table, field)
	}
	return t.queryRows(table, fmt.Sprintf("SELECT id, body FROM %s WHERE %s = ? ORDER BY rowid",
		quote(string(table)), quote(indexColumn(field))), value)
}

// Count returns the number of rows in any table.
func (t *Tx) Count(table TableName) (int, error) {
	if !t.scope[table] {
		return 0, fmt.Errorf("%w: %s", ErrTableNotInScope, table)
	}
	var n int
	err := t.tx.QueryRowContext(t.ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(string(table)))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// BulkPut inserts rows or replaces existing rows with the same id.
func (t *Tx) BulkPut(table TableName, rows []Row) error {
	if err := t.check(table, true, true); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(t.ctx, fmt.Sprintf(`
		INSERT INTO %s (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, quote(string(table))))
	if err != nil {
		return fmt.Errorf("bulk put %s: prepare: %w", table, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(t.ctx, r.ID, string(r.Body)); err != nil {
			return fmt.Errorf("bulk put %s/%s: %w", table, r.ID, err)
		}
	}
	return nil
}

// BulkDelete removes rows by id. Missing ids are ignored.
func (t *Tx) BulkDelete(table TableName, ids []string) error {
	if err := t.check(table, true, true); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(t.ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", quote(string(table))))
	if err != nil {
		return fmt.Errorf("bulk delete %s: prepare: %w", table, err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(t.ctx, id); err != nil {
			return fmt.Errorf("bulk delete %s/%s: %w", table, id, err)
		}
	}
	return nil
}

// Clear removes every row of an entity table.
func (t *Tx) Clear(table TableName) error {
	if err := t.check(table, true, true); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, fmt.Sprintf("DELETE FROM %s", quote(string(table)))); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

// GetShared reads one key of the shared table.
func (t *Tx) GetShared(key string) (string, bool, error) {
	if err := t.check(TableShared, false, false); err != nil {
		return "", false, err
	}

	var value string
	err := t.tx.QueryRowContext(t.ctx, "SELECT value FROM shared WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get shared %q: %w", key, err)
	}
	return value, true, nil
}

// PutShared upserts one key of the shared table.
func (t *Tx) PutShared(key, value string) error {
	if err := t.check(TableShared, false, true); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO shared (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put shared %q: %w", key, err)
	}
	return nil
}

// DeleteShared removes one key of the shared table. Missing keys are ignored.
func (t *Tx) DeleteShared(key string) error {
	if err := t.check(TableShared, false, true); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM shared WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete shared %q: %w", key, err)
	}
	return nil
}

// SharedKeys lists the keys of the shared table.
func (t *Tx) SharedKeys() ([]string, error) {
	if err := t.check(TableShared, false, false); err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(t.ctx, "SELECT key FROM shared ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("query shared keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan shared key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared keys: %w", err)
	}
	return keys, nil
}

func (t *Tx) queryRows(table TableName, query string, args ...any) ([]Row, error) {
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, Row{ID: id, Body: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", table, err)
	}
	return out, nil
}
