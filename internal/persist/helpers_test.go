package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/receiptvault/internal/tablestore"
)

// createTestHandle returns a handle on a fresh database file.
func createTestHandle(t *testing.T) *tablestore.Handle {
	t.Helper()
	h := tablestore.NewHandle(tablestore.Config{
		Path:   filepath.Join(t.TempDir(), "persist.db"),
		Logger: discardLogger(),
	})
	t.Cleanup(func() { h.Close() })
	return h
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// entitySnapshot builds an entity snapshot from raw JSON objects.
func entitySnapshot(t *testing.T, objs ...string) Snapshot {
	t.Helper()
	arr := "[" + joinJSON(objs) + "]"
	require.True(t, json.Valid([]byte(arr)), "invalid test JSON %s", arr)
	return Snapshot{State: map[string]json.RawMessage{DefaultEntityKey: json.RawMessage(arr)}}
}

func joinJSON(objs []string) string {
	out := ""
	for i, o := range objs {
		if i > 0 {
			out += ","
		}
		out += o
	}
	return out
}

// storedIDs lists the ids of a table in row order.
func storedIDs(t *testing.T, h *tablestore.Handle, table tablestore.TableName) []string {
	t.Helper()
	db, err := h.DB(context.Background())
	require.NoError(t, err)

	var ids []string
	err = db.View(context.Background(), []tablestore.TableName{table}, func(tx *tablestore.Tx) error {
		var err error
		ids, err = tx.Keys(table)
		return err
	})
	require.NoError(t, err)
	return ids
}

// memStorage is an in-memory Storage that records calls.
type memStorage struct {
	mu     sync.Mutex
	data   map[string]Snapshot
	saves  []Snapshot
	clears int
	fail   error
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string]Snapshot)}
}

func (m *memStorage) Load(ctx context.Context, name string) LoadResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return Failed(m.fail)
	}
	snap, ok := m.data[name]
	if !ok {
		return Empty()
	}
	return Found(snap)
}

func (m *memStorage) Save(ctx context.Context, name string, snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = snap
	m.saves = append(m.saves, snap)
}

func (m *memStorage) Clear(ctx context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, name)
	m.clears++
}

func (m *memStorage) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memStorage) lastSave() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[len(m.saves)-1]
}
