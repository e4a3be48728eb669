package stores

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/receiptvault/internal/tablestore"
)

func createTestHandle(t *testing.T) *tablestore.Handle {
	t.Helper()
	h := tablestore.NewHandle(tablestore.Config{
		Path:   filepath.Join(t.TempDir(), "stores.db"),
		Logger: quietLogger(),
	})
	t.Cleanup(func() { h.Close() })
	return h
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func testConfig(h *tablestore.Handle) Config {
	return Config{Handle: h, Logger: quietLogger()}
}

type hydrating interface {
	WaitHydrated(context.Context) error
	Flush(context.Context) error
	Close() error
}

// ready waits for hydration and registers Close at cleanup.
func ready[T hydrating](t *testing.T, s T, err error) T {
	t.Helper()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitHydrated(ctx))
	return s
}

func flush(t *testing.T, s hydrating) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

// sharedValue reads a raw value from the shared table.
func sharedValue(t *testing.T, h *tablestore.Handle, key string) (string, bool) {
	t.Helper()
	db, err := h.DB(context.Background())
	require.NoError(t, err)

	var (
		value string
		found bool
	)
	err = db.View(context.Background(), []tablestore.TableName{tablestore.TableShared}, func(tx *tablestore.Tx) error {
		var err error
		value, found, err = tx.GetShared(key)
		return err
	})
	require.NoError(t, err)
	return value, found
}

func newInvoices(t *testing.T, cfg Config) *Invoices {
	t.Helper()
	s, err := NewInvoices(cfg)
	return ready(t, s, err)
}

func newMerchants(t *testing.T, cfg Config) *Merchants {
	t.Helper()
	s, err := NewMerchants(cfg)
	return ready(t, s, err)
}

func newScans(t *testing.T, cfg Config) *Scans {
	t.Helper()
	s, err := NewScans(cfg)
	return ready(t, s, err)
}

func newPreferences(t *testing.T, cfg Config) *Preferences {
	t.Helper()
	s, err := NewPreferences(cfg)
	return ready(t, s, err)
}
