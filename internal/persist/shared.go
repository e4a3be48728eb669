package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/receiptvault/internal/canonical"
	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// DefaultSharedPrefix namespaces persistence keys in the shared table.
const DefaultSharedPrefix = "persist:"

// SharedConfig configures a SharedStorage.
type SharedConfig struct {
	Handle *tablestore.Handle
	// Prefix defaults to DefaultSharedPrefix.
	Prefix   string
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Observer ErrorObserver
}

// SharedStorage persists a whole snapshot as one row of the shared table.
type SharedStorage struct {
	handle *tablestore.Handle
	prefix string
	report reporter
}

// NewSharedStorage creates a shared key-value adapter.
func NewSharedStorage(cfg SharedConfig) (*SharedStorage, error) {
	if cfg.Handle == nil {
		return nil, fmt.Errorf("shared storage: nil handle")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultSharedPrefix
	}
	return &SharedStorage{
		handle: cfg.Handle,
		prefix: prefix,
		report: newReporter(tablestore.TableShared, cfg.Logger, cfg.Metrics, cfg.Observer),
	}, nil
}

// Key returns the row key for a persistence name.
func (s *SharedStorage) Key(name string) string {
	return canonical.NormalizeKey(s.prefix + name)
}

// Load reads and decodes the snapshot stored under name.
func (s *SharedStorage) Load(ctx context.Context, name string) LoadResult {
	start := time.Now()
	key := s.Key(name)

	db, err := s.handle.DB(ctx)
	if err != nil {
		return Failed(s.report.fail(OpLoad, key, start, err))
	}

	var (
		value string
		found bool
	)
	err = db.View(ctx, []tablestore.TableName{tablestore.TableShared}, func(tx *tablestore.Tx) error {
		var err error
		value, found, err = tx.GetShared(key)
		return err
	})
	if err != nil {
		return Failed(s.report.fail(OpLoad, key, start, err))
	}
	if !found {
		s.report.done(OpLoad, metrics.OutcomeEmpty, start)
		return Empty()
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(value), &snap); err != nil {
		return Failed(s.report.fail(OpLoad, key, start, fmt.Errorf("decode snapshot: %w", err)))
	}

	s.report.done(OpLoad, metrics.OutcomeOK, start)
	return Found(snap)
}

// Save encodes the snapshot canonically and upserts it under name. The
// write is skipped when the stored value is already byte-identical.
func (s *SharedStorage) Save(ctx context.Context, name string, snap Snapshot) {
	start := time.Now()
	key := s.Key(name)

	value, err := canonical.Marshal(snap)
	if err != nil {
		s.report.fail(OpSave, key, start, fmt.Errorf("encode snapshot: %w", err))
		return
	}

	db, err := s.handle.DB(ctx)
	if err != nil {
		s.report.fail(OpSave, key, start, err)
		return
	}

	skipped := false
	err = db.Update(ctx, []tablestore.TableName{tablestore.TableShared}, func(tx *tablestore.Tx) error {
		current, found, err := tx.GetShared(key)
		if err != nil {
			return err
		}
		if found && current == string(value) {
			skipped = true
			return nil
		}
		return tx.PutShared(key, string(value))
	})
	if err != nil {
		s.report.fail(OpSave, key, start, err)
		return
	}

	if skipped {
		s.report.done(OpSave, metrics.OutcomeSkipped, start)
		return
	}
	s.report.done(OpSave, metrics.OutcomeOK, start)
}

// Clear deletes the row stored under name.
func (s *SharedStorage) Clear(ctx context.Context, name string) {
	start := time.Now()
	key := s.Key(name)

	db, err := s.handle.DB(ctx)
	if err != nil {
		s.report.fail(OpClear, key, start, err)
		return
	}

	err = db.Update(ctx, []tablestore.TableName{tablestore.TableShared}, func(tx *tablestore.Tx) error {
		return tx.DeleteShared(key)
	})
	if err != nil {
		s.report.fail(OpClear, key, start, err)
		return
	}
	s.report.done(OpClear, metrics.OutcomeOK, start)
}
