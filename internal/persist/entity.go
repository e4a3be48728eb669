package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/receiptvault/internal/canonical"
	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// DefaultEntityKey is the snapshot field holding the entity array.
const DefaultEntityKey = "entities"

// EntityFormatVersion is the version stamped on snapshots rebuilt from
// entity rows. Stores persisted through EntityStorage must use the same
// version or their hydration is discarded.
const EntityFormatVersion = 0

// EntityConfig configures an EntityStorage.
type EntityConfig struct {
	Handle *tablestore.Handle
	Table  tablestore.TableName
	// EntityKey defaults to DefaultEntityKey.
	EntityKey string
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Observer  ErrorObserver
}

// EntityStorage persists an entity array as one row per entity.
type EntityStorage struct {
	handle *tablestore.Handle
	table  tablestore.TableName
	key    string
	report reporter
}

// NewEntityStorage binds an adapter to an entity table.
func NewEntityStorage(cfg EntityConfig) (*EntityStorage, error) {
	if cfg.Handle == nil {
		return nil, fmt.Errorf("entity storage: nil handle")
	}
	if !cfg.Table.IsEntity() {
		return nil, fmt.Errorf("entity storage: %w: %q", tablestore.ErrWrongTableKind, cfg.Table)
	}
	key := cfg.EntityKey
	if key == "" {
		key = DefaultEntityKey
	}
	return &EntityStorage{
		handle: cfg.Handle,
		table:  cfg.Table,
		key:    key,
		report: newReporter(cfg.Table, cfg.Logger, cfg.Metrics, cfg.Observer),
	}, nil
}

// Table returns the bound table.
func (s *EntityStorage) Table() tablestore.TableName {
	return s.table
}

// Load reads every row of the bound table, in first-insertion order.
func (s *EntityStorage) Load(ctx context.Context, name string) LoadResult {
	start := time.Now()

	db, err := s.handle.DB(ctx)
	if err != nil {
		return Failed(s.report.fail(OpLoad, "", start, err))
	}

	var rows []tablestore.Row
	err = db.View(ctx, []tablestore.TableName{s.table}, func(tx *tablestore.Tx) error {
		var err error
		rows, err = tx.All(s.table)
		return err
	})
	if err != nil {
		return Failed(s.report.fail(OpLoad, "", start, err))
	}

	if len(rows) == 0 {
		s.report.done(OpLoad, metrics.OutcomeEmpty, start)
		return Empty()
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(r.Body)
	}
	buf.WriteByte(']')

	s.report.done(OpLoad, metrics.OutcomeOK, start)
	return Found(Snapshot{
		State:   map[string]json.RawMessage{s.key: buf.Bytes()},
		Version: EntityFormatVersion,
	})
}

// Save makes the bound table hold exactly the snapshot's entities.
//
// Within one read-write transaction it reads the stored ids, deletes those
// absent from the snapshot and upserts every incoming entity. If any entity
// lacks an id the whole save is rejected and nothing is written. When the
// same id appears twice, the last occurrence wins.
func (s *EntityStorage) Save(ctx context.Context, name string, snap Snapshot) {
	start := time.Now()

	incoming, err := s.rows(snap)
	if err != nil {
		s.report.fail(OpSave, "", start, err)
		return
	}

	db, err := s.handle.DB(ctx)
	if err != nil {
		s.report.fail(OpSave, "", start, err)
		return
	}

	var deleted int
	err = db.Update(ctx, []tablestore.TableName{s.table}, func(tx *tablestore.Tx) error {
		stored, err := tx.Keys(s.table)
		if err != nil {
			return err
		}

		keep := make(map[string]bool, len(incoming))
		for _, r := range incoming {
			keep[r.ID] = true
		}
		toDelete := make([]string, 0)
		for _, id := range stored {
			if !keep[id] {
				toDelete = append(toDelete, id)
			}
		}

		if err := tx.BulkDelete(s.table, toDelete); err != nil {
			return err
		}
		deleted = len(toDelete)
		return tx.BulkPut(s.table, incoming)
	})
	if err != nil {
		s.report.fail(OpSave, "", start, err)
		return
	}

	s.report.metrics.RecordRows(string(s.table), len(incoming), deleted)
	s.report.done(OpSave, metrics.OutcomeOK, start)
}

// Clear removes every row of the bound table.
func (s *EntityStorage) Clear(ctx context.Context, name string) {
	start := time.Now()

	db, err := s.handle.DB(ctx)
	if err != nil {
		s.report.fail(OpClear, "", start, err)
		return
	}

	err = db.Update(ctx, []tablestore.TableName{s.table}, func(tx *tablestore.Tx) error {
		return tx.Clear(s.table)
	})
	if err != nil {
		s.report.fail(OpClear, "", start, err)
		return
	}
	s.report.done(OpClear, metrics.OutcomeOK, start)
}

// rows extracts the entity array of a snapshot as table rows. Bodies are
// stored in canonical form. Duplicate ids collapse onto the last occurrence.
func (s *EntityStorage) rows(snap Snapshot) ([]tablestore.Row, error) {
	raw, ok := snap.State[s.key]
	if !ok {
		return nil, fmt.Errorf("%w: no %q field", ErrMalformedSnapshot, s.key)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %q is not an array: %v", ErrMalformedSnapshot, s.key, err)
	}

	rows := make([]tablestore.Row, 0, len(elems))
	index := make(map[string]int, len(elems))
	for i, elem := range elems {
		var head struct {
			ID any `json:"id"`
		}
		if err := json.Unmarshal(elem, &head); err != nil {
			return nil, fmt.Errorf("%w: element %d is not an object: %v", ErrMalformedSnapshot, i, err)
		}
		id, ok := head.ID.(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: element %d", ErrMissingID, i)
		}

		body, err := canonical.Canonicalize(elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		row := tablestore.Row{ID: id, Body: body}
		if j, dup := index[id]; dup {
			rows[j] = row
			continue
		}
		index[id] = len(rows)
		rows = append(rows, row)
	}
	return rows, nil
}
