package stores

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/receiptvault/internal/domain"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/state"
	"github.com/roach88/receiptvault/internal/tablestore"
)

const (
	ScansStoreName   = "ScansStore"
	ScansPersistName = "scans-store"
	syncStoreName    = "ScansSyncStatus"
)

// Scan store actions beyond the entity store's own.
const (
	ActionUpdateScanStatus         = "UpdateScanStatus"
	ActionUpdateScanName           = "UpdateScanName"
	ActionSelectAllScans           = "SelectAllScans"
	ActionArchiveScans             = "ArchiveScans"
	ActionUpdateScanMetadata       = "UpdateScanMetadata"
	ActionMarkScansAsUsedByInvoice = "MarkScansAsUsedByInvoice"
	ActionSetIsSyncing             = "SetIsSyncing"
	ActionSetLastSyncTimestamp     = "SetLastSyncTimestamp"
)

// isoMillis matches the timestamp layout used in scan metadata.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// SyncStatus tracks server synchronization. It lives in memory only.
type SyncStatus struct {
	IsSyncing         bool
	LastSyncTimestamp *time.Time
}

// Scans is the cached scan collection plus its sync status.
type Scans struct {
	*entitystore.Store[domain.Scan]
	handle *tablestore.Handle
	sync   *state.Store[SyncStatus]
	clock  domain.Clock
}

// NewScans creates the scans store and starts its hydration.
func NewScans(cfg Config) (*Scans, error) {
	s, err := entitystore.New[domain.Scan](cfg.Handle,
		cfg.entityOptions(tablestore.TableScans, ScansStoreName, ScansPersistName))
	if err != nil {
		return nil, err
	}
	sync := state.NewBuilder(syncStoreName, SyncStatus{}).
		UseIf(cfg.Metrics != nil, state.Instrument[SyncStatus](cfg.Metrics)).
		Build()
	return &Scans{Store: s, handle: cfg.Handle, sync: sync, clock: cfg.clock()}, nil
}

// UpdateScanStatus sets the status of a scan in the collection and the
// selection.
func (s *Scans) UpdateScanStatus(id string, status domain.ScanStatus) {
	s.updateBoth(ActionUpdateScanStatus, id, func(sc domain.Scan) domain.Scan {
		sc.Status = status
		return sc
	})
}

// UpdateScanName renames a scan in the collection and the selection.
func (s *Scans) UpdateScanName(id, name string) {
	s.updateBoth(ActionUpdateScanName, id, func(sc domain.Scan) domain.Scan {
		sc.Name = name
		return sc
	})
}

// UpdateScanMetadata merges fields into a scan's metadata in the collection
// and the selection.
func (s *Scans) UpdateScanMetadata(id string, fields map[string]string) {
	s.updateBoth(ActionUpdateScanMetadata, id, func(sc domain.Scan) domain.Scan {
		return sc.WithMetadata(fields)
	})
}

// SelectAllScans replaces the selection with every ready scan.
func (s *Scans) SelectAllScans() {
	s.Dispatch(ActionSelectAllScans, func(st entitystore.State[domain.Scan]) entitystore.State[domain.Scan] {
		st.SelectedEntities = filter(st.Entities, func(sc domain.Scan) bool {
			return sc.Status == domain.ScanStatusReady
		})
		return st
	})
}

// ArchiveScans marks scans archived and drops them from the selection.
func (s *Scans) ArchiveScans(ids ...string) {
	set := idSet(ids)
	s.Dispatch(ActionArchiveScans, func(st entitystore.State[domain.Scan]) entitystore.State[domain.Scan] {
		st.Entities = mapScans(st.Entities, set, func(sc domain.Scan) domain.Scan {
			sc.Status = domain.ScanStatusArchived
			return sc
		})
		st.SelectedEntities = filter(st.SelectedEntities, func(sc domain.Scan) bool { return !set[sc.ID] })
		return st
	})
}

// MarkScansAsUsedByInvoice records in each scan's metadata that it was
// attached to invoiceID. Only the collection is updated; selected copies
// keep their previous metadata.
func (s *Scans) MarkScansAsUsedByInvoice(ids []string, invoiceID string) {
	set := idSet(ids)
	fields := map[string]string{
		domain.MetaUsedByInvoice:    "true",
		domain.MetaInvoiceID:        invoiceID,
		domain.MetaInvoiceCreatedAt: s.clock.Now().UTC().Format(isoMillis),
	}
	s.Dispatch(ActionMarkScansAsUsedByInvoice, func(st entitystore.State[domain.Scan]) entitystore.State[domain.Scan] {
		st.Entities = mapScans(st.Entities, set, func(sc domain.Scan) domain.Scan {
			return sc.WithMetadata(fields)
		})
		return st
	})
}

// ByStatus returns the in-memory scans with the given status.
func (s *Scans) ByStatus(status domain.ScanStatus) []domain.Scan {
	return filter(s.State().Entities, func(sc domain.Scan) bool { return sc.Status == status })
}

// QueryByStatus reads durable scans through the status index.
func (s *Scans) QueryByStatus(ctx context.Context, status domain.ScanStatus) ([]domain.Scan, error) {
	return queryIndex[domain.Scan](ctx, s.handle, tablestore.TableScans, "status", string(status))
}

// SyncStatus returns the current sync status.
func (s *Scans) SyncStatus() SyncStatus { return s.sync.Get() }

// SubscribeSync registers fn for sync status changes.
func (s *Scans) SubscribeSync(fn func(next, prev SyncStatus)) (unsubscribe func()) {
	return s.sync.Subscribe(fn)
}

// SetIsSyncing sets the syncing flag.
func (s *Scans) SetIsSyncing(v bool) {
	s.sync.Set(ActionSetIsSyncing, func(st SyncStatus) SyncStatus {
		st.IsSyncing = v
		return st
	})
}

// SetLastSyncTimestamp records the last successful sync. nil clears it.
func (s *Scans) SetLastSyncTimestamp(t *time.Time) {
	var ts *time.Time
	if t != nil {
		v := *t
		ts = &v
	}
	s.sync.Set(ActionSetLastSyncTimestamp, func(st SyncStatus) SyncStatus {
		st.LastSyncTimestamp = ts
		return st
	})
}

// Close flushes pending writes and stops both stores.
func (s *Scans) Close() error {
	return errors.Join(s.Store.Close(), s.sync.Close())
}

func (s *Scans) updateBoth(action, id string, fn func(domain.Scan) domain.Scan) {
	set := map[string]bool{id: true}
	s.Dispatch(action, func(st entitystore.State[domain.Scan]) entitystore.State[domain.Scan] {
		st.Entities = mapScans(st.Entities, set, fn)
		st.SelectedEntities = mapScans(st.SelectedEntities, set, fn)
		return st
	})
}

// mapScans returns a copy of scans with fn applied to those in ids.
func mapScans(scans []domain.Scan, ids map[string]bool, fn func(domain.Scan) domain.Scan) []domain.Scan {
	out := make([]domain.Scan, len(scans))
	for i, sc := range scans {
		if ids[sc.ID] {
			sc = fn(sc)
		}
		out[i] = sc
	}
	return out
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
