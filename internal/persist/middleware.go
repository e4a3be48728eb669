package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/receiptvault/internal/canonical"
	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/state"
)

// ActionRehydrate is the action name used when persisted state is merged
// into a store.
const ActionRehydrate = "persist/rehydrate"

// ErrClosed is returned by Flush when the writer stopped before the
// requested actions were persisted.
var ErrClosed = errors.New("persist: middleware closed")

// Options configures a persistence middleware.
type Options[S any] struct {
	// Name is the persistence key passed to the storage adapter.
	Name    string
	Storage Storage
	// Version is stamped on saved snapshots. A loaded snapshot with a
	// different version is discarded unless Migrate is set.
	Version int
	// Partialize selects the persisted slice of the state. Each value is
	// JSON encoded under its key.
	Partialize func(S) map[string]any
	// Merge folds a persisted slice into the current state.
	Merge func(current S, persisted map[string]json.RawMessage) (S, error)
	// Migrate upgrades a persisted slice written with another version.
	Migrate func(persisted map[string]json.RawMessage, version int) (map[string]json.RawMessage, error)
	// OnRehydrate runs on the hydrating goroutine after every hydration,
	// whether data was found, absent or unreadable. err is non-nil only for
	// failures. api may be used to issue follow-up actions.
	OnRehydrate func(api state.API[S], err error)
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Middleware persists a store through a Storage adapter.
//
// Storage I/O happens on one writer goroutine per store. The goroutine first
// hydrates the store, then waits for dirty signals. Signals that arrive while
// a write is pending are coalesced: the next write always takes the latest
// state, so writes stay ordered and the durable state converges on the last
// action.
type Middleware[S any] struct {
	opts   Options[S]
	logger *slog.Logger

	api  state.API[S]
	next state.SetFunc[S]

	signal   chan struct{} // buffered, size 1
	quit     chan struct{}
	stopped  chan struct{}
	hydrated chan struct{}

	startOnce    sync.Once
	closeOnce    sync.Once
	hydratedOnce sync.Once

	mu       sync.Mutex
	started  bool
	closed   bool
	dirtySeq uint64
	doneSeq  uint64
	progress chan struct{} // closed and replaced whenever doneSeq advances

	// ioMu serializes storage access between the writer and Rehydrate.
	ioMu     sync.Mutex
	baseline []byte // encoded snapshot known to match durable state
	initial  []byte // encoded snapshot of the state the store was built with
}

// New creates a persistence middleware.
func New[S any](opts Options[S]) (*Middleware[S], error) {
	switch {
	case opts.Name == "":
		return nil, fmt.Errorf("persist: name is required")
	case opts.Storage == nil:
		return nil, fmt.Errorf("persist: storage is required")
	case opts.Partialize == nil:
		return nil, fmt.Errorf("persist: partialize is required")
	case opts.Merge == nil:
		return nil, fmt.Errorf("persist: merge is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Middleware[S]{
		opts:     opts,
		logger:   logger.With("persist", opts.Name),
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		hydrated: make(chan struct{}),
		progress: make(chan struct{}),
	}, nil
}

// Wrap implements state.Middleware. Every action marks the store dirty
// after it has been applied.
func (m *Middleware[S]) Wrap(api state.API[S], next state.SetFunc[S]) state.SetFunc[S] {
	m.api = api
	m.next = next
	return func(action string, update func(S) S) {
		next(action, update)
		m.markDirty()
	}
}

// Start implements state.Starter. It launches the writer goroutine, which
// hydrates the store before processing any write.
func (m *Middleware[S]) Start(api state.API[S]) {
	m.startOnce.Do(func() {
		if _, encoded, err := m.snapshot(api.Get()); err == nil {
			m.initial = encoded
		}

		m.mu.Lock()
		m.started = true
		m.mu.Unlock()
		go m.run()
	})
}

// Hydrated is closed once the initial hydration has finished.
func (m *Middleware[S]) Hydrated() <-chan struct{} {
	return m.hydrated
}

// Flush blocks until every action applied before the call has been handed
// to the storage adapter, or ctx is done.
func (m *Middleware[S]) Flush(ctx context.Context) error {
	select {
	case <-m.hydrated:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	target := m.dirtySeq
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if m.doneSeq >= target {
			m.mu.Unlock()
			return nil
		}
		progress := m.progress
		m.mu.Unlock()

		select {
		case <-progress:
		case <-m.stopped:
			m.mu.Lock()
			done := m.doneSeq >= target
			m.mu.Unlock()
			if done {
				return nil
			}
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close persists pending actions and stops the writer. Actions applied
// afterwards stay in memory only.
func (m *Middleware[S]) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.quit)
	})

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.stopped
	}
	return nil
}

// Rehydrate loads the persisted state again and merges it into the store.
// It returns the failure also passed to OnRehydrate, if any.
func (m *Middleware[S]) Rehydrate(ctx context.Context) error {
	return m.hydrate(ctx)
}

// ClearStorage removes the persisted state. The in-memory state is kept and
// is written again by the next action.
func (m *Middleware[S]) ClearStorage(ctx context.Context) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()
	m.opts.Storage.Clear(ctx, m.opts.Name)
	m.baseline = nil
}

func (m *Middleware[S]) run() {
	defer close(m.stopped)

	ctx := context.Background()
	m.hydrate(ctx)
	m.hydratedOnce.Do(func() { close(m.hydrated) })

	for {
		select {
		case <-m.signal:
			m.write(ctx)
		case <-m.quit:
			m.write(ctx)
			return
		}
	}
}

func (m *Middleware[S]) markDirty() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.logger.Debug("action applied after close is not persisted")
		return
	}
	m.dirtySeq++
	m.mu.Unlock()

	// Non-blocking: a full buffer means a write is already pending.
	select {
	case m.signal <- struct{}{}:
	default:
		m.opts.Metrics.RecordCoalesced(m.opts.Name)
	}
}

// write persists the latest state if it differs from the durable baseline.
func (m *Middleware[S]) write(ctx context.Context) {
	m.mu.Lock()
	target := m.dirtySeq
	pending := target != m.doneSeq
	m.mu.Unlock()
	if !pending {
		return
	}

	m.ioMu.Lock()
	snap, encoded, err := m.snapshot(m.api.Get())
	switch {
	case err != nil:
		m.logger.Error("failed to encode state", "error", err)
	case bytes.Equal(encoded, m.baseline):
		m.logger.Debug("persisted state unchanged, write skipped")
	default:
		m.opts.Storage.Save(ctx, m.opts.Name, snap)
		m.baseline = encoded
	}
	m.ioMu.Unlock()

	m.mu.Lock()
	if target > m.doneSeq {
		m.doneSeq = target
	}
	close(m.progress)
	m.progress = make(chan struct{})
	m.mu.Unlock()
}

// snapshot partializes s and returns the snapshot with its canonical bytes.
func (m *Middleware[S]) snapshot(s S) (Snapshot, []byte, error) {
	partial := m.opts.Partialize(s)
	snap := Snapshot{State: make(map[string]json.RawMessage, len(partial)), Version: m.opts.Version}
	for k, v := range partial {
		b, err := json.Marshal(v)
		if err != nil {
			return Snapshot{}, nil, fmt.Errorf("encode %q: %w", k, err)
		}
		snap.State[k] = b
	}
	encoded, err := canonical.Marshal(snap)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, encoded, nil
}

// hydrate loads, migrates and merges persisted state, then runs
// OnRehydrate outside the storage lock.
func (m *Middleware[S]) hydrate(ctx context.Context) error {
	result, migrated, herr := m.load(ctx)
	m.opts.Metrics.RecordHydration(m.opts.Name, result)
	m.logger.Debug("hydration finished", "result", result, "error", herr)

	if migrated {
		m.markDirty()
	}
	if m.opts.OnRehydrate != nil {
		m.opts.OnRehydrate(m.api, herr)
	}
	return herr
}

func (m *Middleware[S]) load(ctx context.Context) (result string, migrated bool, herr error) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	// Until durable data is found, only changes relative to the initial
	// state are worth writing. This keeps a failed load from erasing rows.
	m.baseline = m.initial

	res := m.opts.Storage.Load(ctx, m.opts.Name)
	result = res.Status.String()

	switch res.Status {
	case LoadFailed:
		herr = res.Err
	case LoadFound:
		persisted := res.Snapshot.State
		if v := res.Snapshot.Version; v != m.opts.Version {
			if m.opts.Migrate == nil {
				m.logger.Warn("persisted state has a different version, discarding",
					"stored_version", v, "version", m.opts.Version)
				persisted = nil
				result = "discarded"
			} else {
				var err error
				persisted, err = m.opts.Migrate(persisted, v)
				if err != nil {
					m.logger.Error("failed to migrate persisted state", "stored_version", v, "error", err)
					herr = fmt.Errorf("migrate from v%d: %w", v, err)
					persisted = nil
					result = "failed"
				} else {
					migrated = true
				}
			}
		}

		if persisted != nil {
			var mergeErr error
			m.next(ActionRehydrate, func(cur S) S {
				merged, err := m.opts.Merge(cur, persisted)
				if err != nil {
					mergeErr = err
					return cur
				}
				return merged
			})
			if mergeErr != nil {
				m.logger.Error("failed to merge persisted state", "error", mergeErr)
				herr = fmt.Errorf("merge persisted state: %w", mergeErr)
				migrated = false
				result = "failed"
			} else if encoded, err := canonical.Marshal(Snapshot{State: persisted, Version: m.opts.Version}); err == nil {
				// Hydration alone never triggers a write back.
				m.baseline = encoded
			}
		}
	}

	if migrated {
		m.baseline = nil
	}
	return result, migrated, herr
}
