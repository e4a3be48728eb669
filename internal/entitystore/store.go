package entitystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/persist"
	"github.com/roach88/receiptvault/internal/state"
	"github.com/roach88/receiptvault/internal/tablestore"
)

var (
	// ErrInvalidTable is returned for a table name outside the entity tables.
	ErrInvalidTable = errors.New("invalid entity table")
	// ErrInvalidOptions is returned for missing names or a nil handle.
	ErrInvalidOptions = errors.New("invalid store options")
)

// Action names, as recorded by DevTools and metrics.
const (
	ActionSetEntities           = "SetEntities"
	ActionSetSelectedEntities   = "SetSelectedEntities"
	ActionUpsertEntity          = "UpsertEntity"
	ActionRemoveEntity          = "RemoveEntity"
	ActionRemoveEntities        = "RemoveEntities"
	ActionUpdateEntity          = "UpdateEntity"
	ActionToggleEntitySelection = "ToggleEntitySelection"
	ActionSelectWhere           = "SelectWhere"
	ActionClearSelectedEntities = "ClearSelectedEntities"
	ActionClearEntities         = "ClearEntities"
	ActionSetHasHydrated        = "SetHasHydrated"
)

// Options configures a store.
type Options struct {
	// TableName must be one of the entity tables.
	TableName tablestore.TableName
	// StoreName is the display label used in logs and DevTools.
	StoreName string
	// PersistName is the persistence key.
	PersistName string

	// DevTools attaches the action-logging middleware.
	DevTools bool
	// Metrics attaches action instrumentation and storage timing.
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// ErrorObserver is notified of storage failures.
	ErrorObserver persist.ErrorObserver
}

// Summary is the DevTools view of an entity store state.
type Summary struct {
	Entities    []string `json:"entities" yaml:"entities"`
	Selected    []string `json:"selected" yaml:"selected"`
	HasHydrated bool     `json:"hasHydrated" yaml:"hasHydrated"`
}

// Summarize reduces a state to entity and selection ids.
func Summarize[E Entity](s State[E]) Summary {
	return Summary{Entities: ids(s.Entities), Selected: ids(s.SelectedEntities), HasHydrated: s.HasHydrated}
}

// Store is a persisted entity collection with a selection set.
//
// Actions apply synchronously; persistence follows on a background writer.
// Use Flush to wait for durability.
type Store[E Entity] struct {
	opts     Options
	store    *state.Store[State[E]]
	persist  *persist.Middleware[State[E]]
	devtools *state.DevTools[State[E]]
}

// New creates an entity store bound to opts.TableName and starts its
// hydration.
func New[E Entity](handle *tablestore.Handle, opts Options) (*Store[E], error) {
	if handle == nil {
		return nil, fmt.Errorf("%w: nil handle", ErrInvalidOptions)
	}
	if opts.StoreName == "" || opts.PersistName == "" {
		return nil, fmt.Errorf("%w: store and persist names are required", ErrInvalidOptions)
	}
	table, err := tablestore.ParseTableName(string(opts.TableName))
	if err != nil || !table.IsEntity() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, opts.TableName)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("store", opts.StoreName)

	storage, err := persist.NewEntityStorage(persist.EntityConfig{
		Handle:   handle,
		Table:    table,
		Logger:   logger,
		Metrics:  opts.Metrics,
		Observer: opts.ErrorObserver,
	})
	if err != nil {
		return nil, err
	}

	pm, err := persist.New(persist.Options[State[E]]{
		Name:       opts.PersistName,
		Storage:    storage,
		Version:    persist.EntityFormatVersion,
		Partialize: partialize[E],
		Merge:      merge[E],
		OnRehydrate: func(api state.API[State[E]], err error) {
			api.Set(ActionSetHasHydrated, func(s State[E]) State[E] {
				s.HasHydrated = true
				return s
			})
		},
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	s := &Store[E]{opts: opts, persist: pm}
	if opts.DevTools {
		s.devtools = state.NewDevTools(state.DevToolsOptions[State[E]]{
			Logger:    logger,
			Summarize: func(st State[E]) any { return Summarize(st) },
		})
	}

	initial := State[E]{Entities: []E{}, SelectedEntities: []E{}}
	s.store = state.NewBuilder(opts.StoreName, initial).
		UseIf(s.devtools != nil, s.devtools).
		UseIf(opts.Metrics != nil, state.Instrument[State[E]](opts.Metrics)).
		Use(pm).
		Build()

	return s, nil
}

// partialize persists the collection only.
func partialize[E Entity](s State[E]) map[string]any {
	entities := s.Entities
	if entities == nil {
		entities = []E{}
	}
	return map[string]any{persist.DefaultEntityKey: entities}
}

// merge replaces the collection with the persisted one.
func merge[E Entity](cur State[E], persisted map[string]json.RawMessage) (State[E], error) {
	raw, ok := persisted[persist.DefaultEntityKey]
	if !ok {
		return cur, nil
	}
	var entities []E
	if err := json.Unmarshal(raw, &entities); err != nil {
		return cur, fmt.Errorf("decode entities: %w", err)
	}
	if entities == nil {
		entities = []E{}
	}
	cur.Entities = entities
	return cur, nil
}

// Name returns the store's display label.
func (s *Store[E]) Name() string { return s.opts.StoreName }

// Table returns the bound table.
func (s *Store[E]) Table() tablestore.TableName { return s.opts.TableName }

// State returns the current state. Callers must not modify its slices.
func (s *Store[E]) State() State[E] { return s.store.Get() }

// Subscribe registers fn for every future action.
func (s *Store[E]) Subscribe(fn func(next, prev State[E])) (unsubscribe func()) {
	return s.store.Subscribe(fn)
}

// Dispatch applies a custom action. fn must not modify the slices of its
// input in place.
func (s *Store[E]) Dispatch(action string, fn func(State[E]) State[E]) {
	s.store.Set(action, fn)
}

// SetEntities replaces the collection. The selection is left unchanged.
func (s *Store[E]) SetEntities(entities []E) {
	next := append(make([]E, 0, len(entities)), entities...)
	s.store.Set(ActionSetEntities, func(st State[E]) State[E] {
		st.Entities = next
		return st
	})
}

// SetSelectedEntities replaces the selection.
func (s *Store[E]) SetSelectedEntities(entities []E) {
	next := append(make([]E, 0, len(entities)), entities...)
	s.store.Set(ActionSetSelectedEntities, func(st State[E]) State[E] {
		st.SelectedEntities = next
		return st
	})
}

// UpsertEntity replaces the entity with the same id in place, or appends it.
func (s *Store[E]) UpsertEntity(e E) {
	id := e.EntityID()
	s.store.Set(ActionUpsertEntity, func(st State[E]) State[E] {
		if indexOf(st.Entities, id) >= 0 {
			st.Entities = replaced(st.Entities, id, func(E) E { return e })
			return st
		}
		st.Entities = append(append(make([]E, 0, len(st.Entities)+1), st.Entities...), e)
		return st
	})
}

// RemoveEntity removes an entity from the collection and the selection.
func (s *Store[E]) RemoveEntity(id string) {
	s.removeAll(ActionRemoveEntity, map[string]bool{id: true})
}

// RemoveEntities removes several entities from the collection and the
// selection.
func (s *Store[E]) RemoveEntities(ids ...string) {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	s.removeAll(ActionRemoveEntities, set)
}

func (s *Store[E]) removeAll(action string, set map[string]bool) {
	s.store.Set(action, func(st State[E]) State[E] {
		st.Entities = without(st.Entities, set)
		st.SelectedEntities = without(st.SelectedEntities, set)
		return st
	})
}

// UpdateEntity shallow-merges patch into every copy of the entity with the
// given id. The collection and the selection are patched independently, so
// a selected copy keeps its own fields and a selected-only entity is
// updated too. Unknown ids are ignored. An error is returned, and nothing
// changes, when a patched copy cannot be decoded.
func (s *Store[E]) UpdateEntity(id string, patch Patch) error {
	var err error
	s.store.Set(ActionUpdateEntity, func(st State[E]) State[E] {
		entities, perr := patched(st.Entities, id, patch)
		if perr != nil {
			err = perr
			return st
		}
		selected, perr := patched(st.SelectedEntities, id, patch)
		if perr != nil {
			err = perr
			return st
		}
		st.Entities = entities
		st.SelectedEntities = selected
		return st
	})
	if err != nil {
		return fmt.Errorf("update entity %q: %w", id, err)
	}
	return nil
}

// UpdateEntityFunc replaces every copy of the entity with the given id by
// fn applied to that copy, in the collection and the selection. Unknown ids
// are ignored.
func (s *Store[E]) UpdateEntityFunc(id string, fn func(E) E) {
	s.store.Set(ActionUpdateEntity, func(st State[E]) State[E] {
		if indexOf(st.Entities, id) >= 0 {
			st.Entities = replaced(st.Entities, id, fn)
		}
		if indexOf(st.SelectedEntities, id) >= 0 {
			st.SelectedEntities = replaced(st.SelectedEntities, id, fn)
		}
		return st
	})
}

// ToggleEntitySelection adds e to the selection, or removes the selected
// entity with the same id.
func (s *Store[E]) ToggleEntitySelection(e E) {
	id := e.EntityID()
	s.store.Set(ActionToggleEntitySelection, func(st State[E]) State[E] {
		if indexOf(st.SelectedEntities, id) >= 0 {
			st.SelectedEntities = without(st.SelectedEntities, map[string]bool{id: true})
			return st
		}
		st.SelectedEntities = append(append(make([]E, 0, len(st.SelectedEntities)+1), st.SelectedEntities...), e)
		return st
	})
}

// SelectWhere replaces the selection with the entities matching pred.
func (s *Store[E]) SelectWhere(pred func(E) bool) {
	s.store.Set(ActionSelectWhere, func(st State[E]) State[E] {
		selected := make([]E, 0)
		for _, e := range st.Entities {
			if pred(e) {
				selected = append(selected, e)
			}
		}
		st.SelectedEntities = selected
		return st
	})
}

// ClearSelectedEntities empties the selection.
func (s *Store[E]) ClearSelectedEntities() {
	s.store.Set(ActionClearSelectedEntities, func(st State[E]) State[E] {
		st.SelectedEntities = []E{}
		return st
	})
}

// ClearEntities empties the collection and the selection.
func (s *Store[E]) ClearEntities() {
	s.store.Set(ActionClearEntities, func(st State[E]) State[E] {
		st.Entities = []E{}
		st.SelectedEntities = []E{}
		return st
	})
}

// GetEntityByID looks up an entity in the collection.
func (s *Store[E]) GetEntityByID(id string) (E, bool) {
	st := s.store.Get()
	if i := indexOf(st.Entities, id); i >= 0 {
		return st.Entities[i], true
	}
	var zero E
	return zero, false
}

// SetHasHydrated sets the hydration flag.
func (s *Store[E]) SetHasHydrated(v bool) {
	s.store.Set(ActionSetHasHydrated, func(st State[E]) State[E] {
		st.HasHydrated = v
		return st
	})
}

// WaitHydrated blocks until the initial hydration has finished.
func (s *Store[E]) WaitHydrated(ctx context.Context) error {
	select {
	case <-s.persist.Hydrated():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Rehydrate reloads the collection from storage.
func (s *Store[E]) Rehydrate(ctx context.Context) error {
	return s.persist.Rehydrate(ctx)
}

// Flush waits until every action issued so far is durable.
func (s *Store[E]) Flush(ctx context.Context) error {
	return s.persist.Flush(ctx)
}

// ClearStorage removes the persisted collection without touching memory.
func (s *Store[E]) ClearStorage(ctx context.Context) {
	s.persist.ClearStorage(ctx)
}

// History returns the DevTools action history, or nil when DevTools is off.
func (s *Store[E]) History() []state.HistoryEntry {
	if s.devtools == nil {
		return nil
	}
	return s.devtools.History()
}

// Close flushes pending writes and stops the background writer.
func (s *Store[E]) Close() error {
	return s.store.Close()
}
