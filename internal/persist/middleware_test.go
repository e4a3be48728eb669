package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receiptvault/internal/state"
	"github.com/roach88/receiptvault/internal/tablestore"
)

type doc struct {
	Items    []map[string]any
	Selected []string
	Hydrated bool
}

type hydrationLog struct {
	mu   sync.Mutex
	errs []error
}

func (h *hydrationLog) record(api state.API[doc], err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
	api.Set("SetHasHydrated", func(d doc) doc {
		d.Hydrated = true
		return d
	})
}

func (h *hydrationLog) calls() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.errs...)
}

func docOptions(storage Storage, log *hydrationLog) Options[doc] {
	return Options[doc]{
		Name:    "doc-store",
		Storage: storage,
		Partialize: func(d doc) map[string]any {
			items := d.Items
			if items == nil {
				items = []map[string]any{}
			}
			return map[string]any{DefaultEntityKey: items}
		},
		Merge: func(cur doc, persisted map[string]json.RawMessage) (doc, error) {
			raw, ok := persisted[DefaultEntityKey]
			if !ok {
				return cur, nil
			}
			var items []map[string]any
			if err := json.Unmarshal(raw, &items); err != nil {
				return cur, err
			}
			cur.Items = items
			return cur, nil
		},
		OnRehydrate: log.record,
		Logger:      discardLogger(),
	}
}

func buildDoc(t *testing.T, opts Options[doc]) (*state.Store[doc], *Middleware[doc]) {
	t.Helper()
	mw, err := New(opts)
	require.NoError(t, err)
	s := state.NewBuilder(opts.Name, doc{}).Use(mw).Build()
	t.Cleanup(func() { s.Close() })
	waitHydrated(t, mw)
	return s, mw
}

func waitHydrated(t *testing.T, mw *Middleware[doc]) {
	t.Helper()
	select {
	case <-mw.Hydrated():
	case <-time.After(5 * time.Second):
		t.Fatal("hydration did not finish")
	}
}

func addItem(id string) func(doc) doc {
	return func(d doc) doc {
		d.Items = append(append([]map[string]any(nil), d.Items...), map[string]any{"id": id})
		return d
	}
}

func flush(t *testing.T, mw *Middleware[doc]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, mw.Flush(ctx))
}

func TestNew_Validation(t *testing.T) {
	base := docOptions(newMemStorage(), &hydrationLog{})

	for name, mutate := range map[string]func(*Options[doc]){
		"name":       func(o *Options[doc]) { o.Name = "" },
		"storage":    func(o *Options[doc]) { o.Storage = nil },
		"partialize": func(o *Options[doc]) { o.Partialize = nil },
		"merge":      func(o *Options[doc]) { o.Merge = nil },
	} {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}

func TestMiddleware_HydratesFromStorage(t *testing.T) {
	mem := newMemStorage()
	mem.data["doc-store"] = Snapshot{State: map[string]json.RawMessage{
		DefaultEntityKey: json.RawMessage(`[{"id":"a"},{"id":"b"}]`),
	}}
	log := &hydrationLog{}

	s, mw := buildDoc(t, docOptions(mem, log))
	flush(t, mw)

	got := s.Get()
	require.Len(t, got.Items, 2)
	assert.Equal(t, "a", got.Items[0]["id"])
	assert.True(t, got.Hydrated)
	assert.Equal(t, []error{nil}, log.calls())
	assert.Equal(t, 0, mem.saveCount(), "hydration alone must not write back")
}

func TestMiddleware_EmptyStorageStillHydrates(t *testing.T) {
	log := &hydrationLog{}
	s, mw := buildDoc(t, docOptions(newMemStorage(), log))
	flush(t, mw)

	assert.True(t, s.Get().Hydrated)
	assert.Empty(t, s.Get().Items)
	assert.Equal(t, []error{nil}, log.calls())
}

func TestMiddleware_FailedLoadHydratesWithoutWriting(t *testing.T) {
	mem := newMemStorage()
	mem.fail = &StorageError{Kind: KindUnavailable, Op: OpLoad, Err: tablestore.ErrUnavailable}
	log := &hydrationLog{}

	s, mw := buildDoc(t, docOptions(mem, log))
	flush(t, mw)

	assert.True(t, s.Get().Hydrated)
	calls := log.calls()
	require.Len(t, calls, 1)
	assert.True(t, IsUnavailable(calls[0]))
	assert.Equal(t, 0, mem.saveCount())
}

func TestMiddleware_PersistsOnlyPartializedState(t *testing.T) {
	mem := newMemStorage()
	s, mw := buildDoc(t, docOptions(mem, &hydrationLog{}))

	s.Set("UpsertEntity", addItem("x"))
	s.Set("ToggleEntitySelection", func(d doc) doc {
		d.Selected = []string{"x"}
		return d
	})
	flush(t, mw)

	last := mem.lastSave()
	assert.Len(t, last.State, 1)
	assert.JSONEq(t, `[{"id":"x"}]`, string(last.State[DefaultEntityKey]))
}

func TestMiddleware_SelectionOnlyChangesDoNotWrite(t *testing.T) {
	mem := newMemStorage()
	s, mw := buildDoc(t, docOptions(mem, &hydrationLog{}))

	s.Set("UpsertEntity", addItem("x"))
	flush(t, mw)
	saves := mem.saveCount()

	s.Set("ToggleEntitySelection", func(d doc) doc {
		d.Selected = []string{"x"}
		return d
	})
	flush(t, mw)

	assert.Equal(t, saves, mem.saveCount())
}

func TestMiddleware_CoalescesBurst(t *testing.T) {
	mem := newMemStorage()
	s, mw := buildDoc(t, docOptions(mem, &hydrationLog{}))

	const n = 50
	for i := 0; i < n; i++ {
		s.Set("UpsertEntity", addItem(fmt.Sprintf("e%d", i)))
	}
	flush(t, mw)

	assert.LessOrEqual(t, mem.saveCount(), n)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(mem.lastSave().State[DefaultEntityKey], &items))
	assert.Len(t, items, n, "the last write carries the final state")
}

func TestMiddleware_VersionMismatchDiscards(t *testing.T) {
	mem := newMemStorage()
	mem.data["doc-store"] = Snapshot{
		State:   map[string]json.RawMessage{DefaultEntityKey: json.RawMessage(`[{"id":"old"}]`)},
		Version: 3,
	}
	log := &hydrationLog{}

	s, _ := buildDoc(t, docOptions(mem, log))

	assert.Empty(t, s.Get().Items)
	assert.True(t, s.Get().Hydrated)
	assert.Equal(t, []error{nil}, log.calls())
}

func TestMiddleware_MigrateUpgradesAndWritesBack(t *testing.T) {
	mem := newMemStorage()
	mem.data["doc-store"] = Snapshot{
		State:   map[string]json.RawMessage{"rows": json.RawMessage(`[{"id":"m"}]`)},
		Version: 1,
	}
	opts := docOptions(mem, &hydrationLog{})
	opts.Version = 2
	opts.Migrate = func(p map[string]json.RawMessage, version int) (map[string]json.RawMessage, error) {
		assert.Equal(t, 1, version)
		return map[string]json.RawMessage{DefaultEntityKey: p["rows"]}, nil
	}

	s, mw := buildDoc(t, opts)
	flush(t, mw)

	require.Len(t, s.Get().Items, 1)
	assert.Equal(t, "m", s.Get().Items[0]["id"])
	require.GreaterOrEqual(t, mem.saveCount(), 1)
	assert.Equal(t, 2, mem.lastSave().Version)
}

func TestMiddleware_MigrateFailure(t *testing.T) {
	mem := newMemStorage()
	mem.data["doc-store"] = Snapshot{State: map[string]json.RawMessage{}, Version: 1}
	log := &hydrationLog{}
	opts := docOptions(mem, log)
	opts.Migrate = func(map[string]json.RawMessage, int) (map[string]json.RawMessage, error) {
		return nil, errors.New("unsupported")
	}

	s, _ := buildDoc(t, opts)

	assert.True(t, s.Get().Hydrated)
	calls := log.calls()
	require.Len(t, calls, 1)
	assert.ErrorContains(t, calls[0], "unsupported")
}

func TestMiddleware_MergeFailure(t *testing.T) {
	mem := newMemStorage()
	mem.data["doc-store"] = Snapshot{State: map[string]json.RawMessage{DefaultEntityKey: json.RawMessage(`"nope"`)}}
	log := &hydrationLog{}

	s, _ := buildDoc(t, docOptions(mem, log))

	assert.Empty(t, s.Get().Items)
	calls := log.calls()
	require.Len(t, calls, 1)
	assert.ErrorContains(t, calls[0], "merge persisted state")
}

func TestMiddleware_Rehydrate(t *testing.T) {
	mem := newMemStorage()
	log := &hydrationLog{}
	s, mw := buildDoc(t, docOptions(mem, log))

	mem.Save(context.Background(), "doc-store", Snapshot{State: map[string]json.RawMessage{
		DefaultEntityKey: json.RawMessage(`[{"id":"late"}]`),
	}})
	require.NoError(t, mw.Rehydrate(context.Background()))

	require.Len(t, s.Get().Items, 1)
	assert.Equal(t, "late", s.Get().Items[0]["id"])
	assert.Len(t, log.calls(), 2)
}

func TestMiddleware_ClearStorage(t *testing.T) {
	mem := newMemStorage()
	s, mw := buildDoc(t, docOptions(mem, &hydrationLog{}))

	s.Set("UpsertEntity", addItem("x"))
	flush(t, mw)
	mw.ClearStorage(context.Background())
	assert.Equal(t, 1, mem.clears)

	s.Set("SetHasHydrated", func(d doc) doc { return d })
	flush(t, mw)
	_, ok := mem.data["doc-store"]
	assert.True(t, ok, "the next action writes the in-memory state again")
}

func TestMiddleware_CloseFlushesAndStops(t *testing.T) {
	mem := newMemStorage()
	mw, err := New(docOptions(mem, &hydrationLog{}))
	require.NoError(t, err)
	s := state.NewBuilder("doc-store", doc{}).Use(mw).Build()

	s.Set("UpsertEntity", addItem("a"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	var items []map[string]any
	require.NoError(t, json.Unmarshal(mem.lastSave().State[DefaultEntityKey], &items))
	assert.Len(t, items, 1)

	saves := mem.saveCount()
	s.Set("UpsertEntity", addItem("b"))
	assert.Len(t, s.Get().Items, 2, "actions still apply in memory")
	require.NoError(t, mw.Flush(context.Background()))
	assert.Equal(t, saves, mem.saveCount())
}

func TestMiddleware_FlushHonorsContext(t *testing.T) {
	mw, err := New(docOptions(newMemStorage(), &hydrationLog{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mw.Flush(ctx), context.Canceled, "never started, never hydrated")
}

func TestMiddleware_EntityStorageRoundTrip(t *testing.T) {
	h := createTestHandle(t)
	storage, err := NewEntityStorage(EntityConfig{Handle: h, Table: tablestore.TableInvoices, Logger: discardLogger()})
	require.NoError(t, err)

	first, mw := buildDoc(t, docOptions(storage, &hydrationLog{}))
	first.Set("UpsertEntity", addItem("1"))
	first.Set("UpsertEntity", addItem("2"))
	flush(t, mw)
	require.NoError(t, first.Close())

	second, _ := buildDoc(t, docOptions(storage, &hydrationLog{}))
	got := second.Get()
	require.Len(t, got.Items, 2)
	assert.Equal(t, "1", got.Items[0]["id"])
	assert.Equal(t, "2", got.Items[1]["id"])
	assert.True(t, got.Hydrated)
	assert.Empty(t, got.Selected)
}
