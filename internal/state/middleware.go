package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/receiptvault/internal/metrics"
)

// Middleware wraps the set path of a store.
type Middleware[S any] interface {
	Wrap(api API[S], next SetFunc[S]) SetFunc[S]
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc[S any] func(api API[S], next SetFunc[S]) SetFunc[S]

// Wrap implements Middleware.
func (f MiddlewareFunc[S]) Wrap(api API[S], next SetFunc[S]) SetFunc[S] {
	return f(api, next)
}

// Starter is implemented by middleware that needs the finished store, for
// example to launch a background goroutine. Start is called once by Build,
// in registration order, after the chain is assembled.
type Starter[S any] interface {
	Start(api API[S])
}

// Builder assembles a store from an ordered middleware list.
type Builder[S any] struct {
	name        string
	initial     S
	middlewares []Middleware[S]
}

// NewBuilder starts a store definition.
func NewBuilder[S any](name string, initial S) *Builder[S] {
	return &Builder[S]{name: name, initial: initial}
}

// Use appends mw. The first middleware registered is the outermost.
func (b *Builder[S]) Use(mw Middleware[S]) *Builder[S] {
	if mw != nil {
		b.middlewares = append(b.middlewares, mw)
	}
	return b
}

// UseIf appends mw only when enabled is true.
func (b *Builder[S]) UseIf(enabled bool, mw Middleware[S]) *Builder[S] {
	if !enabled {
		return b
	}
	return b.Use(mw)
}

// Build creates the store and starts any Starter middleware.
func (b *Builder[S]) Build() *Store[S] {
	s := &Store[S]{
		name:        b.name,
		state:       b.initial,
		middlewares: append([]Middleware[S](nil), b.middlewares...),
	}

	set := SetFunc[S](s.apply)
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		set = s.middlewares[i].Wrap(s, set)
	}
	s.set = set

	for _, mw := range s.middlewares {
		if st, ok := mw.(Starter[S]); ok {
			st.Start(s)
		}
	}
	return s
}

// Instrument records the count and duration of every action.
func Instrument[S any](m *metrics.Metrics) Middleware[S] {
	return MiddlewareFunc[S](func(api API[S], next SetFunc[S]) SetFunc[S] {
		return func(action string, update func(S) S) {
			start := time.Now()
			next(action, update)
			m.RecordAction(api.Name(), action, time.Since(start))
		}
	})
}

// HistoryEntry is one action observed by DevTools.
type HistoryEntry struct {
	Seq    int    `json:"seq" yaml:"seq"`
	Action string `json:"action" yaml:"action"`
	State  any    `json:"state,omitempty" yaml:"state,omitempty"`
}

// DevToolsOptions configures the DevTools middleware.
type DevToolsOptions[S any] struct {
	Logger *slog.Logger
	// Limit bounds the retained history. Defaults to 100.
	Limit int
	// Summarize reduces a state to what gets logged and recorded.
	// Defaults to recording no state.
	Summarize func(S) any
}

// DevTools logs every action at debug level and keeps a bounded history
// for inspection.
type DevTools[S any] struct {
	opts DevToolsOptions[S]

	mu      sync.Mutex
	seq     int
	history []HistoryEntry
}

// NewDevTools creates a DevTools middleware.
func NewDevTools[S any](opts DevToolsOptions[S]) *DevTools[S] {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	return &DevTools[S]{opts: opts}
}

// Wrap implements Middleware.
func (d *DevTools[S]) Wrap(api API[S], next SetFunc[S]) SetFunc[S] {
	return func(action string, update func(S) S) {
		next(action, update)

		var summary any
		if d.opts.Summarize != nil {
			summary = d.opts.Summarize(api.Get())
		}

		d.mu.Lock()
		d.seq++
		entry := HistoryEntry{Seq: d.seq, Action: action, State: summary}
		d.history = append(d.history, entry)
		if len(d.history) > d.opts.Limit {
			d.history = d.history[len(d.history)-d.opts.Limit:]
		}
		d.mu.Unlock()

		d.opts.Logger.Debug("action", "store", api.Name(), "seq", entry.Seq, "action", action, "state", summary)
	}
}

// History returns the retained actions, oldest first.
func (d *DevTools[S]) History() []HistoryEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]HistoryEntry, len(d.history))
	copy(out, d.history)
	return out
}

// ResetHistory drops the retained actions.
func (d *DevTools[S]) ResetHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}
