package state

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receiptvault/internal/metrics"
)

type counter struct {
	N    int
	Tags []string
}

func inc(c counter) counter {
	c.N++
	return c
}

func TestStore_GetSet(t *testing.T) {
	s := New("counter", counter{})
	assert.Equal(t, "counter", s.Name())
	assert.Equal(t, 0, s.Get().N)

	s.Set("inc", inc)
	s.Set("inc", inc)
	assert.Equal(t, 2, s.Get().N)
}

func TestStore_SubscribeOrderAndValues(t *testing.T) {
	s := New("counter", counter{})

	var calls []string
	s.Subscribe(func(next, prev counter) {
		calls = append(calls, "first")
		assert.Equal(t, prev.N+1, next.N)
	})
	s.Subscribe(func(next, prev counter) {
		calls = append(calls, "second")
	})

	s.Set("inc", inc)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestStore_Unsubscribe(t *testing.T) {
	s := New("counter", counter{})

	n := 0
	unsub := s.Subscribe(func(next, prev counter) { n++ })
	s.Set("inc", inc)
	unsub()
	unsub()
	s.Set("inc", inc)

	assert.Equal(t, 1, n)
}

func TestStore_ListenerMaySetAgain(t *testing.T) {
	s := New("counter", counter{})

	s.Subscribe(func(next, prev counter) {
		if next.N == 1 {
			s.Set("inc", inc)
		}
	})
	s.Set("inc", inc)

	assert.Equal(t, 2, s.Get().N)
}

func TestStore_ConcurrentActions(t *testing.T) {
	s := New("counter", counter{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Set("inc", inc)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Get().N)
}

func TestBuilder_FirstRegisteredIsOutermost(t *testing.T) {
	var order []string
	tag := func(name string) Middleware[counter] {
		return MiddlewareFunc[counter](func(api API[counter], next SetFunc[counter]) SetFunc[counter] {
			return func(action string, update func(counter) counter) {
				order = append(order, name+":before")
				next(action, update)
				order = append(order, name+":after")
			}
		})
	}

	s := NewBuilder("counter", counter{}).Use(tag("outer")).Use(tag("inner")).Build()
	s.Set("inc", inc)

	assert.Equal(t, []string{"outer:before", "inner:before", "inner:after", "outer:after"}, order)
}

func TestBuilder_UseIf(t *testing.T) {
	hits := 0
	mw := MiddlewareFunc[counter](func(api API[counter], next SetFunc[counter]) SetFunc[counter] {
		return func(action string, update func(counter) counter) {
			hits++
			next(action, update)
		}
	})

	off := NewBuilder("off", counter{}).UseIf(false, mw).Build()
	off.Set("inc", inc)
	assert.Equal(t, 0, hits)
	assert.Equal(t, 1, off.Get().N, "actions behave the same without the middleware")

	on := NewBuilder("on", counter{}).UseIf(true, mw).Build()
	on.Set("inc", inc)
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, on.Get().N)
}

type lifecycle struct {
	started API[counter]
	closed  bool
	err     error
}

func (l *lifecycle) Wrap(api API[counter], next SetFunc[counter]) SetFunc[counter] { return next }
func (l *lifecycle) Start(api API[counter]) { l.started = api }
func (l *lifecycle) Close() error {
	l.closed = true
	return l.err
}

func TestBuilder_StartAndClose(t *testing.T) {
	a := &lifecycle{}
	b := &lifecycle{err: errors.New("boom")}

	s := NewBuilder("counter", counter{}).Use(a).Use(b).Build()
	assert.Same(t, s, a.started)
	assert.Same(t, s, b.started)

	err := s.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	assert.Equal(t, err, s.Close(), "close is idempotent")
}

func TestDevTools_History(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dt := NewDevTools(DevToolsOptions[counter]{
		Logger:    logger,
		Limit:     2,
		Summarize: func(c counter) any { return c.N },
	})
	s := NewBuilder("counter", counter{}).Use(dt).Build()

	s.Set("one", inc)
	s.Set("two", inc)
	s.Set("three", inc)

	history := dt.History()
	require.Len(t, history, 2)
	assert.Equal(t, HistoryEntry{Seq: 2, Action: "two", State: 2}, history[0])
	assert.Equal(t, HistoryEntry{Seq: 3, Action: "three", State: 3}, history[1])
	assert.Contains(t, buf.String(), "action=three")
	assert.Contains(t, buf.String(), "store=counter")

	dt.ResetHistory()
	assert.Empty(t, dt.History())
}

func TestInstrument_CountsActions(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := NewBuilder("counter", counter{}).Use(Instrument[counter](m)).Build()

	s.Set("inc", inc)
	s.Set("inc", inc)

	var out dto.Metric
	require.NoError(t, m.ActionsTotal.WithLabelValues("counter", "inc").Write(&out))
	assert.Equal(t, 2.0, out.GetCounter().GetValue())
}
