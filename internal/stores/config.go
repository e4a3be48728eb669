package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/receiptvault/internal/domain"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/persist"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// Config carries the dependencies shared by every store.
type Config struct {
	Handle *tablestore.Handle

	DevTools      bool
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	ErrorObserver persist.ErrorObserver

	// SharedPrefix namespaces preference keys in the shared table.
	// Defaults to persist.DefaultSharedPrefix.
	SharedPrefix string
	// Clock stamps scan metadata. Defaults to domain.SystemClock.
	Clock domain.Clock
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) clock() domain.Clock {
	if c.Clock == nil {
		return domain.SystemClock{}
	}
	return c.Clock
}

func (c Config) entityOptions(table tablestore.TableName, storeName, persistName string) entitystore.Options {
	return entitystore.Options{
		TableName:     table,
		StoreName:     storeName,
		PersistName:   persistName,
		DevTools:      c.DevTools,
		Metrics:       c.Metrics,
		Logger:        c.logger(),
		ErrorObserver: c.ErrorObserver,
	}
}

// queryIndex reads durable rows of table whose indexed field equals value.
// It sees only what has been flushed.
func queryIndex[E entitystore.Entity](ctx context.Context, h *tablestore.Handle, table tablestore.TableName, field string, value any) ([]E, error) {
	db, err := h.DB(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]E, 0)
	err = db.View(ctx, []tablestore.TableName{table}, func(tx *tablestore.Tx) error {
		rows, err := tx.FindByIndex(table, field, value)
		if err != nil {
			return err
		}
		for _, r := range rows {
			var e E
			if err := json.Unmarshal(r.Body, &e); err != nil {
				return fmt.Errorf("decode %s row %q: %w", table, r.ID, err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", table, field, err)
	}
	return out, nil
}

func filter[E any](es []E, pred func(E) bool) []E {
	out := make([]E, 0)
	for _, e := range es {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}
