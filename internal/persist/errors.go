package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// ErrMissingID is returned when an entity in a snapshot has no non-empty
// string id.
var ErrMissingID = errors.New("entity has no string id")

// ErrMalformedSnapshot is returned when a snapshot does not hold the
// configured entity array.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Kind classifies storage failures.
type Kind int

const (
	// KindUnavailable means the storage engine could not be opened.
	KindUnavailable Kind = iota + 1
	// KindTransaction means a read or read-write transaction failed.
	KindTransaction
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "storage unavailable"
	case KindTransaction:
		return "transaction failed"
	default:
		return "unknown"
	}
}

// Storage operations.
const (
	OpLoad  = "load"
	OpSave  = "save"
	OpClear = "clear"
)

// StorageError describes a failed adapter operation.
type StorageError struct {
	Kind  Kind
	Op    string
	Table tablestore.TableName
	Key   string
	Err   error
}

func (e *StorageError) Error() string {
	target := string(e.Table)
	if e.Key != "" {
		target += "[" + e.Key + "]"
	}
	return fmt.Sprintf("persist: %s %s: %s: %v", e.Op, target, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a storage-unavailable failure.
func IsUnavailable(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind == KindUnavailable
	}
	return errors.Is(err, tablestore.ErrUnavailable)
}

// ErrorObserver is notified of every storage failure. It runs on the
// goroutine that performed the operation and must not block.
type ErrorObserver func(*StorageError)

// reporter applies the shared failure policy of both adapters.
type reporter struct {
	table    tablestore.TableName
	logger   *slog.Logger
	metrics  *metrics.Metrics
	observer ErrorObserver
}

func newReporter(table tablestore.TableName, logger *slog.Logger, m *metrics.Metrics, observer ErrorObserver) reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return reporter{
		table:    table,
		logger:   logger.With("table", string(table)),
		metrics:  m,
		observer: observer,
	}
}

// fail logs, counts and forwards a failure, and returns the StorageError.
func (r reporter) fail(op, key string, start time.Time, err error) *StorageError {
	kind := KindTransaction
	if errors.Is(err, tablestore.ErrUnavailable) {
		kind = KindUnavailable
	}
	se := &StorageError{Kind: kind, Op: op, Table: r.table, Key: key, Err: err}

	outcome := metrics.OutcomeError
	if kind == KindUnavailable {
		outcome = metrics.OutcomeUnavailable
		r.logger.Warn("storage unavailable", "op", op, "key", key, "error", err)
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		r.logger.Warn("storage operation interrupted", "op", op, "key", key, "error", err)
	} else {
		r.logger.Error("storage transaction failed", "op", op, "key", key, "error", err)
	}
	r.metrics.RecordStorageOp(string(r.table), op, outcome, time.Since(start))

	if r.observer != nil {
		r.observer(se)
	}
	return se
}

func (r reporter) done(op, outcome string, start time.Time) {
	r.metrics.RecordStorageOp(string(r.table), op, outcome, time.Since(start))
}
