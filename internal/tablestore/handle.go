package tablestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/receiptvault/internal/schema"
)

// Config configures a Handle.
type Config struct {
	// Path is the SQLite database path. ":memory:" keeps everything in
	// process memory. An empty path means no storage engine is available.
	Path string

	// Schema defaults to schema.Default().
	Schema *schema.Schema

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handle owns the lazily-opened database shared by every store in the
// process. It is passed explicitly to the storage adapters.
//
// Thread-safety: all methods are safe for concurrent use.
type Handle struct {
	mu     sync.Mutex
	cfg    Config
	db     *DB
	closed bool
	logger *slog.Logger
}

// NewHandle creates a handle. Nothing is opened until the first DB call.
func NewHandle(cfg Config) *Handle {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{cfg: cfg, logger: logger}
}

// DB returns the open database, opening it on first use.
//
// Returns an error wrapping ErrUnavailable when no path is configured, the
// handle was closed, or the database cannot be opened. A failed open is not
// cached: the next call tries again.
func (h *Handle) DB(ctx context.Context) (*DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db != nil {
		return h.db, nil
	}
	if h.closed {
		return nil, fmt.Errorf("%w: handle closed", ErrUnavailable)
	}
	if h.cfg.Path == "" {
		h.logger.Warn("storage engine is not available in this environment")
		return nil, ErrUnavailable
	}

	s := h.cfg.Schema
	if s == nil {
		var err error
		s, err = schema.Default()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	db, err := Open(ctx, h.cfg.Path, s)
	if err != nil {
		h.logger.Error("failed to open table store", "path", h.cfg.Path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	h.logger.Debug("table store opened", "path", h.cfg.Path, "schema_version", s.Version)
	h.db = db
	return db, nil
}

// Opened reports whether the database is currently open.
func (h *Handle) Opened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil
}

// Path returns the configured database path.
func (h *Handle) Path() string {
	return h.cfg.Path
}

// Reset closes the database and forgets it. The next DB call reopens it.
// Intended for tests and reset utilities.
func (h *Handle) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeLocked()
}

// Close closes the database. Later DB calls report ErrUnavailable.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return h.closeLocked()
}

func (h *Handle) closeLocked() error {
	if h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	return err
}
