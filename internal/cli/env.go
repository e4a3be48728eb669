package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/receiptvault/internal/config"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/logging"
	"github.com/roach88/receiptvault/internal/metrics"
	"github.com/roach88/receiptvault/internal/persist"
	"github.com/roach88/receiptvault/internal/stores"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// env is the per-invocation runtime: configuration, logger, database handle
// and optional metrics.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	handle   *tablestore.Handle
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	out      *OutputFormatter
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		cfg, err = config.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
	}
	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	if o.DevTools {
		cfg.DevTools = true
	}
	if o.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newEnv prepares the runtime for one command. Logs go to the command's
// error stream so JSON output stays parseable.
func (o *RootOptions) newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err).WithKind(CodeConfig)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure logging", err).WithKind(CodeConfig)
	}
	slog.SetDefault(logger)

	e := &env{
		cfg:    cfg,
		logger: logger,
		out: &OutputFormatter{
			Format:    o.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   o.Verbose,
		},
	}
	if cfg.Metrics.Enabled {
		e.registry = prometheus.NewRegistry()
		e.metrics = metrics.NewMetrics(e.registry)
	}
	if cfg.Database.Path != "" {
		e.handle = tablestore.NewHandle(tablestore.Config{Path: cfg.Database.Path, Logger: logger})
	}
	return e, nil
}

// db opens the configured database.
func (e *env) db(ctx context.Context) (*tablestore.DB, error) {
	if e.handle == nil {
		return nil, NewExitError(ExitCommandError, "no database configured (use --db or database.path)").WithKind(CodeConfig)
	}
	db, err := e.handle.DB(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err).WithKind(CodeStorage)
	}
	return db, nil
}

// failures collects storage errors reported by the background writers.
// Without it the stores degrade silently and the command would exit 0.
type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) observe(err *persist.StorageError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

// err converts the collected failures into a command error.
func (f *failures) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	return WrapExitError(ExitFailure, "storage operation failed", errors.Join(f.errs...)).WithKind(CodeStorage)
}

// storesConfig builds the configuration of the application stores.
func (e *env) storesConfig(observer persist.ErrorObserver) stores.Config {
	return stores.Config{
		Handle:        e.handle,
		DevTools:      e.cfg.DevTools,
		Metrics:       e.metrics,
		Logger:        e.logger,
		ErrorObserver: observer,
		SharedPrefix:  e.cfg.Persist.SharedPrefix,
	}
}

// recordStore opens a generic store over an entity table and waits for its
// hydration.
func (e *env) recordStore(ctx context.Context, table tablestore.TableName, observer persist.ErrorObserver) (*entitystore.Store[entitystore.Record], error) {
	if _, err := e.db(ctx); err != nil {
		return nil, err
	}
	s, err := entitystore.New[entitystore.Record](e.handle, entitystore.Options{
		TableName:     table,
		StoreName:     "cli:" + string(table),
		PersistName:   string(table),
		DevTools:      e.cfg.DevTools,
		Metrics:       e.metrics,
		Logger:        e.logger,
		ErrorObserver: observer,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err).WithKind(CodeStorage)
	}
	if err := s.WaitHydrated(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// close releases the database and dumps metrics in verbose mode.
func (e *env) close() error {
	if e.registry != nil && e.out.Verbose {
		if err := writeMetrics(e.out.GetErrWriter(), e.registry); err != nil {
			e.logger.Warn("failed to write metrics", "error", err)
		}
	}
	if e.handle == nil {
		return nil
	}
	return e.handle.Close()
}

// writeMetrics writes every gathered family in the Prometheus text format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	var errs []error
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// entityTable parses a table argument that must name an entity table.
func entityTable(arg string) (tablestore.TableName, error) {
	t, err := tablestore.ParseTableName(arg)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid table", err)
	}
	if !t.IsEntity() {
		return "", NewExitError(ExitCommandError, fmt.Sprintf("table %q does not hold entities", arg))
	}
	return t, nil
}
