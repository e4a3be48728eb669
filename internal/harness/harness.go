package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/filter"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// scenarioStoreName labels the store in DevTools output.
const scenarioStoreName = "ScenarioStore"

// Options tunes a scenario run.
type Options struct {
	// Path is the database file. Empty uses a private in-memory database.
	Path string
	// Logger receives store logs. Defaults to discarding them.
	Logger *slog.Logger
	// Timeout bounds each hydration and flush. Defaults to 10s.
	Timeout time.Duration
}

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	table    tablestore.TableName
	handle   *tablestore.Handle
	store    *entitystore.Store[entitystore.Record]
	logger   *slog.Logger
	timeout  time.Duration
	result   *Result
}

// Run executes a scenario on a fresh in-memory database.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithOptions(scenario, Options{})
}

// RunWithOptions executes a scenario and returns the result.
//
// Execution flow:
//  1. Open the database and the scenario store, wait for hydration
//  2. Execute setup then flow steps
//  3. Flush, collect the DevTools trace, evaluate assertions
//
// An error is returned when the scenario cannot be executed. Assertion
// failures are reported in the result instead.
func RunWithOptions(scenario *Scenario, opts Options) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if opts.Path == "" {
		opts.Path = ":memory:"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	h := &Harness{
		scenario: scenario,
		table:    tablestore.TableName(scenario.Table),
		handle:   tablestore.NewHandle(tablestore.Config{Path: opts.Path, Logger: opts.Logger}),
		logger:   opts.Logger,
		timeout:  opts.Timeout,
		result:   NewResult(),
	}
	defer h.handle.Close()

	if err := h.open(); err != nil {
		return nil, err
	}
	defer func() {
		if h.store != nil {
			h.store.Close()
		}
	}()

	for i, step := range scenario.Setup {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
	}
	for i, step := range scenario.Flow {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("flow step %d (%s): %w", i, step.Action, err)
		}
	}

	if err := h.flush(); err != nil {
		return nil, err
	}
	h.collect()

	for _, msg := range h.evaluate(scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// open creates the scenario store and waits for its hydration.
func (h *Harness) open() error {
	s, err := entitystore.New[entitystore.Record](h.handle, entitystore.Options{
		TableName:   h.table,
		StoreName:   scenarioStoreName,
		PersistName: h.scenario.Name,
		DevTools:    true,
		Logger:      h.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	h.store = s

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := s.WaitHydrated(ctx); err != nil {
		return fmt.Errorf("store did not hydrate: %w", err)
	}
	return nil
}

func (h *Harness) flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.store.Flush(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// collect moves the store's DevTools history into the trace.
func (h *Harness) collect() {
	for _, entry := range h.store.History() {
		summary, _ := entry.State.(entitystore.Summary)
		h.appendEvent(entry.Action, summary)
	}
}

func (h *Harness) appendEvent(action string, s entitystore.Summary) {
	h.result.Trace = append(h.result.Trace, newTraceEvent(len(h.result.Trace)+1, action, s))
}

// reload closes the store, which flushes it, and opens a fresh one over the
// same database.
func (h *Harness) reload() error {
	h.collect()
	h.appendEvent(ActionReload, entitystore.Summarize(h.store.State()))

	err := h.store.Close()
	h.store = nil
	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return h.open()
}

// execute applies one step.
func (h *Harness) execute(step Step) error {
	s := h.store
	switch step.Action {
	case entitystore.ActionSetEntities:
		records, err := recordsArg(step.Args, "entities")
		if err != nil {
			return err
		}
		s.SetEntities(records)
	case entitystore.ActionSetSelectedEntities:
		records, err := recordsArg(step.Args, "entities")
		if err != nil {
			return err
		}
		s.SetSelectedEntities(records)
	case entitystore.ActionUpsertEntity:
		r, err := recordArg(step.Args, "entity")
		if err != nil {
			return err
		}
		s.UpsertEntity(r)
	case entitystore.ActionToggleEntitySelection:
		r, err := recordArg(step.Args, "entity")
		if err != nil {
			return err
		}
		s.ToggleEntitySelection(r)
	case entitystore.ActionRemoveEntity:
		id, err := stringArg(step.Args, "id")
		if err != nil {
			return err
		}
		s.RemoveEntity(id)
	case entitystore.ActionRemoveEntities:
		ids, err := stringsArg(step.Args, "ids")
		if err != nil {
			return err
		}
		s.RemoveEntities(ids...)
	case entitystore.ActionUpdateEntity:
		id, err := stringArg(step.Args, "id")
		if err != nil {
			return err
		}
		patch, err := patchArg(step.Args)
		if err != nil {
			return err
		}
		return s.UpdateEntity(id, patch)
	case entitystore.ActionSelectWhere:
		return h.selectWhere(step)
	case entitystore.ActionClearSelectedEntities:
		s.ClearSelectedEntities()
	case entitystore.ActionClearEntities:
		s.ClearEntities()
	case StepFlush:
		return h.flush()
	case StepReload:
		return h.reload()
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func (h *Harness) selectWhere(step Step) error {
	src, err := stringArg(step.Args, "where")
	if err != nil {
		return err
	}
	f, err := filter.Compile(src)
	if err != nil {
		return err
	}

	// Evaluate up front so an expression error fails the step instead of
	// silently dropping entities.
	matched := make(map[string]bool)
	var errs []error
	for _, r := range h.store.State().Entities {
		ok, err := f.Match(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("entity %q: %w", r.EntityID(), err))
			continue
		}
		matched[r.EntityID()] = ok
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	h.store.SelectWhere(func(r entitystore.Record) bool { return matched[r.EntityID()] })
	return nil
}
