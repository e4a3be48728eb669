package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/receiptvault/internal/canonical"
	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s entities=%v selected=%v\n",
				event.Seq, event.Action, event.Entities, event.Selected)
		}
	}
	return buf.String()
}

// assertTraceContains checks that the action was recorded at least once.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, event := range trace {
		if event.Action == a.Action {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s", a.Action),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the actions appear
// in the given order. Other actions may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Action]; !seen {
			positions[event.Action] = i + 1
		}
	}

	for _, action := range a.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks the exact number of occurrences of an action.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == a.Action {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState compares the in-memory summary. Entity and selection
// order matter.
func assertFinalState(s entitystore.Summary, a Assertion) error {
	if a.Entities != nil && !slices.Equal(nonNil(s.Entities), a.Entities) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("entities %v", a.Entities),
			Actual:   fmt.Sprintf("entities %v", s.Entities),
		}
	}
	if a.Selected != nil && !slices.Equal(nonNil(s.Selected), a.Selected) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("selected %v", a.Selected),
			Actual:   fmt.Sprintf("selected %v", s.Selected),
		}
	}
	if a.HasHydrated != nil && *a.HasHydrated != s.HasHydrated {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("hasHydrated %t", *a.HasHydrated),
			Actual:   fmt.Sprintf("hasHydrated %t", s.HasHydrated),
		}
	}
	return nil
}

// assertStored compares the ids of the durable rows, ignoring order.
func assertStored(ctx context.Context, h *tablestore.Handle, table tablestore.TableName, a Assertion) error {
	db, err := h.DB(ctx)
	if err != nil {
		return err
	}
	var keys []string
	err = db.View(ctx, []tablestore.TableName{table}, func(tx *tablestore.Tx) error {
		var err error
		keys, err = tx.Keys(table)
		return err
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", table, err)
	}

	want := slices.Clone(a.Entities)
	sort.Strings(want)
	got := nonNil(keys)
	sort.Strings(got)
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertStored,
			Expected: fmt.Sprintf("stored ids %v", want),
			Actual:   fmt.Sprintf("stored ids %v", got),
		}
	}
	return nil
}

// assertEntity checks that the entity exists in memory and carries every
// expected field. Fields compare by canonical JSON, so 3 and 3.0 are equal.
func assertEntity(s *entitystore.Store[entitystore.Record], a Assertion) error {
	r, ok := s.GetEntityByID(a.ID)
	if !ok {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("entity %s", a.ID),
			Actual:   "not found",
		}
	}

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		want, err := canonical.Marshal(a.Expect[k])
		if err != nil {
			return fmt.Errorf("encode expected %s: %w", k, err)
		}
		actual, present := r[k]
		if !present {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s.%s = %s", a.ID, k, want),
				Actual:   "field missing",
			}
		}
		got, err := canonical.Marshal(actual)
		if err != nil {
			return fmt.Errorf("encode %s.%s: %w", a.ID, k, err)
		}
		if !jsonEqual(got, want) {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s.%s = %s", a.ID, k, want),
				Actual:   string(got),
			}
		}
	}
	return nil
}

// jsonEqual compares two canonical documents, treating numbers by value.
func jsonEqual(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	ca, err1 := canonical.Marshal(va)
	cb, err2 := canonical.Marshal(vb)
	return err1 == nil && err2 == nil && bytes.Equal(ca, cb)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(assertions []Assertion) []string {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(h.result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(h.result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(h.result.Trace, a)
		case AssertFinalState:
			err = assertFinalState(entitystore.Summarize(h.store.State()), a)
		case AssertStored:
			err = assertStored(ctx, h.handle, h.table, a)
		case AssertEntity:
			err = assertEntity(h.store, a)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return failures
}
