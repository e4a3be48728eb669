package entitystore

import (
	"encoding/json"
	"fmt"
)

// Entity is anything with a stable string identifier.
type Entity interface {
	EntityID() string
}

// Record is a schemaless entity. Its id is the string stored under "id".
type Record map[string]any

// EntityID implements Entity.
func (r Record) EntityID() string {
	id, _ := r["id"].(string)
	return id
}

// Patch is a shallow set of top-level field replacements, keyed by JSON
// field name.
type Patch map[string]any

// State is the shape of every entity store.
type State[E Entity] struct {
	Entities         []E
	SelectedEntities []E
	HasHydrated      bool
}

// applyPatch shallow-merges patch into the JSON encoding of e.
func applyPatch[E Entity](e E, patch Patch) (E, error) {
	var zero E

	raw, err := json.Marshal(e)
	if err != nil {
		return zero, fmt.Errorf("encode entity: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, fmt.Errorf("entity is not a JSON object: %w", err)
	}

	for k, v := range patch {
		b, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("encode patch field %q: %w", k, err)
		}
		fields[k] = b
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("encode patched entity: %w", err)
	}
	var out E
	if err := json.Unmarshal(merged, &out); err != nil {
		return zero, fmt.Errorf("decode patched entity: %w", err)
	}
	return out, nil
}

// patched returns es with patch merged into each entity with the given id.
// es itself is returned when no entity matches.
func patched[E Entity](es []E, id string, patch Patch) ([]E, error) {
	if indexOf(es, id) < 0 {
		return es, nil
	}
	out := make([]E, len(es))
	for i, e := range es {
		if e.EntityID() != id {
			out[i] = e
			continue
		}
		updated, err := applyPatch(e, patch)
		if err != nil {
			return nil, err
		}
		out[i] = updated
	}
	return out, nil
}

func indexOf[E Entity](es []E, id string) int {
	for i, e := range es {
		if e.EntityID() == id {
			return i
		}
	}
	return -1
}

// without returns es minus the entities whose id is in ids. es is never
// modified.
func without[E Entity](es []E, ids map[string]bool) []E {
	out := make([]E, 0, len(es))
	for _, e := range es {
		if !ids[e.EntityID()] {
			out = append(out, e)
		}
	}
	return out
}

// replaced returns a copy of es with every entity whose id matches fn's
// input replaced by fn's result.
func replaced[E Entity](es []E, id string, fn func(E) E) []E {
	out := make([]E, len(es))
	for i, e := range es {
		if e.EntityID() == id {
			out[i] = fn(e)
		} else {
			out[i] = e
		}
	}
	return out
}

func ids[E Entity](es []E) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.EntityID()
	}
	return out
}
