package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/receiptvault/internal/entitystore"
	"github.com/roach88/receiptvault/internal/filter"
	"github.com/roach88/receiptvault/internal/tablestore"
)

// Scenario drives one entity store through a sequence of actions and checks
// the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the persistence
	// name of the store and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Table is the entity table the store is bound to.
	Table string `yaml:"table"`

	// Setup runs before the flow. Setup steps are recorded in the trace
	// like any other step.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main sequence of steps.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace, memory and storage.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one store action or harness operation.
type Step struct {
	Action string         `yaml:"action"`
	Args   map[string]any `yaml:"args,omitempty"`
}

// Harness steps.
const (
	StepFlush  = "Flush"
	StepReload = "Reload"
)

// Assertion validates trace, memory or storage.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is used by trace_contains and trace_count.
	Action string `yaml:"action,omitempty"`

	// Actions is the expected order for trace_order.
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences for trace_count.
	Count int `yaml:"count,omitempty"`

	// Entities lists expected entity ids for final_state (ordered) and
	// stored (unordered).
	Entities []string `yaml:"entities,omitempty"`

	// Selected lists expected selected ids for final_state.
	Selected []string `yaml:"selected,omitempty"`

	// HasHydrated is the expected hydration flag for final_state.
	HasHydrated *bool `yaml:"has_hydrated,omitempty"`

	// ID and Expect are used by entity: the entity with ID must exist and
	// carry every field in Expect.
	ID     string         `yaml:"id,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStored        = "stored"
	AssertEntity        = "entity"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields, or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields and step shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	table, err := tablestore.ParseTableName(s.Table)
	if err != nil || !table.IsEntity() {
		return fmt.Errorf("table %q is not an entity table", s.Table)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that a step names a known action and carries the
// arguments it needs.
func validateStep(step Step) error {
	switch step.Action {
	case "":
		return fmt.Errorf("action is required")
	case entitystore.ActionSetEntities, entitystore.ActionSetSelectedEntities:
		_, err := recordsArg(step.Args, "entities")
		return err
	case entitystore.ActionUpsertEntity, entitystore.ActionToggleEntitySelection:
		_, err := recordArg(step.Args, "entity")
		return err
	case entitystore.ActionRemoveEntity:
		_, err := stringArg(step.Args, "id")
		return err
	case entitystore.ActionRemoveEntities:
		_, err := stringsArg(step.Args, "ids")
		return err
	case entitystore.ActionUpdateEntity:
		if _, err := stringArg(step.Args, "id"); err != nil {
			return err
		}
		_, err := patchArg(step.Args)
		return err
	case entitystore.ActionSelectWhere:
		src, err := stringArg(step.Args, "where")
		if err != nil {
			return err
		}
		_, err = filter.Compile(src)
		return err
	case entitystore.ActionClearSelectedEntities, entitystore.ActionClearEntities, StepFlush, StepReload:
		return nil
	}
	return fmt.Errorf("unknown action %q", step.Action)
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Entities == nil && a.Selected == nil && a.HasHydrated == nil {
			return fmt.Errorf("assertions[%d]: final_state needs entities, selected or has_hydrated", index)
		}
	case AssertStored:
		if a.Entities == nil {
			return fmt.Errorf("assertions[%d]: entities is required for stored", index)
		}
	case AssertEntity:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for entity", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for entity", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func stringArg(args map[string]any, key string) (string, error) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("args.%s must be a non-empty string", key)
	}
	return s, nil
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	list, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("args.%s must be a list of strings", key)
	}
	out := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("args.%s[%d] must be a string", key, i)
		}
		out[i] = s
	}
	return out, nil
}

func recordArg(args map[string]any, key string) (entitystore.Record, error) {
	return toRecord(args[key], "args."+key)
}

func recordsArg(args map[string]any, key string) ([]entitystore.Record, error) {
	list, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("args.%s must be a list of entities", key)
	}
	out := make([]entitystore.Record, len(list))
	for i, v := range list {
		r, err := toRecord(v, fmt.Sprintf("args.%s[%d]", key, i))
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func patchArg(args map[string]any) (entitystore.Patch, error) {
	m, ok := args["patch"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("args.patch must be a mapping")
	}
	return entitystore.Patch(m), nil
}

// toRecord converts a decoded YAML mapping into a record with a string id.
func toRecord(v any, where string) (entitystore.Record, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s must be a mapping", where)
	}
	r := entitystore.Record(m)
	if r.EntityID() == "" {
		return nil, fmt.Errorf("%s needs a string id", where)
	}
	return r, nil
}
