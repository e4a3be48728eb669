// Package filter evaluates boolean expressions over entity fields.
//
// Expressions use the expr language; each top-level JSON field of the entity
// is a variable, so `status == "ready" && sizeInBytes > 1024` selects ready
// scans over one kilobyte. Unknown variables evaluate to nil.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter is a compiled expression.
type Filter struct {
	src     string
	program *vm.Program
}

// Compile parses src. The expression must evaluate to a boolean.
func Compile(src string) (*Filter, error) {
	if src == "" {
		return nil, fmt.Errorf("filter: expression must not be empty")
	}
	program, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("filter: compile %q: %w", src, err)
	}
	return &Filter{src: src, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string { return f.src }

// Match evaluates the expression with fields as variables.
func (f *Filter) Match(fields map[string]any) (bool, error) {
	env := fields
	if env == nil {
		env = map[string]any{}
	}
	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("filter: evaluate %q: %w", f.src, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// MatchValue evaluates the expression against the JSON fields of v.
func (f *Filter) MatchValue(v any) (bool, error) {
	if m, ok := v.(map[string]any); ok {
		return f.Match(m)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("filter: encode value: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, fmt.Errorf("filter: value is not an object: %w", err)
	}
	return f.Match(fields)
}
