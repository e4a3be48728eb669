package harness

import "github.com/roach88/receiptvault/internal/entitystore"

// ActionReload is the trace marker written when a scenario reloads its
// store.
const ActionReload = "harness/reload"

// TraceEvent is one recorded action with the store summary after it.
type TraceEvent struct {
	Seq         int      `json:"seq"`
	Action      string   `json:"action"`
	Entities    []string `json:"entities"`
	Selected    []string `json:"selected"`
	HasHydrated bool     `json:"hasHydrated"`
}

func newTraceEvent(seq int, action string, s entitystore.Summary) TraceEvent {
	return TraceEvent{
		Seq:         seq,
		Action:      action,
		Entities:    nonNil(s.Entities),
		Selected:    nonNil(s.Selected),
		HasHydrated: s.HasHydrated,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the store actions in order, across reloads.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
