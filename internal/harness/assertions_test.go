package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receiptvault/internal/entitystore"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Seq: 1, Action: "SetHasHydrated", Entities: []string{}, Selected: []string{}, HasHydrated: true},
		{Seq: 2, Action: "SetEntities", Entities: []string{"a", "b"}, Selected: []string{}, HasHydrated: true},
		{Seq: 3, Action: "ToggleEntitySelection", Entities: []string{"a", "b"}, Selected: []string{"a"}, HasHydrated: true},
		{Seq: 4, Action: "ToggleEntitySelection", Entities: []string{"a", "b"}, Selected: []string{}, HasHydrated: true},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceContains(trace, Assertion{Action: "SetEntities"}))

	err := assertTraceContains(trace, Assertion{Action: "ClearEntities"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertTraceContains, ae.Type)
	assert.Contains(t, err.Error(), "[3] ToggleEntitySelection")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"SetHasHydrated", "ToggleEntitySelection"}}))

	err := assertTraceOrder(trace, Assertion{Actions: []string{"ToggleEntitySelection", "SetEntities"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "should be before")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"SetEntities", "RemoveEntity"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: RemoveEntity")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "ToggleEntitySelection", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "RemoveEntity", Count: 0}))
	assert.Error(t, assertTraceCount(trace, Assertion{Action: "SetEntities", Count: 2}))
}

func TestAssertFinalState(t *testing.T) {
	summary := entitystore.Summary{Entities: []string{"a", "b"}, Selected: []string{"b"}, HasHydrated: true}
	yes, no := true, false

	assert.NoError(t, assertFinalState(summary, Assertion{Entities: []string{"a", "b"}, Selected: []string{"b"}, HasHydrated: &yes}))
	assert.Error(t, assertFinalState(summary, Assertion{Entities: []string{"b", "a"}}))
	assert.Error(t, assertFinalState(summary, Assertion{Selected: []string{}}))
	assert.Error(t, assertFinalState(summary, Assertion{HasHydrated: &no}))

	empty := entitystore.Summary{}
	assert.NoError(t, assertFinalState(empty, Assertion{Entities: []string{}, Selected: []string{}}))
}

func TestJSONEqual(t *testing.T) {
	assert.True(t, jsonEqual([]byte(`3`), []byte(`3.0`)))
	assert.True(t, jsonEqual([]byte(`{"a":1,"b":[1,2]}`), []byte(`{"b":[1,2],"a":1}`)))
	assert.False(t, jsonEqual([]byte(`"3"`), []byte(`3`)))
	assert.False(t, jsonEqual([]byte(`[1,2]`), []byte(`[2,1]`)))
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
