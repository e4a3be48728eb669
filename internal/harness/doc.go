// Package harness runs YAML scenarios against an entity store and compares
// the resulting action trace with golden files.
//
// # Scenario Format
//
//	name: selection_cascade
//	description: "Removing an entity drops it from the selection"
//	table: invoices
//	setup:
//	  - action: SetEntities
//	    args:
//	      entities: [{id: "1"}, {id: "2"}, {id: "3"}]
//	flow:
//	  - action: ToggleEntitySelection
//	    args: {entity: {id: "2"}}
//	  - action: RemoveEntity
//	    args: {id: "2"}
//	  - action: Reload
//	assertions:
//	  - type: final_state
//	    entities: ["1", "3"]
//	    selected: []
//	  - type: stored
//	    entities: ["1", "3"]
//
// Entities are schemaless records; their id is the string field "id".
//
// # Steps
//
// Every entity store action is available: SetEntities, SetSelectedEntities
// (args.entities), UpsertEntity, ToggleEntitySelection (args.entity),
// RemoveEntity (args.id), RemoveEntities (args.ids), UpdateEntity (args.id,
// args.patch), SelectWhere (args.where, an expr expression over entity
// fields), ClearSelectedEntities and ClearEntities. Two harness steps
// exercise persistence: Flush waits for durability, Reload closes the store
// and opens a fresh one over the same database.
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: in-memory entity ids, selected ids and hydration flag
//   - stored: the ids durably stored in the table (order-insensitive)
//   - entity: a subset of one entity's fields
//
// # Deterministic Testing
//
// Each scenario runs on a fresh in-memory SQLite database. The trace is the
// store's DevTools history, so it is identical across runs and can be
// compared with testdata/golden/<name>.golden.
package harness
