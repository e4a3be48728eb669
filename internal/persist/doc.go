// Package persist connects reactive stores to the table store.
//
// Two Storage adapters are provided. EntityStorage keeps one row per entity
// in a dedicated table and synchronizes it with a snapshot by diffing
// primary keys. SharedStorage keeps a whole snapshot as one JSON value in
// the shared key-value table.
//
// Adapters never return errors to the store. Failures are logged, counted,
// forwarded to an optional ErrorObserver and surface only as a LoadFailed
// result. The Middleware type drives an adapter from a state.Store: it
// hydrates the store once, then writes the partialized state on a single
// background goroutine after every action.
package persist
