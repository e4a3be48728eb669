// Package stores wires the application's concrete stores: invoices,
// merchants and scans on top of the entity store factory, and the account
// preferences store on top of the shared key-value table.
//
// All stores built from one Config share its database handle, so they
// share one SQLite connection and their writes are serialized.
package stores
