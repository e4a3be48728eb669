// Package tablestore provides the durable, SQLite-backed table store that
// holds every persisted entity on the local machine.
//
// The store exposes a fixed, versioned set of named tables:
//   - shared: generic key-value rows (key, value) for singleton state
//   - invoices, merchants, scans: one row per entity, primary key id
//
// Entity rows store the full JSON body of the entity. Secondary indexes are
// virtual generated columns over json_extract(body, '$.<field>') so they stay
// consistent with the body on every write.
//
// # Transactions
//
// Every read and write runs inside an explicit transaction scoped to the
// tables it touches (View for reads, Update for writes). Touching a table
// outside the scope fails with ErrTableNotInScope. A single connection is
// used, so transactions are serialized across all callers sharing a DB.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - _txlock=immediate: write transactions take the write lock at BEGIN
//
// # Handle
//
// Handle is the process-wide entry point. It opens the database lazily on
// first use and reports ErrUnavailable instead of failing hard when no
// storage engine is configured.
package tablestore
