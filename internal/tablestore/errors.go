package tablestore

import "errors"

var (
	// ErrUnavailable is returned when no storage engine can be opened.
	// Callers treat it as "always empty, nothing persists".
	ErrUnavailable = errors.New("storage engine is not available")

	// ErrUnknownTable is returned for a table name outside the declared set.
	ErrUnknownTable = errors.New("unknown table")

	// ErrTableNotInScope is returned when a transaction touches a table it
	// was not opened for.
	ErrTableNotInScope = errors.New("table not in transaction scope")

	// ErrReadOnly is returned for writes inside a View transaction.
	ErrReadOnly = errors.New("write in read-only transaction")

	// ErrWrongTableKind is returned when entity operations target the
	// shared table or shared operations target an entity table.
	ErrWrongTableKind = errors.New("operation not supported on this table")

	// ErrSchemaTooNew is returned when the database was written by a newer
	// schema version than this binary knows.
	ErrSchemaTooNew = errors.New("database schema is newer than supported")

	// ErrNoIndex is returned by FindByIndex for an undeclared index field.
	ErrNoIndex = errors.New("no such index")
)
