// Package domain holds the entity types kept in the local receipt database:
// invoices, merchants, cached scans and account preferences.
//
// Entities are plain structs with camelCase JSON field names. The JSON
// encoding is what gets persisted, so renaming a tag is a storage format
// change.
package domain
