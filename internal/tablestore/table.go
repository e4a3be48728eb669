package tablestore

import (
	"fmt"

	"github.com/roach88/receiptvault/internal/schema"
)

// TableName identifies one durable table.
type TableName string

// Declared tables.
const (
	TableShared    TableName = schema.SharedTable
	TableInvoices  TableName = "invoices"
	TableMerchants TableName = "merchants"
	TableScans     TableName = "scans"
)

// Tables lists every declared table in schema order.
var Tables = []TableName{TableShared, TableInvoices, TableMerchants, TableScans}

// EntityTables lists the tables keyed by entity id.
var EntityTables = []TableName{TableInvoices, TableMerchants, TableScans}

// ParseTableName validates a table name against the declared set.
func ParseTableName(s string) (TableName, error) {
	for _, t := range Tables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
}

// IsEntity reports whether n is a declared table storing one row per
// entity.
func (n TableName) IsEntity() bool {
	return n != TableShared && n.Valid()
}

// Valid reports whether n is one of the declared tables.
func (n TableName) Valid() bool {
	_, err := ParseTableName(string(n))
	return err == nil
}

func (n TableName) String() string {
	return string(n)
}
