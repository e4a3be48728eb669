package domain

import "time"

// Auditable carries the bookkeeping fields shared by invoices and merchants.
type Auditable struct {
	CreatedAt       time.Time `json:"createdAt"`
	CreatedBy       string    `json:"createdBy"`
	LastUpdatedAt   time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy   string    `json:"lastUpdatedBy"`
	NumberOfUpdates int       `json:"numberOfUpdates"`
	IsImportant     bool      `json:"isImportant"`
	IsSoftDeleted   bool      `json:"isSoftDeleted"`
}

// Touch records an update made by user at t.
func (a *Auditable) Touch(user string, t time.Time) {
	a.LastUpdatedAt = t
	a.LastUpdatedBy = user
	a.NumberOfUpdates++
}
