package models

import "time"

// Usage tracks bulk operation consumption for one shop in one calendar
// month. The storage layer increments OperationCount inside a single
// transaction so concurrent job completions cannot lose updates.
type Usage struct {
	ID             string    `json:"id" badgerhold:"key"` // shop + "_" + month
	Shop           string    `json:"shop" badgerholdIndex:"Shop"`
	Month          string    `json:"month"` // YYYY-MM
	OperationCount int64     `json:"operation_count"`
	LastOperation  string    `json:"last_operation,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UsageKey builds the storage key for a shop/month pair.
func UsageKey(shop, month string) string {
	return shop + "_" + month
}

// CurrentMonth formats t as the usage month bucket.
func CurrentMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}
