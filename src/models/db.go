// src/models/db.go
package models

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the store functions can
// run standalone or inside an import batch transaction.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const dateLayout = "2006-01-02"

// Amounts are persisted as fixed two-decimal text so SQL equality works for
// duplicate-candidate and reconciliation lookups.
func amountString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullAmountString(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.StringFixed(2)
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func dateString(t time.Time) string {
	return t.Format(dateLayout)
}

func nullDateString(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSONMap(m map[string]any) string {
	if m == nil {
		return "{}"
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalJSONMap(s string) map[string]any {
	if s == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// MergeMetadata merges overlay into base without mutating either map.
// Existing keys survive unless the overlay redefines them.
func MergeMetadata(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
