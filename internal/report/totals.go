package report

import "github.com/shopspring/decimal"

// Totals aggregates a report's live entries. Days carry decimal precision
// (quarter and half days are common); the amount is exact integer arithmetic
// over per-line totals in minor currency units.
type Totals struct {
	Days   decimal.Decimal
	Amount int64
}

// ComputeTotals sums the given entries. Soft-deleted entries are excluded;
// callers pass the live set.
func ComputeTotals(entries []ActivityEntry) Totals {
	totals := Totals{Days: decimal.Zero}
	for _, e := range entries {
		if e.DeletedAt != nil {
			continue
		}
		totals.Days = totals.Days.Add(e.Quantity)
		totals.Amount += e.LineTotal()
	}
	return totals
}
