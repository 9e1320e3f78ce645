package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SnapshotReference derives a stable content hash over a report and its live
// entries. The reference recorded in the commit ledger lets an auditor verify
// that a locked report's data has not drifted since lock time.
//
// The hashed form is deliberately canonical: entries sorted by date, mission
// and id, numeric fields rendered without locale formatting.
func SnapshotReference(r *ActivityReport, entries []ActivityEntry) string {
	live := make([]ActivityEntry, 0, len(entries))
	for _, e := range entries {
		if e.DeletedAt == nil {
			live = append(live, e)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].Date.Equal(live[j].Date) {
			return live[i].Date.Before(live[j].Date)
		}
		if live[i].MissionID != live[j].MissionID {
			return live[i].MissionID.String() < live[j].MissionID.String()
		}
		return live[i].ID.String() < live[j].ID.String()
	})

	var b strings.Builder
	fmt.Fprintf(&b, "report/%s/%d-%02d/%s\n", r.ID, r.Year, r.Month, r.Currency)
	for _, e := range live {
		fmt.Fprintf(&b, "%s|%s|%s|%d|%d\n",
			e.Date.Format("2006-01-02"), e.MissionID, e.Quantity.String(), e.UnitPrice, e.LineTotal())
	}
	totals := ComputeTotals(live)
	fmt.Fprintf(&b, "totals/%s/%d\n", totals.Days.String(), totals.Amount)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
