package report

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// exportHeader is the fixed CSV header consumers parse against.
var exportHeader = []string{"date", "mission", "quantity", "unit_price", "line_total", "description"}

// WriteCSV renders a report and its live entries as CSV: a header row, one
// row per entry ordered by date then mission, and a trailing totals row.
// Numeric fields use plain decimal notation so the output round-trips through
// any parser.
func WriteCSV(w io.Writer, r *ActivityReport, entries []ActivityEntry, missionNames map[uuid.UUID]string) error {
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
		return missionLabel(missionNames, live[i].MissionID) < missionLabel(missionNames, live[j].MissionID)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, e := range live {
		record := []string{
			e.Date.Format("2006-01-02"),
			missionLabel(missionNames, e.MissionID),
			e.Quantity.String(),
			strconv.FormatInt(e.UnitPrice, 10),
			strconv.FormatInt(e.LineTotal(), 10),
			e.Description,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	totals := ComputeTotals(live)
	summary := []string{"total", "", totals.Days.String(), "", strconv.FormatInt(totals.Amount, 10), ""}
	if err := cw.Write(summary); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func missionLabel(names map[uuid.UUID]string, id uuid.UUID) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id.String()
}
