package report

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/opencra/opencra/internal/shared"
)

func addEntry(t *testing.T, svc *Service, principal *shared.Principal, reportID, missionID uuid.UUID, day int, quantity float64, unitPrice int64) *ActivityEntry {
	t.Helper()
	e, err := svc.CreateEntry(context.Background(), principal, CreateEntryInput{
		ReportID:  reportID,
		MissionID: missionID,
		Date:      time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.NewFromFloat(quantity),
		UnitPrice: unitPrice,
	})
	require.NoError(t, err)
	return e
}

func TestCreateEntryMaterializesTotals(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")

	addEntry(t, svc, principal, r.ID, missionID, 2, 1.5, 50000)
	addEntry(t, svc, principal, r.ID, missionID, 3, 0.5, 50000)

	after, err := svc.GetReport(context.Background(), principal, r.ID)
	require.NoError(t, err)
	require.True(t, after.TotalDays.Equal(decimal.NewFromFloat(2)), "got %s", after.TotalDays)
	require.Equal(t, int64(100000), after.TotalAmount)
}

func TestCreateEntryAcceptsZeroValues(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")

	e := addEntry(t, svc, principal, r.ID, missionID, 2, 0, 0)
	require.True(t, e.Quantity.IsZero())
	require.Zero(t, e.LineTotal())
}

func TestCreateEntryRejectsNegativeValues(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")

	_, err := svc.CreateEntry(context.Background(), principal, CreateEntryInput{
		ReportID:  r.ID,
		MissionID: missionID,
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.NewFromFloat(-1),
		UnitPrice: 50000,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateEntry(context.Background(), principal, CreateEntryInput{
		ReportID:  r.ID,
		MissionID: missionID,
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.NewFromFloat(1),
		UnitPrice: -50000,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateEntryUnknownMission(t *testing.T) {
	svc, _, _ := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)

	_, err := svc.CreateEntry(context.Background(), principal, CreateEntryInput{
		ReportID:  r.ID,
		MissionID: uuid.New(),
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.NewFromFloat(1),
		UnitPrice: 50000,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateEntryDuplicateMissionAndDate(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	otherMission := missions.add("Globex Migration")

	addEntry(t, svc, principal, r.ID, missionID, 2, 1, 50000)

	_, err := svc.CreateEntry(context.Background(), principal, CreateEntryInput{
		ReportID:  r.ID,
		MissionID: missionID,
		Date:      time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Quantity:  decimal.NewFromFloat(0.5),
		UnitPrice: 50000,
	})
	require.ErrorIs(t, err, ErrDuplicateEntry)

	// Same date on a different mission is allowed.
	addEntry(t, svc, principal, r.ID, otherMission, 2, 0.5, 40000)
}

func TestUpdateEntryRecomputesTotals(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	e := addEntry(t, svc, principal, r.ID, missionID, 2, 1, 50000)

	quantity := decimal.NewFromFloat(2.5)
	updated, err := svc.UpdateEntry(context.Background(), principal, e.ID, UpdateEntryInput{Quantity: &quantity})
	require.NoError(t, err)
	require.True(t, updated.Quantity.Equal(quantity))
	require.Equal(t, int64(125000), updated.LineTotal())

	after, err := svc.GetReport(context.Background(), principal, r.ID)
	require.NoError(t, err)
	require.True(t, after.TotalDays.Equal(quantity))
	require.Equal(t, int64(125000), after.TotalAmount)
}

func TestUpdateEntryDateCollision(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	addEntry(t, svc, principal, r.ID, missionID, 2, 1, 50000)
	e := addEntry(t, svc, principal, r.ID, missionID, 3, 1, 50000)

	collision := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := svc.UpdateEntry(context.Background(), principal, e.ID, UpdateEntryInput{Date: &collision})
	require.ErrorIs(t, err, ErrDuplicateEntry)
}

func TestUpdateEntryRejectedAfterSubmit(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	e := addEntry(t, svc, principal, r.ID, missionID, 2, 1, 50000)

	_, err := svc.Submit(context.Background(), principal, r.ID)
	require.NoError(t, err)

	quantity := decimal.NewFromFloat(2)
	_, err = svc.UpdateEntry(context.Background(), principal, e.ID, UpdateEntryInput{Quantity: &quantity})
	require.ErrorIs(t, err, ErrReportSubmitted)

	err = svc.DeleteEntry(context.Background(), principal, e.ID)
	require.ErrorIs(t, err, ErrReportSubmitted)
}

func TestDeleteEntryRecomputesTotals(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	e := addEntry(t, svc, principal, r.ID, missionID, 2, 1.5, 50000)
	addEntry(t, svc, principal, r.ID, missionID, 3, 0.5, 50000)

	require.NoError(t, svc.DeleteEntry(context.Background(), principal, e.ID))

	after, err := svc.GetReport(context.Background(), principal, r.ID)
	require.NoError(t, err)
	require.True(t, after.TotalDays.Equal(decimal.NewFromFloat(0.5)))
	require.Equal(t, int64(25000), after.TotalAmount)

	// The freed (mission, date) slot can be reused.
	addEntry(t, svc, principal, r.ID, missionID, 2, 1, 50000)
}

func TestListEntriesClampsPageSize(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")

	for day := 1; day <= 12; day++ {
		addEntry(t, svc, principal, r.ID, missionID, day, 1, 50000)
	}

	entries, page, err := svc.ListEntries(context.Background(), principal, r.ID, EntryFilter{PerPage: 50})
	require.NoError(t, err)
	require.Len(t, entries, 10)
	require.Equal(t, 12, page.Total)
	require.Equal(t, 2, page.TotalPages)

	entries, _, err = svc.ListEntries(context.Background(), principal, r.ID, EntryFilter{Page: 2, PerPage: 50})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestListEntriesFilters(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	acme := missions.add("ACME Platform")
	globex := missions.add("Globex Migration")

	addEntry(t, svc, principal, r.ID, acme, 2, 1, 50000)
	addEntry(t, svc, principal, r.ID, acme, 10, 1, 50000)
	addEntry(t, svc, principal, r.ID, globex, 5, 1, 40000)

	entries, _, err := svc.ListEntries(context.Background(), principal, r.ID, EntryFilter{MissionID: acme})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	entries, _, err = svc.ListEntries(context.Background(), principal, r.ID, EntryFilter{
		From: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, globex, entries[0].MissionID)
}
