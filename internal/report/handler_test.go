package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/opencra/opencra/internal/shared"
)

// newTestRouter mounts the handler behind a middleware that installs a fixed
// principal, standing in for the token middleware.
func newTestRouter(t *testing.T, svc *Service, principal *shared.Principal) http.Handler {
	t.Helper()
	h := NewHandler(slog.New(slog.DiscardHandler), svc)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), principal)))
		})
	})
	h.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerReportLifecycle(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	router := newTestRouter(t, svc, principal)
	missionID := missions.add("ACME Platform")

	rec := doJSON(t, router, http.MethodPost, "/reports", map[string]any{
		"month": 3, "year": 2026, "currency": "EUR",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created reportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, StatusDraft, created.Status)
	require.Equal(t, "0", created.TotalDays)

	// Same period again conflicts.
	rec = doJSON(t, router, http.MethodPost, "/reports", map[string]any{
		"month": 3, "year": 2026, "currency": "EUR",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/reports/%s/entries", created.ID), map[string]any{
		"mission_id": missionID, "date": "2026-03-02", "quantity": "1.5", "unit_price": 50000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/reports/%s/submit", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Entries are frozen after submission.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/reports/%s/entries", created.ID), map[string]any{
		"mission_id": missionID, "date": "2026-03-03", "quantity": "1", "unit_price": 50000,
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/reports/%s/lock", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var locked reportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locked))
	require.Equal(t, StatusLocked, locked.Status)
	require.Equal(t, "1.5", locked.TotalDays)
	require.Equal(t, int64(75000), locked.TotalAmount)

	// Locking twice is an invalid transition.
	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/reports/%s/lock", created.ID), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/reports/%s/commits", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var commitsBody struct {
		Commits []commitResponse `json:"commits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &commitsBody))
	require.Len(t, commitsBody.Commits, 1)
}

func TestHandlerValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	router := newTestRouter(t, svc, testPrincipal())

	rec := doJSON(t, router, http.MethodPost, "/reports", map[string]any{
		"month": 13, "year": 2026, "currency": "EUR",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = doJSON(t, router, http.MethodGet, "/reports/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerRejectsMalformedQueryParams(t *testing.T) {
	svc, _, _ := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	router := newTestRouter(t, svc, principal)

	for _, path := range []string{
		"/reports?page=abc",
		"/reports?per_page=ten",
		"/reports?year=20x6",
		"/reports?month=march",
		fmt.Sprintf("/reports/%s/entries?page=abc", r.ID),
		fmt.Sprintf("/reports/%s/entries?per_page=1.5", r.ID),
	} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, "path %s", path)
	}

	// Absent params still mean defaults.
	rec := doJSON(t, router, http.MethodGet, "/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerHidesForeignReports(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := testPrincipal()
	r := marchReport(t, svc, owner)

	router := newTestRouter(t, svc, testPrincipal())
	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/reports/%s", r.ID), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerForbidsCompanyMemberWrites(t *testing.T) {
	svc, _, missions := newTestService(t)
	owner := testPrincipal()
	companyID := uuid.New()
	member := &shared.Principal{UserID: uuid.New(), Name: "client", CompanyIDs: []uuid.UUID{companyID}}

	r := marchReport(t, svc, owner)
	missionID := missions.add("ACME Platform", companyID)
	addEntry(t, svc, owner, r.ID, missionID, 2, 1, 50000)

	router := newTestRouter(t, svc, member)

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/reports/%s", r.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/reports/%s", r.ID), map[string]any{
		"description": "client edit",
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerExport(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	addEntry(t, svc, principal, r.ID, missionID, 2, 1.5, 50000)

	router := newTestRouter(t, svc, principal)
	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/reports/%s/export", r.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "activity-report-2026-03.csv")
	require.Contains(t, rec.Body.String(), "ACME Platform")
}

func TestHandlerListEntries(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	for day := 1; day <= 12; day++ {
		addEntry(t, svc, principal, r.ID, missionID, day, 1, 50000)
	}

	router := newTestRouter(t, svc, principal)
	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/reports/%s/entries?per_page=50", r.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries    []entryResponse    `json:"entries"`
		Pagination paginationResponse `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Entries, 10)
	require.Equal(t, 10, body.Pagination.PerPage)
	require.Equal(t, 12, body.Pagination.Total)
}

func TestHandlerUpdateAndDeleteEntry(t *testing.T) {
	svc, _, missions := newTestService(t)
	principal := testPrincipal()
	r := marchReport(t, svc, principal)
	missionID := missions.add("ACME Platform")
	e := addEntry(t, svc, principal, r.ID, missionID, 2, 1, 50000)

	router := newTestRouter(t, svc, principal)

	rec := doJSON(t, router, http.MethodPatch, fmt.Sprintf("/entries/%s", e.ID), map[string]any{
		"quantity": "2.5",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated entryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.Equal(t, "2.5", updated.Quantity)
	require.Equal(t, int64(125000), updated.LineTotal)

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/entries/%s", e.ID), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	after, err := svc.GetReport(context.Background(), principal, r.ID)
	require.NoError(t, err)
	require.True(t, after.TotalDays.Equal(decimal.Zero))
}
