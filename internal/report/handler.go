package report

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencra/opencra/internal/platform/httpx"
	"github.com/opencra/opencra/internal/shared"
)

// Handler exposes the report engine as a JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers report and entry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Post("/", h.createReport)
		r.Get("/", h.listReports)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getReport)
			r.Patch("/", h.updateReport)
			r.Delete("/", h.deleteReport)
			r.Post("/submit", h.submitReport)
			r.Post("/lock", h.lockReport)
			r.Get("/export", h.exportReport)
			r.Get("/commits", h.listCommits)
			r.Post("/entries", h.createEntry)
			r.Get("/entries", h.listEntries)
		})
	})
	r.Route("/entries/{id}", func(r chi.Router) {
		r.Patch("/", h.updateEntry)
		r.Delete("/", h.deleteEntry)
	})
}

type createReportRequest struct {
	Month       int    `json:"month" validate:"required,min=1,max=12"`
	Year        int    `json:"year" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3"`
	Description string `json:"description"`
}

type updateReportRequest struct {
	Description *string `json:"description"`
	Currency    *string `json:"currency" validate:"omitempty,len=3"`
}

type createEntryRequest struct {
	MissionID   uuid.UUID       `json:"mission_id" validate:"required"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	Description string          `json:"description"`
}

type updateEntryRequest struct {
	Date        *string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *int64           `json:"unit_price"`
	Description *string          `json:"description"`
}

type reportResponse struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	Currency    string    `json:"currency"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	TotalDays   string    `json:"total_days"`
	TotalAmount int64     `json:"total_amount"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type entryResponse struct {
	ID          uuid.UUID `json:"id"`
	ReportID    uuid.UUID `json:"report_id"`
	MissionID   uuid.UUID `json:"mission_id"`
	Date        string    `json:"date"`
	Quantity    string    `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	LineTotal   int64     `json:"line_total"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type commitResponse struct {
	ID          int64     `json:"id"`
	ReportID    uuid.UUID `json:"report_id"`
	SnapshotRef string    `json:"snapshot_ref"`
	CommittedAt time.Time `json:"committed_at"`
}

type paginationResponse struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func toReportResponse(r *ActivityReport) reportResponse {
	return reportResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		Month:       r.Month,
		Year:        r.Year,
		Currency:    r.Currency,
		Description: r.Description,
		Status:      r.Status,
		TotalDays:   r.TotalDays.String(),
		TotalAmount: r.TotalAmount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toEntryResponse(e *ActivityEntry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		ReportID:    e.ReportID,
		MissionID:   e.MissionID,
		Date:        e.Date.Format("2006-01-02"),
		Quantity:    e.Quantity.String(),
		UnitPrice:   e.UnitPrice,
		LineTotal:   e.LineTotal(),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !httpx.IsDomainError(err) {
		h.logger.Error("report handler", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed id: %w", shared.ErrValidation)
	}
	return id, nil
}

func (h *Handler) createReport(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	created, err := h.service.CreateReport(r.Context(), principal, CreateReportInput{
		Month:       req.Month,
		Year:        req.Year,
		Currency:    req.Currency,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReportResponse(created))
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	rep, err := h.service.GetReport(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(rep))
}

func (h *Handler) updateReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req updateReportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.UpdateReport(r.Context(), principal, id, UpdateReportInput{
		Description: req.Description,
		Currency:    req.Currency,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(updated))
}

func (h *Handler) deleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeleteReport(r.Context(), principal, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) submitReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.Submit(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(updated))
}

func (h *Handler) lockReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.Lock(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(updated))
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	q := r.URL.Query()
	f := ReportFilter{Status: Status(q.Get("status"))}
	for param, dst := range map[string]*int{
		"page": &f.Page, "per_page": &f.PerPage, "year": &f.Year, "month": &f.Month,
	} {
		if err := intParam(q, param, dst); err != nil {
			h.respondError(w, err)
			return
		}
	}
	reports, page, err := h.service.ListReports(r.Context(), principal, f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]reportResponse, 0, len(reports))
	for i := range reports {
		items = append(items, toReportResponse(&reports[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"reports":    items,
		"pagination": toPaginationResponse(page),
	})
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())

	// Render into memory first so a failed guard never produces a partial
	// CSV body with a 200 status.
	var buf bytes.Buffer
	rep, err := h.service.Export(r.Context(), principal, id, &buf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("activity-report-%d-%02d.csv", rep.Year, rep.Month)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) listCommits(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	commits, err := h.service.Commits(r.Context(), principal, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]commitResponse, 0, len(commits))
	for _, c := range commits {
		items = append(items, commitResponse{ID: c.ID, ReportID: c.ReportID, SnapshotRef: c.SnapshotRef, CommittedAt: c.CommittedAt})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"commits": items})
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	reportID, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	created, err := h.service.CreateEntry(r.Context(), principal, CreateEntryInput{
		ReportID:    reportID,
		MissionID:   req.MissionID,
		Date:        date,
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(created))
}

func (h *Handler) updateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var req updateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := UpdateEntryInput{
		Quantity:    req.Quantity,
		UnitPrice:   req.UnitPrice,
		Description: req.Description,
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		in.Date = &date
	}
	principal := shared.PrincipalFromContext(r.Context())
	updated, err := h.service.UpdateEntry(r.Context(), principal, id, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(updated))
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeleteEntry(r.Context(), principal, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	reportID, err := pathID(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	q := r.URL.Query()
	var f EntryFilter
	for param, dst := range map[string]*int{"page": &f.Page, "per_page": &f.PerPage} {
		if err := intParam(q, param, dst); err != nil {
			h.respondError(w, err)
			return
		}
	}
	if raw := q.Get("mission_id"); raw != "" {
		missionID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed mission_id")
			return
		}
		f.MissionID = missionID
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		f.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		f.To = to
	}

	principal := shared.PrincipalFromContext(r.Context())
	entries, page, err := h.service.ListEntries(r.Context(), principal, reportID, f)
	if err != nil {
		h.respondError(w, err)
		return
	}
	items := make([]entryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toEntryResponse(&entries[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    items,
		"pagination": toPaginationResponse(page),
	})
}

func toPaginationResponse(p shared.Pagination) paginationResponse {
	return paginationResponse{Page: p.Page, PerPage: p.PerPage, Total: p.Total, TotalPages: p.TotalPages}
}

// intParam parses an optional integer query parameter. Absent means zero;
// present but unparsable is a validation failure, not a silent default.
func intParam(q url.Values, name string, dst *int) error {
	raw := q.Get(name)
	if raw == "" {
		*dst = 0
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("malformed %s: %w", name, shared.ErrValidation)
	}
	*dst = v
	return nil
}
