package report

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opencra/opencra/internal/mission"
	"github.com/opencra/opencra/internal/shared"
)

// RepositoryPort defines data access for reports, entries and the commit
// ledger. Mutating methods are transactional: each one locks the parent
// report row, re-verifies its lifecycle state under the lock, applies the
// mutation and persists recomputed totals before committing. Uniqueness is
// enforced by the store's unique indexes; violations surface as
// ErrDuplicateReport / ErrDuplicateEntry.
type RepositoryPort interface {
	InsertReport(ctx context.Context, r *ActivityReport) error
	GetReport(ctx context.Context, id uuid.UUID) (*ActivityReport, error)
	UpdateReportMeta(ctx context.Context, id uuid.UUID, in UpdateReportInput, now time.Time) (*ActivityReport, error)
	DeleteReport(ctx context.Context, id uuid.UUID, now time.Time) error
	TransitionReport(ctx context.Context, id uuid.UUID, from, to Status, now time.Time) (*ActivityReport, error)
	LockReport(ctx context.Context, id uuid.UUID, now time.Time) (*ActivityReport, *ReportCommit, error)
	ListReports(ctx context.Context, f ReportFilter) ([]ActivityReport, int, error)
	ListCommits(ctx context.Context, reportID uuid.UUID) ([]ReportCommit, error)

	InsertEntry(ctx context.Context, e *ActivityEntry) error
	GetEntry(ctx context.Context, id uuid.UUID) (*ActivityEntry, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, in UpdateEntryInput, now time.Time) (*ActivityEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID, now time.Time) error
	ListEntries(ctx context.Context, reportID uuid.UUID, f EntryFilter) ([]ActivityEntry, int, error)
	EntriesForReport(ctx context.Context, reportID uuid.UUID) ([]ActivityEntry, error)
	ReportMissionIDs(ctx context.Context, reportID uuid.UUID) ([]uuid.UUID, error)
}

// MissionDirectory is the read-only view of missions the engine needs:
// existence checks for entry creation, company associations for the
// authorization gate, names for exports.
type MissionDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*mission.Mission, error)
	CompaniesFor(ctx context.Context, missionIDs []uuid.UUID) ([]uuid.UUID, error)
	Names(ctx context.Context, missionIDs []uuid.UUID) (map[uuid.UUID]string, error)
}

const (
	defaultReportPageSize = 20
	maxReportPageSize     = 100
	maxEntryPageSize      = 10
)

// Service orchestrates the report lifecycle. Every operation takes the
// principal explicitly and runs the guard chain in a fixed order:
// authorization, then lifecycle, then uniqueness, then the mutation itself,
// so the most relevant failure is always the one returned.
type Service struct {
	repo     RepositoryPort
	missions MissionDirectory
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service instance.
func NewService(repo RepositoryPort, missions MissionDirectory, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		missions: missions,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateReport opens a new draft report owned by the principal. Totals start
// at zero and only entry mutations ever move them.
func (s *Service) CreateReport(ctx context.Context, principal *shared.Principal, in CreateReportInput) (*ActivityReport, error) {
	if principal == nil {
		return nil, shared.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	r := &ActivityReport{
		ID:          uuid.New(),
		UserID:      principal.UserID,
		Month:       in.Month,
		Year:        in.Year,
		Currency:    NormalizeCurrency(in.Currency),
		Description: in.Description,
		Status:      StatusDraft,
		TotalDays:   decimal.Zero,
		TotalAmount: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertReport(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info("report created",
		slog.String("report_id", r.ID.String()),
		slog.String("user_id", r.UserID.String()),
		slog.Int("month", r.Month),
		slog.Int("year", r.Year))
	return r, nil
}

// GetReport returns a report the principal may read.
func (s *Service) GetReport(ctx context.Context, principal *shared.Principal, id uuid.UUID) (*ActivityReport, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, principal, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateReport changes description or currency on a draft report.
func (s *Service) UpdateReport(ctx context.Context, principal *shared.Principal, id uuid.UUID, in UpdateReportInput) (*ActivityReport, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ctx, principal, r); err != nil {
		return nil, err
	}
	if err := EnsureEditable(r.Status); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.repo.UpdateReportMeta(ctx, id, in, s.now().UTC())
}

// DeleteReport soft-deletes a draft report and cascades the soft delete to
// its entries within the same transaction.
func (s *Service) DeleteReport(ctx context.Context, principal *shared.Principal, id uuid.UUID) error {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorizeWrite(ctx, principal, r); err != nil {
		return err
	}
	if err := EnsureEditable(r.Status); err != nil {
		return err
	}
	if err := s.repo.DeleteReport(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("report deleted", slog.String("report_id", id.String()))
	return nil
}

// Submit moves a draft report to submitted. Empty reports may be submitted.
func (s *Service) Submit(ctx context.Context, principal *shared.Principal, id uuid.UUID) (*ActivityReport, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ctx, principal, r); err != nil {
		return nil, err
	}
	if err := Transition(r.Status, StatusSubmitted); err != nil {
		return nil, err
	}
	updated, err := s.repo.TransitionReport(ctx, id, StatusDraft, StatusSubmitted, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("report submitted", slog.String("report_id", id.String()))
	return updated, nil
}

// Lock moves a submitted report to locked and appends exactly one commit to
// the versioning ledger, atomically with the status flip.
func (s *Service) Lock(ctx context.Context, principal *shared.Principal, id uuid.UUID) (*ActivityReport, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ctx, principal, r); err != nil {
		return nil, err
	}
	if err := Transition(r.Status, StatusLocked); err != nil {
		return nil, err
	}
	updated, commit, err := s.repo.LockReport(ctx, id, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("report locked",
		slog.String("report_id", id.String()),
		slog.String("snapshot_ref", commit.SnapshotRef))
	return updated, nil
}

// ListReports returns the reports visible to the principal, filtered by
// year, month and status.
func (s *Service) ListReports(ctx context.Context, principal *shared.Principal, f ReportFilter) ([]ActivityReport, shared.Pagination, error) {
	if principal == nil {
		return nil, shared.Pagination{}, shared.ErrForbidden
	}
	page := shared.NewPagination(f.Page, f.PerPage, maxReportPageSize, 0)
	if f.PerPage <= 0 {
		page.PerPage = defaultReportPageSize
	}
	f.Page = page.Page
	f.PerPage = page.PerPage
	f.visibleUser = principal.UserID
	f.visibleCompanies = principal.CompanyIDs

	reports, total, err := s.repo.ListReports(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return reports, shared.NewPagination(f.Page, f.PerPage, maxReportPageSize, total), nil
}

// Export writes the CSV rendition of a report the principal may read. It is
// available in every lifecycle state since it never mutates anything.
func (s *Service) Export(ctx context.Context, principal *shared.Principal, id uuid.UUID, w io.Writer) (*ActivityReport, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, principal, r); err != nil {
		return nil, err
	}
	entries, err := s.repo.EntriesForReport(ctx, id)
	if err != nil {
		return nil, err
	}
	missionIDs := make([]uuid.UUID, 0, len(entries))
	seen := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.MissionID]; ok {
			continue
		}
		seen[e.MissionID] = struct{}{}
		missionIDs = append(missionIDs, e.MissionID)
	}
	names, err := s.missions.Names(ctx, missionIDs)
	if err != nil {
		return nil, err
	}
	if err := WriteCSV(w, r, entries, names); err != nil {
		return nil, err
	}
	return r, nil
}

// Commits returns the ledger history for a report the principal may read.
func (s *Service) Commits(ctx context.Context, principal *shared.Principal, id uuid.UUID) ([]ReportCommit, error) {
	r, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, principal, r); err != nil {
		return nil, err
	}
	return s.repo.ListCommits(ctx, id)
}
