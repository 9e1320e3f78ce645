package report

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/opencra/opencra/internal/shared"
)

// CreateEntry adds a line item to a draft report. The guard chain runs in
// order: write authorization, lifecycle, mission existence, value validation,
// then the insert itself, whose unique index settles concurrent duplicates.
// The parent report's totals are recomputed in the same transaction.
func (s *Service) CreateEntry(ctx context.Context, principal *shared.Principal, in CreateEntryInput) (*ActivityEntry, error) {
	r, err := s.repo.GetReport(ctx, in.ReportID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ctx, principal, r); err != nil {
		return nil, err
	}
	if err := EnsureEditable(r.Status); err != nil {
		return nil, err
	}
	if _, err := s.missions.Get(ctx, in.MissionID); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &ActivityEntry{
		ID:          uuid.New(),
		ReportID:    in.ReportID,
		MissionID:   in.MissionID,
		Date:        in.Date,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertEntry(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("entry created",
		slog.String("entry_id", e.ID.String()),
		slog.String("report_id", e.ReportID.String()),
		slog.String("mission_id", e.MissionID.String()))
	return e, nil
}

// UpdateEntry changes date, quantity, unit price or description of an entry
// on a draft report. The report and mission linkage is immutable; a date
// change re-runs the uniqueness check.
func (s *Service) UpdateEntry(ctx context.Context, principal *shared.Principal, id uuid.UUID, in UpdateEntryInput) (*ActivityEntry, error) {
	e, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.repo.GetReport(ctx, e.ReportID)
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
	return s.repo.UpdateEntry(ctx, id, in, s.now().UTC())
}

// DeleteEntry soft-deletes an entry on a draft report and recomputes the
// parent's totals in the same transaction.
func (s *Service) DeleteEntry(ctx context.Context, principal *shared.Principal, id uuid.UUID) error {
	e, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	r, err := s.repo.GetReport(ctx, e.ReportID)
	if err != nil {
		return err
	}
	if err := s.authorizeWrite(ctx, principal, r); err != nil {
		return err
	}
	if err := EnsureEditable(r.Status); err != nil {
		return err
	}
	if err := s.repo.DeleteEntry(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("entry deleted",
		slog.String("entry_id", id.String()),
		slog.String("report_id", e.ReportID.String()))
	return nil
}

// ListEntries returns a page of a report's live entries, optionally filtered
// by mission and date range. Page size is clamped so listings stay bounded.
func (s *Service) ListEntries(ctx context.Context, principal *shared.Principal, reportID uuid.UUID, f EntryFilter) ([]ActivityEntry, shared.Pagination, error) {
	r, err := s.repo.GetReport(ctx, reportID)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if err := s.authorizeRead(ctx, principal, r); err != nil {
		return nil, shared.Pagination{}, err
	}

	page := shared.NewPagination(f.Page, f.PerPage, maxEntryPageSize, 0)
	f.Page = page.Page
	f.PerPage = page.PerPage

	entries, total, err := s.repo.ListEntries(ctx, reportID, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(f.Page, f.PerPage, maxEntryPageSize, total), nil
}
