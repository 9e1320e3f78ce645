package report

import (
	"context"
	"fmt"

	"github.com/opencra/opencra/internal/shared"
)

// authorizeRead decides whether the principal may see the report: the owner
// always may, and so may members of any company associated with the missions
// the report's entries reference. A principal with no association at all gets
// a not-found, never a forbidden, so existence is not leaked.
func (s *Service) authorizeRead(ctx context.Context, principal *shared.Principal, r *ActivityReport) error {
	if principal == nil {
		return shared.ErrForbidden
	}
	if r.UserID == principal.UserID {
		return nil
	}
	visible, err := s.visibleThroughMissions(ctx, principal, r)
	if err != nil {
		return err
	}
	if visible {
		return nil
	}
	return ErrReportNotFound
}

// authorizeWrite decides whether the principal may mutate the report. Only
// the owner may. A company member who can read the report gets a forbidden;
// anyone else gets a not-found. Whether the report is in a writable state is
// the lifecycle gate's question, not this one's.
func (s *Service) authorizeWrite(ctx context.Context, principal *shared.Principal, r *ActivityReport) error {
	if principal == nil {
		return shared.ErrForbidden
	}
	if r.UserID == principal.UserID {
		return nil
	}
	visible, err := s.visibleThroughMissions(ctx, principal, r)
	if err != nil {
		return err
	}
	if visible {
		return fmt.Errorf("only the report owner may modify it: %w", shared.ErrForbidden)
	}
	return ErrReportNotFound
}

func (s *Service) visibleThroughMissions(ctx context.Context, principal *shared.Principal, r *ActivityReport) (bool, error) {
	missionIDs, err := s.repo.ReportMissionIDs(ctx, r.ID)
	if err != nil {
		return false, err
	}
	if len(missionIDs) == 0 {
		return false, nil
	}
	companies, err := s.missions.CompaniesFor(ctx, missionIDs)
	if err != nil {
		return false, err
	}
	return principal.MemberOfAny(companies), nil
}
