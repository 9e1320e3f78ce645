// Package report implements the activity report lifecycle engine: monthly
// reports owned by a user, their dated entries against missions, the
// draft/submitted/locked state machine, materialized totals and the
// append-only commit ledger written at lock time.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/opencra/opencra/internal/shared"
)

// Status enumerates activity report lifecycle stages.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusLocked    Status = "LOCKED"
)

// ActivityReport is the aggregate root: one report per user, month and year.
// TotalDays and TotalAmount are maintained by the engine as the exact sums
// over the report's live entries; they are never client-settable.
type ActivityReport struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Month       int
	Year        int
	Currency    string
	Description string
	Status      Status
	TotalDays   decimal.Decimal
	TotalAmount int64
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ActivityEntry is one line item of a report: a quantity of work on a given
// date against a mission. Amounts are integer minor currency units.
type ActivityEntry struct {
	ID          uuid.UUID
	ReportID    uuid.UUID
	MissionID   uuid.UUID
	Date        time.Time
	Quantity    decimal.Decimal
	UnitPrice   int64
	Description string
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LineTotal returns quantity × unit price rounded half away from zero to
// whole minor units. The quarter- and half-day quantities the domain uses
// make this exact in practice.
func (e ActivityEntry) LineTotal() int64 {
	return e.Quantity.Mul(decimal.NewFromInt(e.UnitPrice)).Round(0).IntPart()
}

// ReportCommit is one row of the versioning ledger, written when a report is
// locked. Commits are append-only: once written they are never updated or
// deleted.
type ReportCommit struct {
	ID          int64
	ReportID    uuid.UUID
	SnapshotRef string
	CommittedAt time.Time
}

// Domain errors. Each wraps a shared kind so the HTTP layer can map it to a
// status code without knowing this package.
var (
	ErrReportNotFound    = fmt.Errorf("activity report: %w", shared.ErrNotFound)
	ErrEntryNotFound     = fmt.Errorf("activity entry: %w", shared.ErrNotFound)
	ErrDuplicateReport   = fmt.Errorf("activity report already exists for this user and period: %w", shared.ErrDuplicate)
	ErrDuplicateEntry    = fmt.Errorf("an entry already exists for this mission and date: %w", shared.ErrDuplicate)
	ErrReportSubmitted   = fmt.Errorf("report has been submitted and is no longer editable: %w", shared.ErrConflict)
	ErrReportLocked      = fmt.Errorf("report is locked: %w", shared.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("status change not permitted: %w", shared.ErrInvalidTransition)
)

const (
	minYear = 2000
	maxYear = 2100
)

// CreateReportInput captures parameters for opening a new report.
type CreateReportInput struct {
	Month       int
	Year        int
	Currency    string
	Description string
}

// Validate ensures the create report input is coherent.
func (in CreateReportInput) Validate() error {
	if in.Month < 1 || in.Month > 12 {
		return fmt.Errorf("month must be between 1 and 12: %w", shared.ErrValidation)
	}
	if in.Year < minYear || in.Year > maxYear {
		return fmt.Errorf("year must be between %d and %d: %w", minYear, maxYear, shared.ErrValidation)
	}
	if err := validateCurrency(in.Currency); err != nil {
		return err
	}
	return nil
}

// UpdateReportInput carries the report fields a client may change while the
// report is in draft. Status and totals are never client-settable.
type UpdateReportInput struct {
	Description *string
	Currency    *string
}

// Validate checks the requested changes.
func (in UpdateReportInput) Validate() error {
	if in.Description == nil && in.Currency == nil {
		return fmt.Errorf("no changes requested: %w", shared.ErrValidation)
	}
	if in.Currency != nil {
		if err := validateCurrency(*in.Currency); err != nil {
			return err
		}
	}
	return nil
}

// CreateEntryInput captures parameters for adding an entry to a report.
type CreateEntryInput struct {
	ReportID    uuid.UUID
	MissionID   uuid.UUID
	Date        time.Time
	Quantity    decimal.Decimal
	UnitPrice   int64
	Description string
}

// Validate ensures the entry values are in range. Zero quantity and zero
// price are valid.
func (in CreateEntryInput) Validate() error {
	if in.MissionID == uuid.Nil {
		return fmt.Errorf("mission is required: %w", shared.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("date is required: %w", shared.ErrValidation)
	}
	if in.Quantity.IsNegative() {
		return fmt.Errorf("quantity must not be negative: %w", shared.ErrValidation)
	}
	if in.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative: %w", shared.ErrValidation)
	}
	return nil
}

// UpdateEntryInput carries the entry fields mutable after creation. The
// report and mission linkage is immutable once set.
type UpdateEntryInput struct {
	Date        *time.Time
	Quantity    *decimal.Decimal
	UnitPrice   *int64
	Description *string
}

// Validate checks the requested changes.
func (in UpdateEntryInput) Validate() error {
	if in.Date == nil && in.Quantity == nil && in.UnitPrice == nil && in.Description == nil {
		return fmt.Errorf("no changes requested: %w", shared.ErrValidation)
	}
	if in.Date != nil && in.Date.IsZero() {
		return fmt.Errorf("date must not be empty: %w", shared.ErrValidation)
	}
	if in.Quantity != nil && in.Quantity.IsNegative() {
		return fmt.Errorf("quantity must not be negative: %w", shared.ErrValidation)
	}
	if in.UnitPrice != nil && *in.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative: %w", shared.ErrValidation)
	}
	return nil
}

// ReportFilter scopes report listings. The visibility fields are set by the
// service from the principal and are not client-controllable.
type ReportFilter struct {
	Year    int
	Month   int
	Status  Status
	Page    int
	PerPage int

	visibleUser      uuid.UUID
	visibleCompanies []uuid.UUID
}

// EntryFilter scopes entry listings within one report.
type EntryFilter struct {
	MissionID uuid.UUID
	From      time.Time
	To        time.Time
	Page      int
	PerPage   int
}

func validateCurrency(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := currency.ParseISO(code); err != nil {
		return fmt.Errorf("unrecognised currency %q: %w", code, shared.ErrValidation)
	}
	return nil
}

// NormalizeCurrency upper-cases and trims an ISO-4217 code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
