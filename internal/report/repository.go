package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/opencra/opencra/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for reports, entries and
// the commit ledger. Mutations run inside transactions and take a row lock
// on the parent report, which serializes sibling entry mutations and keeps
// the materialized totals exact. A mutation that waited on the lock observes
// the winner's committed state, so it fails on the lifecycle re-check or the
// unique index rather than on a serialization error. The partial unique
// indexes are the authoritative uniqueness guard; this code only translates
// their violations into domain errors.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

const (
	reportUserPeriodConstraint       = "activity_reports_user_period_key"
	entryReportMissionDateConstraint = "activity_entries_report_mission_date_key"
)

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

const reportColumns = `id, user_id, month, year, currency, description, status, total_days::text, total_amount, deleted_at, created_at, updated_at`

const entryColumns = `id, report_id, mission_id, entry_date, quantity::text, unit_price, description, deleted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*ActivityReport, error) {
	var r ActivityReport
	var totalDays string
	if err := row.Scan(&r.ID, &r.UserID, &r.Month, &r.Year, &r.Currency, &r.Description, &r.Status,
		&totalDays, &r.TotalAmount, &r.DeletedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	days, err := decimal.NewFromString(totalDays)
	if err != nil {
		return nil, fmt.Errorf("report: parse total_days %q: %w", totalDays, err)
	}
	r.TotalDays = days
	return &r, nil
}

func scanEntry(row rowScanner) (*ActivityEntry, error) {
	var e ActivityEntry
	var quantity string
	if err := row.Scan(&e.ID, &e.ReportID, &e.MissionID, &e.Date, &quantity, &e.UnitPrice,
		&e.Description, &e.DeletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return nil, fmt.Errorf("entry: parse quantity %q: %w", quantity, err)
	}
	e.Quantity = q
	return &e, nil
}

// InsertReport persists a new report. A concurrent creation for the same
// (user, month, year) loses against the unique index and surfaces as
// ErrDuplicateReport.
func (r *Repository) InsertReport(ctx context.Context, report *ActivityReport) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO activity_reports
		(id, user_id, month, year, currency, description, status, total_days, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11)`,
		report.ID, report.UserID, report.Month, report.Year, report.Currency, report.Description,
		string(report.Status), report.TotalDays.String(), report.TotalAmount, report.CreatedAt, report.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, reportUserPeriodConstraint) {
			return ErrDuplicateReport
		}
		return err
	}
	return nil
}

// GetReport loads a live report by id.
func (r *Repository) GetReport(ctx context.Context, id uuid.UUID) (*ActivityReport, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM activity_reports WHERE id=$1 AND deleted_at IS NULL`, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return report, nil
}

// lockReport loads a live report with a row lock, serializing all mutations
// against it for the duration of the transaction.
func (r *Repository) lockReport(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*ActivityReport, error) {
	row := tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM activity_reports WHERE id=$1 AND deleted_at IS NULL FOR UPDATE`, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return report, nil
}

// recomputeTotals re-sums the report's live entries and persists the result
// on the report row. Must run in the same transaction as the entry mutation
// that made the totals stale.
func (r *Repository) recomputeTotals(ctx context.Context, tx pgx.Tx, reportID uuid.UUID, now time.Time) error {
	entries, err := r.entriesForReportTx(ctx, tx, reportID)
	if err != nil {
		return err
	}
	totals := ComputeTotals(entries)
	_, err = tx.Exec(ctx, `UPDATE activity_reports SET total_days=$2::numeric, total_amount=$3, updated_at=$4 WHERE id=$1`,
		reportID, totals.Days.String(), totals.Amount, now)
	return err
}

// UpdateReportMeta changes description and currency on a draft report,
// re-verifying the lifecycle state under the row lock.
func (r *Repository) UpdateReportMeta(ctx context.Context, id uuid.UUID, in UpdateReportInput, now time.Time) (*ActivityReport, error) {
	var updated *ActivityReport
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		report, err := r.lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := EnsureEditable(report.Status); err != nil {
			return err
		}
		var currency *string
		if in.Currency != nil {
			normalized := NormalizeCurrency(*in.Currency)
			currency = &normalized
		}
		row := tx.QueryRow(ctx, `UPDATE activity_reports SET
			description = COALESCE($2, description),
			currency = COALESCE($3, currency),
			updated_at = $4
			WHERE id=$1 AND deleted_at IS NULL
			RETURNING `+reportColumns,
			id, in.Description, currency, now)
		updated, err = scanReport(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteReport soft-deletes a draft report and cascades the soft delete to
// its live entries in the same transaction. The cascade is explicit; nothing
// relies on implicit callback chains.
func (r *Repository) DeleteReport(ctx context.Context, id uuid.UUID, now time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		report, err := r.lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := EnsureEditable(report.Status); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE activity_entries SET deleted_at=$2, updated_at=$2 WHERE report_id=$1 AND deleted_at IS NULL`, id, now); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE activity_reports SET deleted_at=$2, updated_at=$2 WHERE id=$1`, id, now)
		return err
	})
}

// TransitionReport applies a status change after re-verifying, under the row
// lock, that the report is still in the expected source state. A racing
// transition loses here with the same error a stale client would get.
func (r *Repository) TransitionReport(ctx context.Context, id uuid.UUID, from, to Status, now time.Time) (*ActivityReport, error) {
	var updated *ActivityReport
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		report, err := r.lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if report.Status != from {
			return Transition(report.Status, to)
		}
		if err := Transition(from, to); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `UPDATE activity_reports SET status=$2, updated_at=$3 WHERE id=$1 RETURNING `+reportColumns,
			id, string(to), now)
		updated, err = scanReport(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// LockReport flips a submitted report to locked and appends the ledger
// commit in the same transaction, so a locked report without a commit record
// can never be observed.
func (r *Repository) LockReport(ctx context.Context, id uuid.UUID, now time.Time) (*ActivityReport, *ReportCommit, error) {
	var updated *ActivityReport
	var commit *ReportCommit
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		report, err := r.lockReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if report.Status != StatusSubmitted {
			return Transition(report.Status, StatusLocked)
		}
		entries, err := r.entriesForReportTx(ctx, tx, id)
		if err != nil {
			return err
		}
		ref := SnapshotReference(report, entries)

		c := ReportCommit{ReportID: id, SnapshotRef: ref, CommittedAt: now}
		if err := tx.QueryRow(ctx, `INSERT INTO report_commits (report_id, snapshot_ref, committed_at) VALUES ($1, $2, $3) RETURNING id`,
			id, ref, now).Scan(&c.ID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `UPDATE activity_reports SET status=$2, updated_at=$3 WHERE id=$1 RETURNING `+reportColumns,
			id, string(StatusLocked), now)
		updated, err = scanReport(row)
		if err != nil {
			return err
		}
		commit = &c
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return updated, commit, nil
}

// ListReports returns the page of live reports matching the filter and the
// total match count. Visibility: the principal's own reports plus reports
// whose entries reference a mission tied to one of the principal's
// companies.
func (r *Repository) ListReports(ctx context.Context, f ReportFilter) ([]ActivityReport, int, error) {
	where := ` WHERE deleted_at IS NULL AND (user_id=$1 OR EXISTS (
		SELECT 1 FROM activity_entries e
		JOIN mission_companies mc ON mc.mission_id = e.mission_id
		WHERE e.report_id = activity_reports.id AND e.deleted_at IS NULL AND mc.company_id = ANY($2)))`
	companies := f.visibleCompanies
	if companies == nil {
		companies = []uuid.UUID{}
	}
	args := []any{f.visibleUser, companies}

	if f.Year != 0 {
		args = append(args, f.Year)
		where += fmt.Sprintf(" AND year=$%d", len(args))
	}
	if f.Month != 0 {
		args = append(args, f.Month)
		where += fmt.Sprintf(" AND month=$%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where += fmt.Sprintf(" AND status=$%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_reports`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	query := `SELECT ` + reportColumns + ` FROM activity_reports` + where +
		fmt.Sprintf(` ORDER BY year DESC, month DESC, created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var reports []ActivityReport
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}

// ListCommits returns the ledger history for a report, oldest first.
func (r *Repository) ListCommits(ctx context.Context, reportID uuid.UUID) ([]ReportCommit, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, report_id, snapshot_ref, committed_at FROM report_commits WHERE report_id=$1 ORDER BY id ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []ReportCommit
	for rows.Next() {
		var c ReportCommit
		if err := rows.Scan(&c.ID, &c.ReportID, &c.SnapshotRef, &c.CommittedAt); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return commits, nil
}

// InsertEntry persists a new entry under the parent's row lock, re-verifying
// that the parent is still a draft, and recomputes totals before commit. Of
// two concurrent inserts for the same (report, mission, date), exactly one
// survives the unique index.
func (r *Repository) InsertEntry(ctx context.Context, e *ActivityEntry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		report, err := r.lockReport(ctx, tx, e.ReportID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(report.Status); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO activity_entries
			(id, report_id, mission_id, entry_date, quantity, unit_price, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
			e.ID, e.ReportID, e.MissionID, e.Date, e.Quantity.String(), e.UnitPrice, e.Description, e.CreatedAt, e.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, entryReportMissionDateConstraint) {
				return ErrDuplicateEntry
			}
			return err
		}
		return r.recomputeTotals(ctx, tx, e.ReportID, e.UpdatedAt)
	})
}

// GetEntry loads a live entry by id.
func (r *Repository) GetEntry(ctx context.Context, id uuid.UUID) (*ActivityEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM activity_entries WHERE id=$1 AND deleted_at IS NULL`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return entry, nil
}

// UpdateEntry applies the requested changes under the parent's row lock. A
// date change races against the unique index like a create would.
func (r *Repository) UpdateEntry(ctx context.Context, id uuid.UUID, in UpdateEntryInput, now time.Time) (*ActivityEntry, error) {
	var updated *ActivityEntry
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var reportID uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT report_id FROM activity_entries WHERE id=$1 AND deleted_at IS NULL`, id).Scan(&reportID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEntryNotFound
			}
			return err
		}
		report, err := r.lockReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(report.Status); err != nil {
			return err
		}

		var quantity *string
		if in.Quantity != nil {
			q := in.Quantity.String()
			quantity = &q
		}
		row := tx.QueryRow(ctx, `UPDATE activity_entries SET
			entry_date = COALESCE($2, entry_date),
			quantity = COALESCE($3::numeric, quantity),
			unit_price = COALESCE($4, unit_price),
			description = COALESCE($5, description),
			updated_at = $6
			WHERE id=$1 AND deleted_at IS NULL
			RETURNING `+entryColumns,
			id, in.Date, quantity, in.UnitPrice, in.Description, now)
		updated, err = scanEntry(row)
		if err != nil {
			if isUniqueViolation(err, entryReportMissionDateConstraint) {
				return ErrDuplicateEntry
			}
			return err
		}
		return r.recomputeTotals(ctx, tx, reportID, now)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteEntry soft-deletes an entry under the parent's row lock and
// recomputes totals in the same transaction.
func (r *Repository) DeleteEntry(ctx context.Context, id uuid.UUID, now time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var reportID uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT report_id FROM activity_entries WHERE id=$1 AND deleted_at IS NULL`, id).Scan(&reportID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrEntryNotFound
			}
			return err
		}
		report, err := r.lockReport(ctx, tx, reportID)
		if err != nil {
			return err
		}
		if err := EnsureEditable(report.Status); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE activity_entries SET deleted_at=$2, updated_at=$2 WHERE id=$1 AND deleted_at IS NULL`, id, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrEntryNotFound
		}
		return r.recomputeTotals(ctx, tx, reportID, now)
	})
}

// ListEntries returns a page of a report's live entries plus the total match
// count, optionally filtered by mission and date range.
func (r *Repository) ListEntries(ctx context.Context, reportID uuid.UUID, f EntryFilter) ([]ActivityEntry, int, error) {
	where := ` WHERE report_id=$1 AND deleted_at IS NULL`
	args := []any{reportID}

	if f.MissionID != uuid.Nil {
		args = append(args, f.MissionID)
		where += fmt.Sprintf(" AND mission_id=$%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		where += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		where += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM activity_entries`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)
	query := `SELECT ` + entryColumns + ` FROM activity_entries` + where +
		fmt.Sprintf(` ORDER BY entry_date ASC, created_at ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// EntriesForReport returns all live entries of a report ordered by date.
func (r *Repository) EntriesForReport(ctx context.Context, reportID uuid.UUID) ([]ActivityEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+entryColumns+` FROM activity_entries WHERE report_id=$1 AND deleted_at IS NULL ORDER BY entry_date ASC, created_at ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *Repository) entriesForReportTx(ctx context.Context, tx pgx.Tx, reportID uuid.UUID) ([]ActivityEntry, error) {
	rows, err := tx.Query(ctx, `SELECT `+entryColumns+` FROM activity_entries WHERE report_id=$1 AND deleted_at IS NULL ORDER BY entry_date ASC, created_at ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ReportMissionIDs returns the distinct missions referenced by a report's
// live entries, used to resolve read visibility.
func (r *Repository) ReportMissionIDs(ctx context.Context, reportID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT mission_id FROM activity_entries WHERE report_id=$1 AND deleted_at IS NULL`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func collectEntries(rows pgx.Rows) ([]ActivityEntry, error) {
	var entries []ActivityEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
