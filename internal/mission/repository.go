package mission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencra/opencra/internal/shared"
)

// Repository provides PostgreSQL backed read access to missions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a mission with its company associations.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Mission, error) {
	var m Mission
	err := r.pool.QueryRow(ctx, `SELECT id, name, created_at FROM missions WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mission %s: %w", id, shared.ErrNotFound)
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT company_id FROM mission_companies WHERE mission_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var companyID uuid.UUID
		if err := rows.Scan(&companyID); err != nil {
			return nil, err
		}
		m.CompanyIDs = append(m.CompanyIDs, companyID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &m, nil
}

// CompaniesFor returns the union of company ids associated with the given
// missions. Used to decide report visibility.
func (r *Repository) CompaniesFor(ctx context.Context, missionIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(missionIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM mission_companies WHERE mission_id = ANY($1)`, missionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		companies = append(companies, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return companies, nil
}

// Names returns the mission names for the given ids, used when rendering
// exports.
func (r *Repository) Names(ctx context.Context, missionIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(missionIDs))
	if len(missionIDs) == 0 {
		return names, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM missions WHERE id = ANY($1)`, missionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
