// Package identity resolves authenticated principals. The engine treats the
// identity provider as an external collaborator; this package defines the
// interface the core needs plus a Postgres-backed implementation reading the
// token and membership tables.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencra/opencra/internal/shared"
)

// ErrUnknownToken indicates the presented credential resolves to no principal.
var ErrUnknownToken = errors.New("identity: unknown token")

// Provider resolves a bearer token into a principal with company memberships.
type Provider interface {
	Resolve(ctx context.Context, token string) (*shared.Principal, error)
}

// PGProvider resolves principals from api_tokens and company_members.
type PGProvider struct {
	pool *pgxpool.Pool
}

// NewPGProvider constructs a PGProvider.
func NewPGProvider(pool *pgxpool.Pool) *PGProvider {
	return &PGProvider{pool: pool}
}

// Resolve looks up the token and loads the principal's memberships.
func (p *PGProvider) Resolve(ctx context.Context, token string) (*shared.Principal, error) {
	if token == "" {
		return nil, ErrUnknownToken
	}

	var userID uuid.UUID
	var name string
	err := p.pool.QueryRow(ctx, `SELECT user_id, user_name FROM api_tokens WHERE token=$1`, token).Scan(&userID, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `SELECT company_id FROM company_members WHERE user_id=$1`, userID)
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

	return &shared.Principal{UserID: userID, Name: name, CompanyIDs: companies}, nil
}
