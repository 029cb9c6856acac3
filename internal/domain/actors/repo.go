package actors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Get(ctx context.Context, id int64) (*Actor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, role, created_at FROM actors WHERE id=$1
	`, id)
	var a Actor
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("actor %d: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return &a, nil
}

func (r *Repo) Upsert(ctx context.Context, name string, role Role) (*Actor, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO actors (name, role) VALUES ($1,$2)
		ON CONFLICT (name) DO UPDATE SET role = EXCLUDED.role
		RETURNING id, name, role, created_at
	`, name, string(role))
	var a Actor
	if err := row.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CanBypassGate реализует проверку прав для гейтов (gates.Capabilities).
func (r *Repo) CanBypassGate(ctx context.Context, actorID int64) (bool, error) {
	a, err := r.Get(ctx, actorID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return a.CanBypassGate(), nil
}
