package dispatch

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Record(ctx context.Context, workOrderID, qty, actorID int64) (*Record, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("qty must be > 0: %w", errs.ErrInvalidTransition)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO dispatch_records (work_order_id, qty, created_by)
		VALUES ($1,$2,$3)
		RETURNING id, work_order_id, qty, created_by, created_at
	`, workOrderID, qty, actorID)
	var d Record
	if err := row.Scan(&d.ID, &d.WorkOrderID, &d.Qty, &d.CreatedBy, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
