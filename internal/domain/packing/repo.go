package packing

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

var _ Store = (*Repo)(nil)

func (r *Repo) Insert(ctx context.Context, workOrderID int64, approvalID *int64, qty, actorID int64, reversalOf *int64) (*Carton, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cartons (work_order_id, approval_id, qty, created_by, reversal_of)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, work_order_id, approval_id, qty, reversed, reversal_of, created_by, created_at
	`, workOrderID, approvalID, qty, actorID, reversalOf)
	var c Carton
	if err := row.Scan(&c.ID, &c.WorkOrderID, &c.ApprovalID, &c.Qty, &c.Reversed, &c.ReversalOf, &c.CreatedBy, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*Carton, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, work_order_id, approval_id, qty, reversed, reversal_of, created_by, created_at
		FROM cartons WHERE id=$1
	`, id)
	var c Carton
	if err := row.Scan(&c.ID, &c.WorkOrderID, &c.ApprovalID, &c.Qty, &c.Reversed, &c.ReversalOf, &c.CreatedBy, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("carton %d: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repo) MarkReversed(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cartons SET reversed=TRUE WHERE id=$1 AND NOT reversed
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("carton %d already reversed: %w", id, errs.ErrInvalidTransition)
	}
	return nil
}

func (r *Repo) UnmarkReversed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE cartons SET reversed=FALSE WHERE id=$1
	`, id)
	return err
}
