package inspection

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

var _ Store = (*Repo)(nil)

func (r *Repo) Record(ctx context.Context, workOrderID int64, batchID *int64, approvedQty, actorID int64) (*ApprovalBatch, error) {
	if approvedQty <= 0 {
		return nil, fmt.Errorf("approved qty must be > 0: %w", errs.ErrInvalidTransition)
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO inspection_approval_batches (work_order_id, batch_id, approved_qty, created_by)
		VALUES ($1,$2,$3,$4)
		RETURNING id, work_order_id, batch_id, approved_qty, consumed_qty, created_by, created_at
	`, workOrderID, batchID, approvedQty, actorID)
	var a ApprovalBatch
	if err := row.Scan(&a.ID, &a.WorkOrderID, &a.BatchID, &a.ApprovedQty, &a.ConsumedQty, &a.CreatedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repo) ListOpen(ctx context.Context, workOrderID int64) ([]ApprovalBatch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, work_order_id, batch_id, approved_qty, consumed_qty, created_by, created_at
		FROM inspection_approval_batches
		WHERE work_order_id=$1 AND consumed_qty < approved_qty
		ORDER BY created_at, id
	`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ApprovalBatch
	for rows.Next() {
		var a ApprovalBatch
		if err := rows.Scan(&a.ID, &a.WorkOrderID, &a.BatchID, &a.ApprovedQty, &a.ConsumedQty, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Consume: условие в WHERE не даёт consumed перерасти approved.
func (r *Repo) Consume(ctx context.Context, approvalID, qty int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inspection_approval_batches
		SET consumed_qty = consumed_qty + $2
		WHERE id=$1 AND consumed_qty + $2 <= approved_qty
	`, approvalID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("approval %d: consume %d over approved: %w", approvalID, qty, errs.ErrInvalidTransition)
	}
	return nil
}

func (r *Repo) Restore(ctx context.Context, approvalID, qty int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inspection_approval_batches
		SET consumed_qty = consumed_qty - $2
		WHERE id=$1 AND consumed_qty >= $2
	`, approvalID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("approval %d: restore %d over consumed: %w", approvalID, qty, errs.ErrInvalidTransition)
	}
	return nil
}
