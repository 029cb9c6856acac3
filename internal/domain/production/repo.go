package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

var _ Store = (*Repo)(nil)

const batchCols = `
	id, work_order_id, seq, machine, target_qty, produced_qty,
	qc_approved_qty, qc_rejected_qty, dispatched_qty,
	is_complete, completed_qty, COALESCE(complete_reason,''), COALESCE(completed_by,0),
	COALESCE(complete_note,''), closed_at, created_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(
		&b.ID, &b.WorkOrderID, &b.Seq, &b.Machine, &b.TargetQty, &b.ProducedQty,
		&b.QCApprovedQty, &b.QCRejectedQty, &b.DispatchedQty,
		&b.IsComplete, &b.CompletedQty, &b.CompleteReason, &b.CompletedBy,
		&b.CompleteNote, &b.ClosedAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetBatch(ctx context.Context, id int64) (*Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT`+batchCols+` FROM production_batches WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %d: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}

func (r *Repo) FindOpenBatch(ctx context.Context, workOrderID int64, machine string) (*Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `
		SELECT`+batchCols+`
		FROM production_batches
		WHERE work_order_id=$1 AND machine=$2 AND closed_at IS NULL
		ORDER BY seq DESC LIMIT 1
	`, workOrderID, machine))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *Repo) NextSeq(ctx context.Context, workOrderID int64) (int, error) {
	var seq int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq),0)+1 FROM production_batches WHERE work_order_id=$1
	`, workOrderID).Scan(&seq)
	return seq, err
}

func (r *Repo) CreateBatch(ctx context.Context, workOrderID int64, machine string, seq int, targetQty int64) (*Batch, error) {
	return scanBatch(r.pool.QueryRow(ctx, `
		INSERT INTO production_batches (work_order_id, seq, machine, target_qty)
		VALUES ($1,$2,$3,$4)
		RETURNING`+batchCols, workOrderID, seq, machine, targetQty))
}

// AddProduced: плюсуем количество партии и пишем строку в журнал выработки.
func (r *Repo) AddProduced(ctx context.Context, batchID, qty, actorID int64) (*Batch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBatch(tx.QueryRow(ctx, `
		UPDATE production_batches SET produced_qty = produced_qty + $2
		WHERE id=$1 AND closed_at IS NULL
		RETURNING`+batchCols, batchID, qty))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %d is closed: %w", batchID, errs.ErrInvalidTransition)
		}
		return nil, err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO production_entries (batch_id, work_order_id, qty, actor_id)
		VALUES ($1,$2,$3,$4)
	`, batchID, b.WorkOrderID, qty, actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Complete — CAS по открытому состоянию: закрывает только открытую партию.
func (r *Repo) Complete(ctx context.Context, batchID int64, reason CompleteReason, actorID int64, note string, completedQty int64, at time.Time) (*Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `
		UPDATE production_batches
		SET is_complete=TRUE, completed_qty=$2, complete_reason=$3,
		    completed_by=$4, complete_note=$5, closed_at=$6
		WHERE id=$1 AND closed_at IS NULL
		RETURNING`+batchCols, batchID, completedQty, string(reason), actorID, note, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %d already closed: %w", batchID, errs.ErrInvalidTransition)
		}
		return nil, err
	}
	return b, nil
}

// Reopen — CAS по закрытому состоянию: чистит все поля закрытия.
func (r *Repo) Reopen(ctx context.Context, batchID int64) (*Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `
		UPDATE production_batches
		SET is_complete=FALSE, completed_qty=0, complete_reason=NULL,
		    completed_by=NULL, complete_note=NULL, closed_at=NULL
		WHERE id=$1 AND closed_at IS NOT NULL
		RETURNING`+batchCols, batchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %d is not closed: %w", batchID, errs.ErrInvalidTransition)
		}
		return nil, err
	}
	return b, nil
}

// ListByWorkOrder — партии заказа по порядку sequence.
func (r *Repo) ListByWorkOrder(ctx context.Context, workOrderID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+batchCols+` FROM production_batches WHERE work_order_id=$1 ORDER BY seq
	`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
