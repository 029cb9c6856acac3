package orders

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

// Create заводит заказ и сразу два контрольных гейта в pending.
func (r *Repo) Create(ctx context.Context, code string, orderedQty int64) (*WorkOrder, error) {
	if orderedQty <= 0 {
		return nil, fmt.Errorf("%w: ordered qty must be > 0", errs.ErrInvalidTransition)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO work_orders (code, ordered_qty, status)
		VALUES ($1,$2,'draft')
		RETURNING id, code, ordered_qty, status, created_at
	`, code, orderedQty)
	var w WorkOrder
	if err := row.Scan(&w.ID, &w.Code, &w.OrderedQty, &w.Status, &w.CreatedAt); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO quality_gates (work_order_id, gate, status)
		VALUES ($1,'material','pending'), ($1,'first_piece','pending')
	`, w.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*WorkOrder, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, code, ordered_qty, status, created_at
		FROM work_orders WHERE id = $1
	`, id)
	var w WorkOrder
	if err := row.Scan(&w.ID, &w.Code, &w.OrderedQty, &w.Status, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("work order %d: %w", id, errs.ErrNotFound)
		}
		return nil, err
	}
	return &w, nil
}

// GetBatch возвращает заказы по списку id; отсутствующие просто пропускаются.
func (r *Repo) GetBatch(ctx context.Context, ids []int64) (map[int64]WorkOrder, error) {
	out := make(map[int64]WorkOrder, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, code, ordered_qty, status, created_at
		FROM work_orders WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var w WorkOrder
		if err := rows.Scan(&w.ID, &w.Code, &w.OrderedQty, &w.Status, &w.CreatedAt); err != nil {
			return nil, err
		}
		out[w.ID] = w
	}
	return out, rows.Err()
}

// Release переводит заказ в работу; количество после этого не меняется.
func (r *Repo) Release(ctx context.Context, id int64) (*WorkOrder, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE work_orders SET status='released'
		WHERE id=$1 AND status='draft'
		RETURNING id, code, ordered_qty, status, created_at
	`, id)
	var w WorkOrder
	if err := row.Scan(&w.ID, &w.Code, &w.OrderedQty, &w.Status, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// либо нет заказа, либо он уже released
			if _, gerr := r.Get(ctx, id); gerr != nil {
				return nil, gerr
			}
			return nil, fmt.Errorf("work order %d already released: %w", id, errs.ErrInvalidTransition)
		}
		return nil, err
	}
	return &w, nil
}
