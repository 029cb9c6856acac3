package resolver

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/domain/orders"
)

// PGSource — чтение агрегатов напрямую из Postgres. Запросы идут без
// блокировок: суммы идемпотентны, короткое отставание допустимо и
// ограничено окном валидности кэша.
type PGSource struct{ pool *pgxpool.Pool }

func NewPGSource(pool *pgxpool.Pool) *PGSource { return &PGSource{pool: pool} }

var _ Source = (*PGSource)(nil)

func (s *PGSource) WorkOrders(ctx context.Context, ids []int64) (map[int64]orders.WorkOrder, error) {
	out := make(map[int64]orders.WorkOrder, len(ids))
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, ordered_qty, status, created_at
		FROM work_orders WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, srcErr("work_orders", err)
	}
	defer rows.Close()
	for rows.Next() {
		var w orders.WorkOrder
		if err := rows.Scan(&w.ID, &w.Code, &w.OrderedQty, &w.Status, &w.CreatedAt); err != nil {
			return nil, srcErr("work_orders", err)
		}
		out[w.ID] = w
	}
	return out, rows.Err()
}

func (s *PGSource) ProductionSums(ctx context.Context, ids []int64) (map[int64]ProductionSums, error) {
	out := make(map[int64]ProductionSums, len(ids))
	rows, err := s.pool.Query(ctx, `
		SELECT work_order_id,
		       COALESCE(SUM(produced_qty),0),
		       COALESCE(SUM(qc_approved_qty),0),
		       COALESCE(SUM(qc_rejected_qty),0)
		FROM production_batches
		WHERE work_order_id = ANY($1)
		GROUP BY work_order_id
	`, ids)
	if err != nil {
		return nil, srcErr("production_batches", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var p ProductionSums
		if err := rows.Scan(&id, &p.Produced, &p.LegacyApproved, &p.Rejected); err != nil {
			return nil, srcErr("production_batches", err)
		}
		out[id] = p
	}
	return out, rows.Err()
}

func (s *PGSource) ApprovedSums(ctx context.Context, ids []int64) (map[int64]int64, error) {
	return s.sumByOrder(ctx, ids, `
		SELECT work_order_id, COALESCE(SUM(approved_qty),0)
		FROM inspection_approval_batches
		WHERE work_order_id = ANY($1)
		GROUP BY work_order_id
	`, "inspection_approval_batches")
}

func (s *PGSource) PackedSums(ctx context.Context, ids []int64) (map[int64]int64, error) {
	// qty реверса отрицательный, сумма честная сама по себе
	return s.sumByOrder(ctx, ids, `
		SELECT work_order_id, COALESCE(SUM(qty),0)
		FROM cartons
		WHERE work_order_id = ANY($1)
		GROUP BY work_order_id
	`, "cartons")
}

func (s *PGSource) DispatchedSums(ctx context.Context, ids []int64) (map[int64]int64, error) {
	return s.sumByOrder(ctx, ids, `
		SELECT work_order_id, COALESCE(SUM(qty),0)
		FROM dispatch_records
		WHERE work_order_id = ANY($1)
		GROUP BY work_order_id
	`, "dispatch_records")
}

func (s *PGSource) sumByOrder(ctx context.Context, ids []int64, q, table string) (map[int64]int64, error) {
	out := make(map[int64]int64, len(ids))
	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, srcErr(table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, sum int64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, srcErr(table, err)
		}
		out[id] = sum
	}
	return out, rows.Err()
}

func srcErr(table string, err error) error {
	return fmt.Errorf("%s: %v: %w", table, err, errs.ErrSourceUnavailable)
}
