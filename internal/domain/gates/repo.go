package gates

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

func (r *Repo) GetPair(ctx context.Context, workOrderID int64) (*Pair, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT work_order_id, gate, status, COALESCE(approved_by,0), approved_at, COALESCE(remarks,'')
		FROM quality_gates WHERE work_order_id = $1
	`, workOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var p Pair
	n := 0
	for rows.Next() {
		var g Gate
		if err := rows.Scan(&g.WorkOrderID, &g.Type, &g.Status, &g.ApprovedBy, &g.ApprovedAt, &g.Remarks); err != nil {
			return nil, err
		}
		switch g.Type {
		case Material:
			p.Material = g
		case FirstPiece:
			p.FirstPiece = g
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("gates for work order %d: %w", workOrderID, errs.ErrNotFound)
	}
	return &p, nil
}

// Set — атомарный переход: строка обновляется только если текущий
// статус в списке from; иначе никакой записи не происходит.
func (r *Repo) Set(ctx context.Context, workOrderID int64, gt Type, from []Status, to Status, actorID int64, remarks string, at time.Time) (*Gate, error) {
	fromStr := make([]string, len(from))
	for i, s := range from {
		fromStr[i] = string(s)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE quality_gates
		SET status=$3, approved_by=$4, approved_at=$5, remarks=$6
		WHERE work_order_id=$1 AND gate=$2 AND status = ANY($7)
		RETURNING work_order_id, gate, status, approved_by, approved_at, remarks
	`, workOrderID, string(gt), string(to), actorID, at, remarks, fromStr)

	var g Gate
	if err := row.Scan(&g.WorkOrderID, &g.Type, &g.Status, &g.ApprovedBy, &g.ApprovedAt, &g.Remarks); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gate %s of work order %d changed concurrently: %w", gt, workOrderID, errs.ErrInvalidTransition)
		}
		return nil, err
	}
	return &g, nil
}
