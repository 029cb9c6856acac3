package inspection

import (
	"context"
	"fmt"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
)

type Store interface {
	Record(ctx context.Context, workOrderID int64, batchID *int64, approvedQty, actorID int64) (*ApprovalBatch, error)
	// ListOpen — пулы заказа с остатком, от старых к новым.
	ListOpen(ctx context.Context, workOrderID int64) ([]ApprovalBatch, error)
	// Consume атомарно увеличивает consumed, не давая превысить approved.
	Consume(ctx context.Context, approvalID, qty int64) error
	// Restore возвращает потреблённое (реверс упаковки).
	Restore(ctx context.Context, approvalID, qty int64) error
}

// Allocate разбирает qty по открытым пулам заказа (FIFO).
// Нехватка остатка — отказ целиком, без частичного потребления.
func Allocate(ctx context.Context, store Store, workOrderID, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("qty must be > 0: %w", errs.ErrInvalidTransition)
	}
	open, err := store.ListOpen(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, a := range open {
		total += a.Available()
	}
	if total < qty {
		return nil, fmt.Errorf("qc-approved available %d < requested %d: %w", total, qty, errs.ErrInvalidTransition)
	}

	var allocs []Allocation
	left := qty
	for _, a := range open {
		if left == 0 {
			break
		}
		take := a.Available()
		if take > left {
			take = left
		}
		if take == 0 {
			continue
		}
		if err := store.Consume(ctx, a.ID, take); err != nil {
			// откатываем уже потреблённое
			for _, done := range allocs {
				_ = store.Restore(ctx, done.ApprovalID, done.Qty)
			}
			return nil, err
		}
		allocs = append(allocs, Allocation{ApprovalID: a.ID, Qty: take})
		left -= take
	}
	return allocs, nil
}
