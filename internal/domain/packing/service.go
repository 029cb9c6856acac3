package packing

import (
	"context"
	"fmt"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/domain/inspection"
	"github.com/izzyftw1/rvi-sub004/internal/keymutex"
)

type Store interface {
	Insert(ctx context.Context, workOrderID int64, approvalID *int64, qty, actorID int64, reversalOf *int64) (*Carton, error)
	Get(ctx context.Context, id int64) (*Carton, error)
	// MarkReversed — CAS: помечает только ещё не реверснутую коробку.
	MarkReversed(ctx context.Context, id int64) error
	// UnmarkReversed снимает пометку, когда реверс сорвался на полпути.
	UnmarkReversed(ctx context.Context, id int64) error
}

// Service упаковывает только из принятого ОТК остатка:
// количество списывается из approval-пулов (FIFO), по коробке на пул.
type Service struct {
	store     Store
	approvals inspection.Store
	locks     *keymutex.Set
}

func NewService(store Store, approvals inspection.Store) *Service {
	return &Service{store: store, approvals: approvals, locks: keymutex.New()}
}

func (s *Service) Pack(ctx context.Context, workOrderID, qty, actorID int64) ([]Carton, error) {
	s.locks.Lock(workOrderID)
	defer s.locks.Unlock(workOrderID)

	allocs, err := inspection.Allocate(ctx, s.approvals, workOrderID, qty)
	if err != nil {
		return nil, err
	}

	var out []Carton
	for i, al := range allocs {
		id := al.ApprovalID
		c, err := s.store.Insert(ctx, workOrderID, &id, al.Qty, actorID, nil)
		if err != nil {
			// списанное, но не пришитое к коробкам — обратно в пулы
			for _, rest := range allocs[i:] {
				_ = s.approvals.Restore(ctx, rest.ApprovalID, rest.Qty)
			}
			return out, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// Reverse снимает коробку: оригинал помечается, пишется строка с минусом,
// количество возвращается в approval-пул.
func (s *Service) Reverse(ctx context.Context, cartonID, actorID int64) (*Carton, error) {
	c, err := s.store.Get(ctx, cartonID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(c.WorkOrderID)
	defer s.locks.Unlock(c.WorkOrderID)

	if c.Qty <= 0 {
		return nil, fmt.Errorf("carton %d is a reversal: %w", cartonID, errs.ErrInvalidTransition)
	}
	if err := s.store.MarkReversed(ctx, cartonID); err != nil {
		return nil, err
	}
	if c.ApprovalID != nil {
		if err := s.approvals.Restore(ctx, *c.ApprovalID, c.Qty); err != nil {
			_ = s.store.UnmarkReversed(ctx, cartonID)
			return nil, err
		}
	}
	rev, err := s.store.Insert(ctx, c.WorkOrderID, c.ApprovalID, -c.Qty, actorID, &c.ID)
	if err != nil {
		// откат: пул назад в потреблённое, пометка снимается, реверс можно повторить
		if c.ApprovalID != nil {
			_ = s.approvals.Consume(ctx, *c.ApprovalID, c.Qty)
		}
		_ = s.store.UnmarkReversed(ctx, cartonID)
		return nil, err
	}
	return rev, nil
}
