package packing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/domain/inspection"
	"github.com/izzyftw1/rvi-sub004/internal/domain/packing"
)

type memApprovals struct {
	nextID      int64
	pools       []*inspection.ApprovalBatch
	failRestore bool
}

func (s *memApprovals) add(workOrderID, approved int64) int64 {
	s.nextID++
	s.pools = append(s.pools, &inspection.ApprovalBatch{
		ID: s.nextID, WorkOrderID: workOrderID, ApprovedQty: approved, CreatedAt: time.Now(),
	})
	return s.nextID
}

func (s *memApprovals) Record(_ context.Context, workOrderID int64, batchID *int64, approvedQty, actorID int64) (*inspection.ApprovalBatch, error) {
	s.add(workOrderID, approvedQty)
	a := *s.pools[len(s.pools)-1]
	a.BatchID = batchID
	a.CreatedBy = actorID
	return &a, nil
}

func (s *memApprovals) ListOpen(_ context.Context, workOrderID int64) ([]inspection.ApprovalBatch, error) {
	var out []inspection.ApprovalBatch
	for _, a := range s.pools {
		if a.WorkOrderID == workOrderID && a.Available() > 0 {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *memApprovals) Consume(_ context.Context, approvalID, qty int64) error {
	for _, a := range s.pools {
		if a.ID == approvalID {
			if a.ConsumedQty+qty > a.ApprovedQty {
				return fmt.Errorf("approval %d overconsumed: %w", approvalID, errs.ErrInvalidTransition)
			}
			a.ConsumedQty += qty
			return nil
		}
	}
	return errs.ErrNotFound
}

func (s *memApprovals) Restore(_ context.Context, approvalID, qty int64) error {
	if s.failRestore {
		return fmt.Errorf("approvals: %w", errs.ErrSourceUnavailable)
	}
	for _, a := range s.pools {
		if a.ID == approvalID {
			a.ConsumedQty -= qty
			return nil
		}
	}
	return errs.ErrNotFound
}

func (s *memApprovals) available(workOrderID int64) int64 {
	var total int64
	for _, a := range s.pools {
		if a.WorkOrderID == workOrderID {
			total += a.Available()
		}
	}
	return total
}

type memCartons struct {
	nextID  int64
	cartons map[int64]*packing.Carton

	inserts      int
	failInsertAt int // какая по счёту вставка падает; 0 = никакая
}

func newMemCartons() *memCartons { return &memCartons{cartons: map[int64]*packing.Carton{}} }

func (s *memCartons) Insert(_ context.Context, workOrderID int64, approvalID *int64, qty, actorID int64, reversalOf *int64) (*packing.Carton, error) {
	s.inserts++
	if s.failInsertAt > 0 && s.inserts == s.failInsertAt {
		return nil, fmt.Errorf("cartons: %w", errs.ErrSourceUnavailable)
	}
	s.nextID++
	c := &packing.Carton{
		ID: s.nextID, WorkOrderID: workOrderID, ApprovalID: approvalID,
		Qty: qty, ReversalOf: reversalOf, CreatedBy: actorID, CreatedAt: time.Now(),
	}
	s.cartons[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *memCartons) Get(_ context.Context, id int64) (*packing.Carton, error) {
	c, ok := s.cartons[id]
	if !ok {
		return nil, fmt.Errorf("carton %d: %w", id, errs.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *memCartons) MarkReversed(_ context.Context, id int64) error {
	c, ok := s.cartons[id]
	if !ok {
		return fmt.Errorf("carton %d: %w", id, errs.ErrNotFound)
	}
	if c.Reversed {
		return fmt.Errorf("carton %d already reversed: %w", id, errs.ErrInvalidTransition)
	}
	c.Reversed = true
	return nil
}

func (s *memCartons) UnmarkReversed(_ context.Context, id int64) error {
	c, ok := s.cartons[id]
	if !ok {
		return fmt.Errorf("carton %d: %w", id, errs.ErrNotFound)
	}
	c.Reversed = false
	return nil
}

func setup() (*packing.Service, *memApprovals, *memCartons) {
	approvals := &memApprovals{}
	cartons := newMemCartons()
	return packing.NewService(cartons, approvals), approvals, cartons
}

func TestPack_OneCartonPerPool(t *testing.T) {
	svc, approvals, _ := setup()
	first := approvals.add(1, 300)
	second := approvals.add(1, 500)

	out, err := svc.Pack(context.Background(), 1, 400, 10)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("cartons = %+v", out)
	}
	if *out[0].ApprovalID != first || out[0].Qty != 300 {
		t.Errorf("carton[0] = %+v", out[0])
	}
	if *out[1].ApprovalID != second || out[1].Qty != 100 {
		t.Errorf("carton[1] = %+v", out[1])
	}
	if got := approvals.available(1); got != 400 {
		t.Errorf("available after pack = %d, want 400", got)
	}
}

func TestPack_BeyondApprovedFails(t *testing.T) {
	svc, approvals, cartons := setup()
	approvals.add(1, 100)

	_, err := svc.Pack(context.Background(), 1, 150, 10)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if len(cartons.cartons) != 0 {
		t.Error("failed pack must not insert cartons")
	}
	if got := approvals.available(1); got != 100 {
		t.Errorf("available = %d, pool must be untouched", got)
	}
}

func TestReverse_RestoresPoolAndWritesNegativeRow(t *testing.T) {
	ctx := context.Background()
	svc, approvals, cartons := setup()
	approvals.add(1, 200)

	out, err := svc.Pack(ctx, 1, 200, 10)
	if err != nil {
		t.Fatal(err)
	}
	packed := out[0]

	rev, err := svc.Reverse(ctx, packed.ID, 11)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if rev.Qty != -200 || rev.ReversalOf == nil || *rev.ReversalOf != packed.ID {
		t.Errorf("reversal = %+v", rev)
	}
	if got := approvals.available(1); got != 200 {
		t.Errorf("available = %d, reverse must restore the pool", got)
	}

	orig, _ := cartons.Get(ctx, packed.ID)
	if !orig.Reversed {
		t.Error("original carton not marked reversed")
	}
	// восстановленное количество снова можно упаковать
	if _, err := svc.Pack(ctx, 1, 200, 10); err != nil {
		t.Fatalf("repack after reverse: %v", err)
	}
}

func TestReverse_TwiceFails(t *testing.T) {
	ctx := context.Background()
	svc, approvals, _ := setup()
	approvals.add(1, 100)

	out, _ := svc.Pack(ctx, 1, 100, 10)
	if _, err := svc.Reverse(ctx, out[0].ID, 11); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Reverse(ctx, out[0].ID, 11)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition on double reverse", err)
	}
	if got := approvals.available(1); got != 100 {
		t.Errorf("available = %d, double reverse must not restore twice", got)
	}
}

func TestReverse_ReversalRowItselfRejected(t *testing.T) {
	ctx := context.Background()
	svc, approvals, _ := setup()
	approvals.add(1, 100)

	out, _ := svc.Pack(ctx, 1, 100, 10)
	rev, err := svc.Reverse(ctx, out[0].ID, 11)
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Reverse(ctx, rev.ID, 11)
	if !errors.Is(err, errs.ErrInvalidTransition) {
		t.Fatalf("err = %v, reversal row must not be reversible", err)
	}
}

func TestPack_InsertFailureRestoresUnpackedRemainder(t *testing.T) {
	svc, approvals, cartons := setup()
	approvals.add(1, 100)
	approvals.add(1, 100)
	cartons.failInsertAt = 2

	out, err := svc.Pack(context.Background(), 1, 150, 10)
	if !errors.Is(err, errs.ErrSourceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	// первая коробка легла, её 100 потрачены честно; остальные 50 — назад в пул
	if len(out) != 1 || out[0].Qty != 100 {
		t.Fatalf("cartons = %+v", out)
	}
	if got := approvals.available(1); got != 100 {
		t.Errorf("available = %d, want 100: unpacked remainder must return to pools", got)
	}

	// остаток снова упаковывается без потерь
	cartons.failInsertAt = 0
	if _, err := svc.Pack(context.Background(), 1, 100, 10); err != nil {
		t.Fatalf("repack after failure: %v", err)
	}
}

func TestReverse_RestoreFailureLeavesCartonReversible(t *testing.T) {
	ctx := context.Background()
	svc, approvals, cartons := setup()
	approvals.add(1, 100)

	out, _ := svc.Pack(ctx, 1, 100, 10)
	approvals.failRestore = true

	_, err := svc.Reverse(ctx, out[0].ID, 11)
	if !errors.Is(err, errs.ErrSourceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	c, _ := cartons.Get(ctx, out[0].ID)
	if c.Reversed {
		t.Fatal("failed reverse must unmark the carton")
	}

	approvals.failRestore = false
	if _, err := svc.Reverse(ctx, out[0].ID, 11); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if got := approvals.available(1); got != 100 {
		t.Errorf("available = %d after successful retry", got)
	}
}

func TestReverse_NegativeRowFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	svc, approvals, cartons := setup()
	approvals.add(1, 100)

	out, _ := svc.Pack(ctx, 1, 100, 10)
	cartons.failInsertAt = cartons.inserts + 1 // падает строка-реверс

	_, err := svc.Reverse(ctx, out[0].ID, 11)
	if !errors.Is(err, errs.ErrSourceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	c, _ := cartons.Get(ctx, out[0].ID)
	if c.Reversed {
		t.Fatal("carton must not stay reversed without a reversal row")
	}
	if got := approvals.available(1); got != 0 {
		t.Errorf("available = %d, pool must stay consumed while the carton stands", got)
	}

	cartons.failInsertAt = 0
	rev, err := svc.Reverse(ctx, out[0].ID, 11)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if rev.Qty != -100 {
		t.Errorf("reversal qty = %d", rev.Qty)
	}
}

func TestReverse_UnknownCarton(t *testing.T) {
	svc, _, _ := setup()
	_, err := svc.Reverse(context.Background(), 404, 11)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
