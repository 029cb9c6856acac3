package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/resolver"
	"github.com/izzyftw1/rvi-sub004/internal/testsupport"
)

func TestResolve_FullPipeline(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(1, "WO-001", 1000, true)
	// две закрытые партии, брак записан по-старому в партии
	src.AddBatch(testsupport.BatchRow{WorkOrderID: 1, Produced: 600, Rejected: 50})
	src.AddBatch(testsupport.BatchRow{WorkOrderID: 1, Produced: 400})
	// канонический пул ОТК
	src.Approvals[1] = 900
	src.Packed[1] = 500
	src.Dispatched[1] = 300

	sq, err := resolver.New(src, 0).Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := map[string]int64{
		"produced":              1000,
		"qc_approved":           900,
		"qc_rejected":           50,
		"qc_pending":            50,
		"packed":                500,
		"dispatched":            300,
		"remaining_to_produce":  0,
		"remaining_to_pack":     400,
		"remaining_to_dispatch": 200,
	}
	got := map[string]int64{
		"produced":              sq.Produced,
		"qc_approved":           sq.QCApproved,
		"qc_rejected":           sq.QCRejected,
		"qc_pending":            sq.QCPending,
		"packed":                sq.Packed,
		"dispatched":            sq.Dispatched,
		"remaining_to_produce":  sq.RemainingToProduce,
		"remaining_to_pack":     sq.RemainingToPack,
		"remaining_to_dispatch": sq.RemainingToDispatch,
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("%s = %d, want %d", k, got[k], w)
		}
	}
	if sq.IsComplete {
		t.Error("IsComplete = true, want false")
	}
}

func TestResolve_CanonicalSupersedesLegacy(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(7, "WO-007", 100, true)
	// legacy-поле заполнено, но канонические записи есть — legacy
	// игнорируется целиком, без смешивания
	src.AddBatch(testsupport.BatchRow{WorkOrderID: 7, Produced: 100, LegacyApproved: 80})
	src.Approvals[7] = 60

	sq, err := resolver.New(src, 0).Resolve(context.Background(), 7)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sq.QCApproved != 60 {
		t.Errorf("QCApproved = %d, want 60 (canonical only)", sq.QCApproved)
	}
	if sq.QCSource != "inspection_approval_batches" {
		t.Errorf("QCSource = %q", sq.QCSource)
	}
}

func TestResolve_LegacyFallback(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(8, "WO-008", 100, true)
	src.AddBatch(testsupport.BatchRow{WorkOrderID: 8, Produced: 100, LegacyApproved: 80})

	sq, err := resolver.New(src, 0).Resolve(context.Background(), 8)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sq.QCApproved != 80 {
		t.Errorf("QCApproved = %d, want 80 (legacy)", sq.QCApproved)
	}
	if sq.QCSource != "production_batches.qc_approved_qty" {
		t.Errorf("QCSource = %q", sq.QCSource)
	}
}

func TestResolve_NotFound(t *testing.T) {
	src := testsupport.NewMemSource()
	_, err := resolver.New(src, 0).Resolve(context.Background(), 42)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve_NoActivityIsZeroSnapshot(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(3, "WO-003", 500, false)

	sq, err := resolver.New(src, 0).Resolve(context.Background(), 3)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sq.Produced != 0 || sq.QCPending != 0 || sq.RemainingToProduce != 500 {
		t.Errorf("unexpected snapshot: %+v", sq)
	}
	if sq.IsComplete {
		t.Error("empty order must not be complete")
	}
}

func TestResolve_DerivedNeverNegative(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(4, "WO-004", 10, true)
	// рассинхрон: принято и упаковано больше, чем выработано
	src.AddBatch(testsupport.BatchRow{WorkOrderID: 4, Produced: 5, Rejected: 3})
	src.Approvals[4] = 9
	src.Packed[4] = 20
	src.Dispatched[4] = 30

	sq, err := resolver.New(src, 0).Resolve(context.Background(), 4)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sq.QCPending < 0 || sq.RemainingToProduce < 0 || sq.RemainingToPack < 0 || sq.RemainingToDispatch < 0 {
		t.Errorf("negative derived quantity: %+v", sq)
	}
	for _, p := range []float64{sq.PctProduction, sq.PctQC, sq.PctPacking, sq.PctDispatch} {
		if p < 0 || p > 100 {
			t.Errorf("pct out of range: %v", p)
		}
	}
	if !sq.IsComplete {
		t.Error("dispatched >= ordered, want complete")
	}
}

func TestResolveBatch_ChunkedQueries(t *testing.T) {
	src := testsupport.NewMemSource()
	for i := int64(1); i <= 5; i++ {
		src.AddOrder(i, "WO", 10, true)
	}

	m, err := resolver.New(src, 2).ResolveBatch(context.Background(), []int64{1, 2, 3, 4, 5, 5})
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	if len(m) != 5 {
		t.Fatalf("len = %d, want 5", len(m))
	}
	// 5 уникальных ключей чанками по 2 — ровно 3 обращения на таблицу
	for table, n := range src.Calls {
		if n != 3 {
			t.Errorf("%s queried %d times, want 3", table, n)
		}
	}
}

func TestResolveBatch_SkipsMissingOrders(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(1, "WO-001", 10, true)

	m, err := resolver.New(src, 0).ResolveBatch(context.Background(), []int64{1, 99})
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	if _, ok := m[1]; !ok {
		t.Error("existing order missing from result")
	}
	if _, ok := m[99]; ok {
		t.Error("missing order must not get a snapshot")
	}
}

func TestResolve_ZeroOrderedNeverComplete(t *testing.T) {
	src := testsupport.NewMemSource()
	src.AddOrder(6, "WO-006", 1, true)
	src.Dispatched[6] = 0

	sq, err := resolver.New(src, 0).Resolve(context.Background(), 6)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sq.IsComplete {
		t.Error("nothing dispatched, must not be complete")
	}
	if sq.PctQC != 0 {
		t.Errorf("pctQC with zero produced = %v, want 0", sq.PctQC)
	}
}
