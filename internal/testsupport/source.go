package testsupport

import (
	"context"
	"sync"

	"github.com/izzyftw1/rvi-sub004/internal/domain/orders"
	"github.com/izzyftw1/rvi-sub004/internal/resolver"
)

// BatchRow — запись production_batches для источника.
type BatchRow struct {
	WorkOrderID    int64
	Produced       int64
	LegacyApproved int64
	Rejected       int64
}

// MemSource — источник агрегатов в памяти (resolver.Source).
// Считает обращения по таблицам — на этом держится тест чанкования.
type MemSource struct {
	mu sync.Mutex

	Orders     map[int64]orders.WorkOrder
	Batches    []BatchRow
	Approvals  map[int64]int64 // work order -> Σ approved
	Packed     map[int64]int64
	Dispatched map[int64]int64

	Calls map[string]int
	Fail  error // если задана, любое чтение падает этой ошибкой
}

func NewMemSource() *MemSource {
	return &MemSource{
		Orders:     map[int64]orders.WorkOrder{},
		Approvals:  map[int64]int64{},
		Packed:     map[int64]int64{},
		Dispatched: map[int64]int64{},
		Calls:      map[string]int{},
	}
}

var _ resolver.Source = (*MemSource)(nil)

func (s *MemSource) AddOrder(id int64, code string, orderedQty int64, released bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := orders.StatusDraft
	if released {
		st = orders.StatusReleased
	}
	s.Orders[id] = orders.WorkOrder{ID: id, Code: code, OrderedQty: orderedQty, Status: st}
}

func (s *MemSource) AddBatch(row BatchRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batches = append(s.Batches, row)
}

func (s *MemSource) SetFail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Fail = err
}

func (s *MemSource) enter(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls[table]++
	return s.Fail
}

func (s *MemSource) WorkOrders(_ context.Context, ids []int64) (map[int64]orders.WorkOrder, error) {
	if err := s.enter("work_orders"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]orders.WorkOrder{}
	for _, id := range ids {
		if wo, ok := s.Orders[id]; ok {
			out[id] = wo
		}
	}
	return out, nil
}

func (s *MemSource) ProductionSums(_ context.Context, ids []int64) (map[int64]resolver.ProductionSums, error) {
	if err := s.enter("production_batches"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[int64]resolver.ProductionSums{}
	for _, b := range s.Batches {
		if !want[b.WorkOrderID] {
			continue
		}
		p := out[b.WorkOrderID]
		p.Produced += b.Produced
		p.LegacyApproved += b.LegacyApproved
		p.Rejected += b.Rejected
		out[b.WorkOrderID] = p
	}
	return out, nil
}

func (s *MemSource) ApprovedSums(_ context.Context, ids []int64) (map[int64]int64, error) {
	return s.sums("inspection_approval_batches", s.Approvals, ids)
}

func (s *MemSource) PackedSums(_ context.Context, ids []int64) (map[int64]int64, error) {
	return s.sums("cartons", s.Packed, ids)
}

func (s *MemSource) DispatchedSums(_ context.Context, ids []int64) (map[int64]int64, error) {
	return s.sums("dispatch_records", s.Dispatched, ids)
}

func (s *MemSource) sums(table string, m map[int64]int64, ids []int64) (map[int64]int64, error) {
	if err := s.enter(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[int64]int64{}
	for _, id := range ids {
		if v, ok := m[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}
