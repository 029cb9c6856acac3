package resolver

import (
	"context"
	"fmt"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/domain/orders"
)

// StageQuantities — сводка количеств заказа по стадиям на момент расчёта.
type StageQuantities struct {
	WorkOrderID int64 `json:"work_order_id"`

	Ordered    int64 `json:"ordered"`
	Produced   int64 `json:"produced"`
	QCApproved int64 `json:"qc_approved"`
	QCRejected int64 `json:"qc_rejected"`
	QCPending  int64 `json:"qc_pending"`
	Packed     int64 `json:"packed"`
	Dispatched int64 `json:"dispatched"`

	RemainingToProduce  int64 `json:"remaining_to_produce"`
	RemainingToPack     int64 `json:"remaining_to_pack"`
	RemainingToDispatch int64 `json:"remaining_to_dispatch"`

	PctProduction float64 `json:"pct_production"`
	PctQC         float64 `json:"pct_qc"`
	PctPacking    float64 `json:"pct_packing"`
	PctDispatch   float64 `json:"pct_dispatch"`

	// какой источник выиграл в цепочке qcApproved (для аудита)
	QCSource string `json:"qc_source,omitempty"`

	IsComplete bool `json:"is_complete"`
}

// Source — чтение агрегатов из хранилища. Все методы принимают список
// ключей: стоимость расчёта линейна по числу записей, не по числу заказов.
type Source interface {
	WorkOrders(ctx context.Context, ids []int64) (map[int64]orders.WorkOrder, error)
	ProductionSums(ctx context.Context, ids []int64) (map[int64]ProductionSums, error)
	ApprovedSums(ctx context.Context, ids []int64) (map[int64]int64, error)
	PackedSums(ctx context.Context, ids []int64) (map[int64]int64, error)
	DispatchedSums(ctx context.Context, ids []int64) (map[int64]int64, error)
}

type Resolver struct {
	src   Source
	chunk int
}

func New(src Source, chunkSize int) *Resolver {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	return &Resolver{src: src, chunk: chunkSize}
}

// Resolve — сводка одного заказа. Отсутствующий заказ — ErrNotFound,
// а не нулевая сводка: "заказа нет" и "по заказу ещё тихо" различимы.
func (r *Resolver) Resolve(ctx context.Context, workOrderID int64) (*StageQuantities, error) {
	m, err := r.ResolveBatch(ctx, []int64{workOrderID})
	if err != nil {
		return nil, err
	}
	sq, ok := m[workOrderID]
	if !ok {
		return nil, fmt.Errorf("work order %d: %w", workOrderID, errs.ErrNotFound)
	}
	return &sq, nil
}

// ResolveBatch считает сводки пачкой; список ключей режется на чанки,
// на чанк — по одному агрегатному запросу на таблицу.
func (r *Resolver) ResolveBatch(ctx context.Context, ids []int64) (map[int64]StageQuantities, error) {
	out := make(map[int64]StageQuantities, len(ids))
	seen := make(map[int64]bool, len(ids))
	var uniq []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			uniq = append(uniq, id)
		}
	}

	for start := 0; start < len(uniq); start += r.chunk {
		end := start + r.chunk
		if end > len(uniq) {
			end = len(uniq)
		}
		if err := r.resolveChunk(ctx, uniq[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Resolver) resolveChunk(ctx context.Context, ids []int64, out map[int64]StageQuantities) error {
	wos, err := r.src.WorkOrders(ctx, ids)
	if err != nil {
		return err
	}
	prod, err := r.src.ProductionSums(ctx, ids)
	if err != nil {
		return err
	}
	approved, err := r.src.ApprovedSums(ctx, ids)
	if err != nil {
		return err
	}
	packed, err := r.src.PackedSums(ctx, ids)
	if err != nil {
		return err
	}
	dispatched, err := r.src.DispatchedSums(ctx, ids)
	if err != nil {
		return err
	}

	for _, id := range ids {
		wo, ok := wos[id]
		if !ok {
			continue // нет заказа — нет сводки
		}
		agg := stageAgg{
			prod:              prod[id],
			canonicalApproved: approved[id],
			packed:            packed[id],
			dispatched:        dispatched[id],
		}
		out[id] = compute(wo, agg)
	}
	return nil
}

func compute(wo orders.WorkOrder, a stageAgg) StageQuantities {
	qcApproved, qcSource := resolveChain(qcApprovedChain, a)
	produced := a.prod.Produced
	rejected := a.prod.Rejected

	sq := StageQuantities{
		WorkOrderID: wo.ID,
		Ordered:     wo.OrderedQty,
		Produced:    produced,
		QCApproved:  qcApproved,
		QCRejected:  rejected,
		QCPending:   clampNonNeg(produced - qcApproved - rejected),
		Packed:      a.packed,
		Dispatched:  a.dispatched,
		QCSource:    qcSource,
	}
	sq.RemainingToProduce = clampNonNeg(wo.OrderedQty - produced)
	sq.RemainingToPack = clampNonNeg(qcApproved - a.packed)
	sq.RemainingToDispatch = clampNonNeg(a.packed - a.dispatched)

	sq.PctProduction = pct(produced, wo.OrderedQty)
	sq.PctQC = pct(qcApproved, produced)
	sq.PctPacking = pct(a.packed, qcApproved)
	sq.PctDispatch = pct(a.dispatched, wo.OrderedQty)

	sq.IsComplete = wo.OrderedQty > 0 && a.dispatched >= wo.OrderedQty
	return sq
}

func clampNonNeg(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// pct — доля в процентах, [0,100]; нулевой знаменатель даёт 0.
func pct(n, d int64) float64 {
	if d <= 0 {
		return 0
	}
	p := float64(n) / float64(d) * 100
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
