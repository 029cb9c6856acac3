package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/izzyftw1/rvi-sub004/internal/coalescer"
	"github.com/izzyftw1/rvi-sub004/internal/domain/dispatch"
	"github.com/izzyftw1/rvi-sub004/internal/domain/gates"
	"github.com/izzyftw1/rvi-sub004/internal/domain/inspection"
	"github.com/izzyftw1/rvi-sub004/internal/domain/orders"
	"github.com/izzyftw1/rvi-sub004/internal/domain/packing"
	"github.com/izzyftw1/rvi-sub004/internal/domain/production"
	"github.com/izzyftw1/rvi-sub004/internal/resolver"
)

// Orders — операции над заказами, нужные движку.
type Orders interface {
	Create(ctx context.Context, code string, orderedQty int64) (*orders.WorkOrder, error)
	Get(ctx context.Context, id int64) (*orders.WorkOrder, error)
	Release(ctx context.Context, id int64) (*orders.WorkOrder, error)
}

type Dispatcher interface {
	Record(ctx context.Context, workOrderID, qty, actorID int64) (*dispatch.Record, error)
}

// BatchLister — чтение истории партий заказа (мимо Manager: без замков).
type BatchLister interface {
	ListByWorkOrder(ctx context.Context, workOrderID int64) ([]production.Batch, error)
}

// Engine — фасад над резолвером, коалессером и доменными сервисами.
// Каждая удачная мутация шлёт уведомление об изменении в коалессер.
type Engine struct {
	orders     Orders
	gates      *gates.Machine
	batches    *production.Manager
	batchList  BatchLister
	approvals  inspection.Store
	packer     *packing.Service
	dispatcher Dispatcher
	resolver   *resolver.Resolver
	coal       *coalescer.Coalescer
	log        *slog.Logger
	timeout    time.Duration
}

type Deps struct {
	Orders     Orders
	Gates      *gates.Machine
	Batches    *production.Manager
	BatchList  BatchLister
	Approvals  inspection.Store
	Packer     *packing.Service
	Dispatcher Dispatcher
	Resolver   *resolver.Resolver
	Coalescer  *coalescer.Coalescer
	Log        *slog.Logger
	Timeout    time.Duration
}

func New(d Deps) *Engine {
	return &Engine{
		orders:     d.Orders,
		gates:      d.Gates,
		batches:    d.Batches,
		batchList:  d.BatchList,
		approvals:  d.Approvals,
		packer:     d.Packer,
		dispatcher: d.Dispatcher,
		resolver:   d.Resolver,
		coal:       d.Coalescer,
		log:        d.Log,
		timeout:    d.Timeout,
	}
}

func (e *Engine) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, e.timeout)
}

func (e *Engine) notify(workOrderID int64, table string) {
	e.coal.Notify(workOrderID, table)
}

/* Чтение */

func (e *Engine) GetStageQuantities(ctx context.Context, workOrderID int64) (*coalescer.Snapshot, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	return e.coal.Snapshot(ctx, workOrderID)
}

// GetStageQuantitiesBatch — сводки пачкой, мимо кэша коалессера:
// батчевый расчёт и так ограничен числом запросов, не заказов.
func (e *Engine) GetStageQuantitiesBatch(ctx context.Context, ids []int64) (map[int64]resolver.StageQuantities, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	return e.resolver.ResolveBatch(ctx, ids)
}

func (e *Engine) GetGateState(ctx context.Context, workOrderID int64) (*gates.Pair, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	return e.gates.State(ctx, workOrderID)
}

func (e *Engine) ListBatches(ctx context.Context, workOrderID int64) ([]production.Batch, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	if _, err := e.orders.Get(ctx, workOrderID); err != nil {
		return nil, err
	}
	return e.batchList.ListByWorkOrder(ctx, workOrderID)
}

func (e *Engine) ForceRefresh(ctx context.Context, workOrderID int64) (*coalescer.Snapshot, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	return e.coal.ForceRefresh(ctx, workOrderID)
}

func (e *Engine) Subscribe(workOrderID int64, cb coalescer.Callback) uuid.UUID {
	return e.coal.Subscribe(workOrderID, cb)
}

func (e *Engine) Unsubscribe(workOrderID int64, token uuid.UUID) {
	e.coal.Unsubscribe(workOrderID, token)
}

/* Мутации */

func (e *Engine) CreateOrder(ctx context.Context, code string, orderedQty int64) (*orders.WorkOrder, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	return e.orders.Create(ctx, code, orderedQty)
}

func (e *Engine) ReleaseOrder(ctx context.Context, id int64) (*orders.WorkOrder, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	wo, err := e.orders.Release(ctx, id)
	if err != nil {
		return nil, err
	}
	e.notify(wo.ID, "work_orders")
	return wo, nil
}

func (e *Engine) UpdateGate(ctx context.Context, workOrderID int64, gt gates.Type, to gates.Status, actorID int64, remarks string) (*gates.Gate, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	g, err := e.gates.Update(ctx, workOrderID, gt, to, actorID, remarks)
	if err != nil {
		return nil, err
	}
	e.notify(workOrderID, "quality_gates")
	return g, nil
}

func (e *Engine) LogProduction(ctx context.Context, workOrderID int64, machine string, qty, targetQty, actorID int64) (*production.Batch, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	b, err := e.batches.LogProduction(ctx, workOrderID, machine, qty, targetQty, actorID)
	if err != nil {
		return nil, err
	}
	e.notify(workOrderID, "production_batches")
	return b, nil
}

func (e *Engine) CompleteBatch(ctx context.Context, batchID int64, reason production.CompleteReason, actorID int64, note string) (*production.Batch, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	b, err := e.batches.Complete(ctx, batchID, reason, actorID, note)
	if err != nil {
		return nil, err
	}
	e.notify(b.WorkOrderID, "production_batches")
	return b, nil
}

func (e *Engine) ReopenBatch(ctx context.Context, batchID, actorID int64) (*production.Batch, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	b, err := e.batches.Reopen(ctx, batchID, actorID)
	if err != nil {
		return nil, err
	}
	e.notify(b.WorkOrderID, "production_batches")
	return b, nil
}

func (e *Engine) RecordApproval(ctx context.Context, workOrderID int64, batchID *int64, approvedQty, actorID int64) (*inspection.ApprovalBatch, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	a, err := e.approvals.Record(ctx, workOrderID, batchID, approvedQty, actorID)
	if err != nil {
		return nil, err
	}
	e.notify(workOrderID, "inspection_approval_batches")
	return a, nil
}

func (e *Engine) Pack(ctx context.Context, workOrderID, qty, actorID int64) ([]packing.Carton, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	cs, err := e.packer.Pack(ctx, workOrderID, qty, actorID)
	if err != nil {
		return nil, err
	}
	e.notify(workOrderID, "cartons")
	return cs, nil
}

func (e *Engine) ReverseCarton(ctx context.Context, cartonID, actorID int64) (*packing.Carton, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	c, err := e.packer.Reverse(ctx, cartonID, actorID)
	if err != nil {
		return nil, err
	}
	e.notify(c.WorkOrderID, "cartons")
	return c, nil
}

func (e *Engine) RecordDispatch(ctx context.Context, workOrderID, qty, actorID int64) (*dispatch.Record, error) {
	ctx, cancel := e.ctx(ctx)
	defer cancel()
	d, err := e.dispatcher.Record(ctx, workOrderID, qty, actorID)
	if err != nil {
		return nil, err
	}
	e.notify(workOrderID, "dispatch_records")
	return d, nil
}
