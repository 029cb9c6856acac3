package production

import (
	"context"
	"fmt"
	"time"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/domain/orders"
	"github.com/izzyftw1/rvi-sub004/internal/keymutex"
)

// Store — персистентные операции над партиями. Каждая по отдельности
// атомарна; порядок между ними держит Manager через замок по заказу.
type Store interface {
	GetBatch(ctx context.Context, id int64) (*Batch, error)
	// FindOpenBatch возвращает (nil, nil), когда открытой партии на станке нет.
	FindOpenBatch(ctx context.Context, workOrderID int64, machine string) (*Batch, error)
	NextSeq(ctx context.Context, workOrderID int64) (int, error)
	CreateBatch(ctx context.Context, workOrderID int64, machine string, seq int, targetQty int64) (*Batch, error)
	AddProduced(ctx context.Context, batchID, qty, actorID int64) (*Batch, error)
	Complete(ctx context.Context, batchID int64, reason CompleteReason, actorID int64, note string, completedQty int64, at time.Time) (*Batch, error)
	Reopen(ctx context.Context, batchID int64) (*Batch, error)
}

type OrderSource interface {
	Get(ctx context.Context, id int64) (*orders.WorkOrder, error)
}

type GateCheck interface {
	AllComplete(ctx context.Context, workOrderID int64) (bool, error)
}

// Manager — жизненный цикл партий: открытие (в т.ч. неявный перекат
// на следующий sequence), закрытие, переоткрытие.
type Manager struct {
	store  Store
	orders OrderSource
	gates  GateCheck
	locks  *keymutex.Set
	now    func() time.Time
}

func NewManager(store Store, ord OrderSource, gates GateCheck) *Manager {
	return &Manager{store: store, orders: ord, gates: gates, locks: keymutex.New(), now: time.Now}
}

// LogProduction фиксирует выработку по заказу/станку.
// Заказ должен быть released и оба гейта Complete — иначе ErrGateBlocked.
// Если последняя партия станка закрыта, открывается новая со следующим seq.
func (m *Manager) LogProduction(ctx context.Context, workOrderID int64, machine string, qty, targetQty, actorID int64) (*Batch, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("qty must be > 0: %w", errs.ErrInvalidTransition)
	}

	wo, err := m.orders.Get(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if !wo.Released() {
		return nil, fmt.Errorf("work order %s is not released: %w", wo.Code, errs.ErrGateBlocked)
	}
	ok, err := m.gates.AllComplete(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("work order %s has incomplete gates: %w", wo.Code, errs.ErrGateBlocked)
	}

	m.locks.Lock(workOrderID)
	defer m.locks.Unlock(workOrderID)

	b, err := m.store.FindOpenBatch(ctx, workOrderID, machine)
	if err != nil {
		return nil, err
	}
	if b == nil {
		seq, err := m.store.NextSeq(ctx, workOrderID)
		if err != nil {
			return nil, err
		}
		if b, err = m.store.CreateBatch(ctx, workOrderID, machine, seq, targetQty); err != nil {
			return nil, err
		}
	}

	b, err = m.store.AddProduced(ctx, b.ID, qty, actorID)
	if err != nil {
		return nil, err
	}

	// автозакрытие по достижению цели партии
	if b.TargetQty > 0 && b.ProducedQty >= b.TargetQty {
		return m.store.Complete(ctx, b.ID, ReasonTargetReached, actorID, "", b.ProducedQty, m.now())
	}
	return b, nil
}

// Complete закрывает партию вручную (или по quality-gated причине).
// Партию с нулевой выработкой закрыть нельзя.
func (m *Manager) Complete(ctx context.Context, batchID int64, reason CompleteReason, actorID int64, note string) (*Batch, error) {
	if _, ok := ParseReason(string(reason)); !ok {
		return nil, fmt.Errorf("unknown complete reason %q: %w", reason, errs.ErrInvalidTransition)
	}
	b, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	m.locks.Lock(b.WorkOrderID)
	defer m.locks.Unlock(b.WorkOrderID)

	// перечитываем под замком
	if b, err = m.store.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	if !b.Open() {
		return nil, fmt.Errorf("batch %d already closed: %w", batchID, errs.ErrInvalidTransition)
	}
	if b.ProducedQty == 0 {
		return nil, fmt.Errorf("batch %d has no production: %w", batchID, errs.ErrInvalidTransition)
	}
	return m.store.Complete(ctx, batchID, reason, actorID, note, b.ProducedQty, m.now())
}

// Reopen снимает закрытие и возвращает партию в работу.
// Единственный переход, который убирает флаг isComplete.
func (m *Manager) Reopen(ctx context.Context, batchID, actorID int64) (*Batch, error) {
	b, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	m.locks.Lock(b.WorkOrderID)
	defer m.locks.Unlock(b.WorkOrderID)

	if b, err = m.store.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	if b.Open() {
		return nil, fmt.Errorf("batch %d is not closed: %w", batchID, errs.ErrInvalidTransition)
	}
	return m.store.Reopen(ctx, batchID)
}
