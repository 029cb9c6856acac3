package gates

import (
	"context"
	"fmt"
	"time"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/keymutex"
)

// Store — персистентное состояние гейтов. Set применяется одной
// атомарной записью (CAS по текущему статусу).
type Store interface {
	GetPair(ctx context.Context, workOrderID int64) (*Pair, error)
	Set(ctx context.Context, workOrderID int64, gt Type, from []Status, to Status, actorID int64, remarks string, at time.Time) (*Gate, error)
}

// Capabilities — внешний каталог прав, сюда заходим только
// булевой проверкой (никаких имён ролей в логике гейтов).
type Capabilities interface {
	CanBypassGate(ctx context.Context, actorID int64) (bool, error)
}

type Machine struct {
	store Store
	caps  Capabilities
	locks *keymutex.Set
	now   func() time.Time
}

func NewMachine(store Store, caps Capabilities) *Machine {
	return &Machine{store: store, caps: caps, locks: keymutex.New(), now: time.Now}
}

// переходы разрешены только из pending/failed
var fromStatuses = []Status{StatusPending, StatusFailed}

// Update переводит гейт заказа в новый статус.
// Порядок строгий: first_piece трогать нельзя, пока material не Complete.
// waived требует права обхода (внешняя проверка).
func (m *Machine) Update(ctx context.Context, workOrderID int64, gt Type, to Status, actorID int64, remarks string) (*Gate, error) {
	if to == StatusPending {
		return nil, fmt.Errorf("cannot reset gate to pending: %w", errs.ErrInvalidTransition)
	}

	if to == StatusWaived {
		ok, err := m.caps.CanBypassGate(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("capability check: %w", errs.ErrSourceUnavailable)
		}
		if !ok {
			return nil, fmt.Errorf("actor %d cannot waive gates: %w", actorID, errs.ErrPermissionDenied)
		}
	}

	m.locks.Lock(workOrderID)
	defer m.locks.Unlock(workOrderID)

	pair, err := m.store.GetPair(ctx, workOrderID)
	if err != nil {
		return nil, err
	}

	if gt == FirstPiece && !pair.Material.Status.Complete() {
		return nil, fmt.Errorf("material gate is %s: %w", pair.Material.Status, errs.ErrGateSequence)
	}

	cur := pair.Material
	if gt == FirstPiece {
		cur = pair.FirstPiece
	}
	if cur.Status.Complete() {
		return nil, fmt.Errorf("gate %s already %s: %w", gt, cur.Status, errs.ErrInvalidTransition)
	}

	return m.store.Set(ctx, workOrderID, gt, fromStatuses, to, actorID, remarks, m.now())
}

func (m *Machine) State(ctx context.Context, workOrderID int64) (*Pair, error) {
	return m.store.GetPair(ctx, workOrderID)
}

// AllComplete — оба гейта пройдены; используется как замок на запись выработки.
func (m *Machine) AllComplete(ctx context.Context, workOrderID int64) (bool, error) {
	pair, err := m.store.GetPair(ctx, workOrderID)
	if err != nil {
		return false, err
	}
	return pair.AllComplete(), nil
}
