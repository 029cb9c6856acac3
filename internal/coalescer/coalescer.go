package coalescer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/infra/metrics"
	"github.com/izzyftw1/rvi-sub004/internal/resolver"
)

// Snapshot — последняя посчитанная сводка плюс момент расчёта.
// Stale выставляется, когда свежий пересчёт не удался и отдаётся
// последнее известное хорошее значение.
type Snapshot struct {
	Quantities resolver.StageQuantities `json:"quantities"`
	ComputedAt time.Time                `json:"computed_at"`
	Stale      bool                     `json:"stale,omitempty"`
}

type Callback func(Snapshot)

type Recompute func(ctx context.Context, workOrderID int64) (*resolver.StageQuantities, error)

type Options struct {
	ThrottleWindow time.Duration // минимальный интервал между пересчётами ключа
	CacheValidity  time.Duration // сколько результату верим без пересчёта
	RetryBase      time.Duration
	RetryMax       int
	SourceTimeout  time.Duration
}

// Coalescer сводит поток уведомлений об изменениях к ограниченному
// темпу пересчётов: не чаще одного на ключ за окно, но ни одно
// изменение старше кэша не теряется молча.
type Coalescer struct {
	mu sync.Mutex
	// записи по ключу живут до Close: throttle-состояние терять нельзя,
	// множество ключей ограничено заказами, менявшимися за жизнь процесса
	keys map[int64]*keyState
	subs map[int64]map[uuid.UUID]Callback

	opt       Options
	clock     Clock
	recompute Recompute
	log       *slog.Logger
	met       *metrics.Metrics

	closed bool
}

type keyState struct {
	runMu sync.Mutex // не более одного пересчёта ключа одновременно

	lastRecomputeAt time.Time
	cacheValidUntil time.Time
	timer           Timer // единственный отложенный пересчёт; nil — нет
	running         bool
	rerun           bool // во время пересчёта прилетело ещё изменение
	retries         int
	last            *Snapshot
}

func New(opt Options, clock Clock, recompute Recompute, log *slog.Logger, met *metrics.Metrics) *Coalescer {
	return &Coalescer{
		keys:      map[int64]*keyState{},
		subs:      map[int64]map[uuid.UUID]Callback{},
		opt:       opt,
		clock:     clock,
		recompute: recompute,
		log:       log,
		met:       met,
	}
}

func (c *Coalescer) key(id int64) *keyState {
	ks, ok := c.keys[id]
	if !ok {
		ks = &keyState{}
		c.keys[id] = ks
	}
	return ks
}

// Notify — изменение по заказу в таблице table.
// Свежий кэш — дроп; окно прошло — немедленный пересчёт; иначе один
// таймер на остаток окна, дальнейшие уведомления сливаются в него.
func (c *Coalescer) Notify(workOrderID int64, table string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ks := c.key(workOrderID)
	now := c.clock.Now()

	if ks.last != nil && now.Before(ks.cacheValidUntil) {
		c.met.Dropped.Inc()
		c.mu.Unlock()
		return
	}
	if ks.running {
		ks.rerun = true
		c.mu.Unlock()
		return
	}
	if ks.timer != nil {
		// уже запланирован — новые уведомления таймер не трогают
		c.mu.Unlock()
		return
	}

	elapsed := now.Sub(ks.lastRecomputeAt)
	if ks.lastRecomputeAt.IsZero() || elapsed >= c.opt.ThrottleWindow {
		ks.running = true
		c.mu.Unlock()
		c.runLoop(workOrderID, "change")
		return
	}

	delay := c.opt.ThrottleWindow - elapsed
	ks.timer = c.clock.AfterFunc(delay, func() { c.onTimer(workOrderID, "timer") })
	c.met.TimersScheduled.Inc()
	c.mu.Unlock()
	c.log.Debug("recompute scheduled", "work_order_id", workOrderID, "table", table, "delay", delay)
}

func (c *Coalescer) onTimer(workOrderID int64, trigger string) {
	c.mu.Lock()
	ks := c.key(workOrderID)
	ks.timer = nil
	if c.closed || ks.running {
		ks.rerun = ks.running
		c.mu.Unlock()
		return
	}
	ks.running = true
	c.mu.Unlock()
	c.runLoop(workOrderID, trigger)
}

// runLoop выполняет пересчёт; вход строго с уже взятым ks.running.
func (c *Coalescer) runLoop(workOrderID int64, trigger string) {
	ks := c.stateOf(workOrderID)

	snap, err := c.computeOnce(context.Background(), workOrderID, trigger)

	c.mu.Lock()
	ks.running = false
	if err != nil {
		c.met.SourceErrors.Inc()
		c.log.Warn("recompute failed", "work_order_id", workOrderID, "trigger", trigger, "err", err)
		if errs.Retryable(err) && ks.retries < c.opt.RetryMax && ks.timer == nil && !c.closed {
			ks.retries++
			delay := c.opt.RetryBase << (ks.retries - 1)
			ks.timer = c.clock.AfterFunc(delay, func() { c.onTimer(workOrderID, "retry") })
		}
		c.mu.Unlock()
		return
	}

	cbs := c.finishLocked(ks, workOrderID, snap)

	// изменение, пришедшее во время пересчёта, добирается отложенно,
	// с соблюдением окна
	if ks.rerun {
		ks.rerun = false
		if ks.timer == nil && !c.closed {
			ks.timer = c.clock.AfterFunc(c.opt.ThrottleWindow, func() { c.onTimer(workOrderID, "timer") })
			c.met.TimersScheduled.Inc()
		}
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(*snap)
	}
}

// finishLocked обновляет бухгалтерию ключа после удачного пересчёта
// и отдаёт подписчиков для уведомления. Вызывается под c.mu.
// Результат старше уже применённого (ForceRefresh успел раньше)
// отбрасывается молча.
func (c *Coalescer) finishLocked(ks *keyState, workOrderID int64, snap *Snapshot) []Callback {
	if ks.last != nil && snap.ComputedAt.Before(ks.lastRecomputeAt) {
		return nil
	}
	ks.retries = 0
	ks.lastRecomputeAt = snap.ComputedAt
	ks.cacheValidUntil = snap.ComputedAt.Add(c.opt.CacheValidity)
	ks.last = snap

	var cbs []Callback
	for _, cb := range c.subs[workOrderID] {
		cbs = append(cbs, cb)
	}
	return cbs
}

// computeOnce — один пересчёт под runMu ключа (single-flight).
func (c *Coalescer) computeOnce(ctx context.Context, workOrderID int64, trigger string) (*Snapshot, error) {
	ks := c.stateOf(workOrderID)
	ks.runMu.Lock()
	defer ks.runMu.Unlock()

	if c.opt.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opt.SourceTimeout)
		defer cancel()
	}

	start := time.Now()
	sq, err := c.recompute(ctx, workOrderID)
	c.met.RecomputeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	c.met.Recomputes.WithLabelValues(trigger).Inc()
	return &Snapshot{Quantities: *sq, ComputedAt: c.clock.Now()}, nil
}

func (c *Coalescer) stateOf(workOrderID int64) *keyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key(workOrderID)
}

// ForceRefresh пересчитывает немедленно, минуя проверку свежести кэша.
// Отложенный таймер при успехе снимается: пересчёт уже покрыл
// последнее изменение.
func (c *Coalescer) ForceRefresh(ctx context.Context, workOrderID int64) (*Snapshot, error) {
	snap, err := c.computeOnce(ctx, workOrderID, "force")
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	ks := c.key(workOrderID)
	if ks.timer != nil {
		ks.timer.Stop()
		ks.timer = nil
	}
	cbs := c.finishLocked(ks, workOrderID, snap)
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(*snap)
	}
	return snap, nil
}

// Snapshot отдаёт сводку заказа: свежий кэш как есть; иначе пересчёт,
// а при недоступном источнике — последнее хорошее значение с пометкой
// Stale. Отсутствующий заказ — ошибка, не нулевая сводка.
func (c *Coalescer) Snapshot(ctx context.Context, workOrderID int64) (*Snapshot, error) {
	c.mu.Lock()
	ks := c.key(workOrderID)
	if ks.last != nil && c.clock.Now().Before(ks.cacheValidUntil) {
		snap := *ks.last
		c.mu.Unlock()
		return &snap, nil
	}
	c.mu.Unlock()

	snap, err := c.computeOnce(ctx, workOrderID, "read")
	if err == nil {
		c.mu.Lock()
		cbs := c.finishLocked(ks, workOrderID, snap)
		c.mu.Unlock()
		for _, cb := range cbs {
			cb(*snap)
		}
		return snap, nil
	}
	if errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ks.last != nil {
		stale := *ks.last
		stale.Stale = true
		return &stale, nil
	}
	return nil, err
}

func (c *Coalescer) Subscribe(workOrderID int64, cb Callback) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New()
	if c.subs[workOrderID] == nil {
		c.subs[workOrderID] = map[uuid.UUID]Callback{}
	}
	c.subs[workOrderID][id] = cb
	return id
}

func (c *Coalescer) Unsubscribe(workOrderID int64, token uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs[workOrderID], token)
}

// Close снимает все таймеры; начатые пересчёты дорабатывают.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, ks := range c.keys {
		if ks.timer != nil {
			ks.timer.Stop()
			ks.timer = nil
		}
	}
}
