package coalescer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/izzyftw1/rvi-sub004/internal/coalescer"
	"github.com/izzyftw1/rvi-sub004/internal/domain/errs"
	"github.com/izzyftw1/rvi-sub004/internal/infra/metrics"
	"github.com/izzyftw1/rvi-sub004/internal/resolver"
	"github.com/izzyftw1/rvi-sub004/internal/testsupport"
)

// источник-счётчик: каждый успешный пересчёт отдаёт свежий Produced,
// чтобы тест видел, какой именно пересчёт попал в снапшот
type countingSource struct {
	calls int
	fail  error
}

func (s *countingSource) recompute(_ context.Context, workOrderID int64) (*resolver.StageQuantities, error) {
	s.calls++
	if s.fail != nil {
		return nil, s.fail
	}
	return &resolver.StageQuantities{WorkOrderID: workOrderID, Produced: int64(s.calls)}, nil
}

func newCoalescer(opt coalescer.Options, src *countingSource) (*coalescer.Coalescer, *testsupport.FakeClock) {
	clock := testsupport.NewFakeClock(time.Unix(1_756_000_000, 0))
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	met := metrics.New(prometheus.NewRegistry())
	return coalescer.New(opt, clock, src.recompute, log, met), clock
}

func defaultOpts() coalescer.Options {
	return coalescer.Options{
		ThrottleWindow: 2 * time.Second,
		CacheValidity:  0, // кэш не гасит уведомления, если тест не просит иного
		RetryBase:      500 * time.Millisecond,
		RetryMax:       3,
	}
}

func TestNotify_BurstCoalescesToSingleDeferredRecompute(t *testing.T) {
	src := &countingSource{}
	c, clock := newCoalescer(defaultOpts(), src)
	defer c.Close()

	// первое уведомление — немедленный пересчёт
	c.Notify(7, "production_batches")
	if src.calls != 1 {
		t.Fatalf("calls = %d, want 1", src.calls)
	}

	// шквал внутри окна сливается в один таймер
	for i := 0; i < 10; i++ {
		clock.Advance(50 * time.Millisecond)
		c.Notify(7, "production_batches")
	}
	if src.calls != 1 {
		t.Fatalf("calls = %d, recompute ran inside the window", src.calls)
	}
	if clock.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", clock.Pending())
	}

	// на границе окна — ровно один отложенный пересчёт
	clock.Advance(2 * time.Second)
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2", src.calls)
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending timers = %d after boundary", clock.Pending())
	}
}

func TestNotify_FreshCacheDrops(t *testing.T) {
	opt := defaultOpts()
	opt.CacheValidity = 5 * time.Second
	src := &countingSource{}
	c, clock := newCoalescer(opt, src)
	defer c.Close()

	c.Notify(7, "cartons")
	if src.calls != 1 {
		t.Fatalf("calls = %d, want 1", src.calls)
	}

	clock.Advance(time.Second)
	c.Notify(7, "cartons")
	if src.calls != 1 || clock.Pending() != 0 {
		t.Fatalf("fresh-cache notify must be dropped: calls=%d pending=%d", src.calls, clock.Pending())
	}

	// после истечения кэша уведомление снова действует
	clock.Advance(5 * time.Second)
	c.Notify(7, "cartons")
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2 after cache expiry", src.calls)
	}
}

func TestNotify_IndependentKeys(t *testing.T) {
	src := &countingSource{}
	c, _ := newCoalescer(defaultOpts(), src)
	defer c.Close()

	c.Notify(1, "cartons")
	c.Notify(2, "cartons")
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2: keys throttle independently", src.calls)
	}
}

func TestForceRefresh_BypassesFreshCache(t *testing.T) {
	opt := defaultOpts()
	opt.CacheValidity = 5 * time.Second
	src := &countingSource{}
	c, _ := newCoalescer(opt, src)
	defer c.Close()

	c.Notify(7, "cartons")
	snap, err := c.ForceRefresh(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2: force ignores cache freshness", src.calls)
	}
	if snap.Stale || snap.Quantities.Produced != 2 {
		t.Errorf("snap = %+v", snap)
	}
}

func TestForceRefresh_CancelsPendingTimer(t *testing.T) {
	src := &countingSource{}
	c, clock := newCoalescer(defaultOpts(), src)
	defer c.Close()

	c.Notify(7, "cartons")
	clock.Advance(100 * time.Millisecond)
	c.Notify(7, "cartons") // таймер на остаток окна
	if clock.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", clock.Pending())
	}

	if _, err := c.ForceRefresh(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending = %d, force must cancel the deferred recompute", clock.Pending())
	}
	calls := src.calls
	clock.Advance(5 * time.Second)
	if src.calls != calls {
		t.Fatalf("stale timer fired after force refresh")
	}
}

func TestSnapshot_ServesFreshCacheWithoutRecompute(t *testing.T) {
	opt := defaultOpts()
	opt.CacheValidity = 5 * time.Second
	src := &countingSource{}
	c, _ := newCoalescer(opt, src)
	defer c.Close()

	c.Notify(7, "cartons")
	snap, err := c.Snapshot(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("calls = %d, fresh cache must be served as is", src.calls)
	}
	if snap.Quantities.Produced != 1 || snap.Stale {
		t.Errorf("snap = %+v", snap)
	}
}

func TestSnapshot_StaleOnSourceFailure(t *testing.T) {
	src := &countingSource{}
	c, clock := newCoalescer(defaultOpts(), src)
	defer c.Close()

	c.Notify(7, "cartons") // last = пересчёт №1
	clock.Advance(10 * time.Second)

	src.fail = fmt.Errorf("aggregate query: %w", errs.ErrSourceUnavailable)
	snap, err := c.Snapshot(context.Background(), 7)
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if !snap.Stale || snap.Quantities.Produced != 1 {
		t.Errorf("snap = %+v, want stale last-known-good", snap)
	}
}

func TestSnapshot_NotFoundIsNotMasked(t *testing.T) {
	src := &countingSource{fail: fmt.Errorf("work order 9: %w", errs.ErrNotFound)}
	c, _ := newCoalescer(defaultOpts(), src)
	defer c.Close()

	_, err := c.Snapshot(context.Background(), 9)
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSnapshot_NoHistoryPropagatesError(t *testing.T) {
	src := &countingSource{fail: fmt.Errorf("db down: %w", errs.ErrSourceUnavailable)}
	c, _ := newCoalescer(defaultOpts(), src)
	defer c.Close()

	_, err := c.Snapshot(context.Background(), 7)
	if !errors.Is(err, errs.ErrSourceUnavailable) {
		t.Fatalf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestNotify_RetryWithBackoffThenRecover(t *testing.T) {
	src := &countingSource{fail: fmt.Errorf("db down: %w", errs.ErrSourceUnavailable)}
	c, clock := newCoalescer(defaultOpts(), src)
	defer c.Close()

	c.Notify(7, "cartons")
	if src.calls != 1 || clock.Pending() != 1 {
		t.Fatalf("calls=%d pending=%d, want failed attempt plus retry timer", src.calls, clock.Pending())
	}

	// первый ретрай через RetryBase тоже падает, второй — через удвоенный
	clock.Advance(500 * time.Millisecond)
	if src.calls != 2 || clock.Pending() != 1 {
		t.Fatalf("after first retry: calls=%d pending=%d", src.calls, clock.Pending())
	}

	src.fail = nil
	clock.Advance(time.Second)
	if src.calls != 3 {
		t.Fatalf("calls = %d, want recovery on second retry", src.calls)
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending = %d after recovery", clock.Pending())
	}

	snap, err := c.Snapshot(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Stale {
		t.Error("recovered snapshot must not be stale")
	}
}

func TestNotify_RetriesStopAtMax(t *testing.T) {
	opt := defaultOpts()
	opt.RetryMax = 2
	src := &countingSource{fail: fmt.Errorf("db down: %w", errs.ErrSourceUnavailable)}
	c, clock := newCoalescer(opt, src)
	defer c.Close()

	c.Notify(7, "cartons")
	clock.Advance(time.Minute) // все ретраи дозревают
	if src.calls != 3 {        // первая попытка + 2 ретрая
		t.Fatalf("calls = %d, want 3", src.calls)
	}
	if clock.Pending() != 0 {
		t.Fatalf("pending = %d, retries must stop at max", clock.Pending())
	}
}

func TestSubscribe_DeliversEachRecompute(t *testing.T) {
	src := &countingSource{}
	c, clock := newCoalescer(defaultOpts(), src)
	defer c.Close()

	var got []coalescer.Snapshot
	token := c.Subscribe(7, func(s coalescer.Snapshot) { got = append(got, s) })

	c.Notify(7, "cartons")
	clock.Advance(2 * time.Second)
	c.Notify(7, "cartons")
	if len(got) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(got))
	}
	if got[1].Quantities.Produced != 2 {
		t.Errorf("last delivery = %+v", got[1])
	}

	c.Unsubscribe(7, token)
	clock.Advance(2 * time.Second)
	c.Notify(7, "cartons")
	if len(got) != 2 {
		t.Fatalf("callback after unsubscribe")
	}
}

func TestClose_StopsDeferredWork(t *testing.T) {
	src := &countingSource{}
	c, clock := newCoalescer(defaultOpts(), src)

	c.Notify(7, "cartons")
	clock.Advance(100 * time.Millisecond)
	c.Notify(7, "cartons")
	c.Close()

	calls := src.calls
	clock.Advance(time.Minute)
	if src.calls != calls {
		t.Fatalf("recompute after Close")
	}
	c.Notify(7, "cartons")
	if src.calls != calls {
		t.Fatalf("Notify after Close must be a no-op")
	}
}
