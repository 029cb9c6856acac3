package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"

	"github.com/izzyftw1/rvi-sub004/internal/coalescer"
	"github.com/izzyftw1/rvi-sub004/internal/config"
	"github.com/izzyftw1/rvi-sub004/internal/domain/actors"
	"github.com/izzyftw1/rvi-sub004/internal/domain/dispatch"
	"github.com/izzyftw1/rvi-sub004/internal/domain/gates"
	"github.com/izzyftw1/rvi-sub004/internal/domain/inspection"
	"github.com/izzyftw1/rvi-sub004/internal/domain/orders"
	"github.com/izzyftw1/rvi-sub004/internal/domain/packing"
	"github.com/izzyftw1/rvi-sub004/internal/domain/production"
	"github.com/izzyftw1/rvi-sub004/internal/engine"
	"github.com/izzyftw1/rvi-sub004/internal/infra/db"
	httpx "github.com/izzyftw1/rvi-sub004/internal/infra/http"
	"github.com/izzyftw1/rvi-sub004/internal/infra/logger"
	"github.com/izzyftw1/rvi-sub004/internal/infra/metrics"
	"github.com/izzyftw1/rvi-sub004/internal/resolver"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	met := metrics.New(prometheus.DefaultRegisterer)

	ordersRepo := orders.NewRepo(pool)
	actorsRepo := actors.NewRepo(pool)
	gatesMachine := gates.NewMachine(gates.NewRepo(pool), actorsRepo)
	batchRepo := production.NewRepo(pool)
	batchManager := production.NewManager(batchRepo, ordersRepo, gatesMachine)
	approvalsRepo := inspection.NewRepo(pool)
	packer := packing.NewService(packing.NewRepo(pool), approvalsRepo)
	dispatchRepo := dispatch.NewRepo(pool)

	res := resolver.New(resolver.NewPGSource(pool), cfg.Resolver.ChunkSize)

	coal := coalescer.New(coalescer.Options{
		ThrottleWindow: cfg.ThrottleWindow(),
		CacheValidity:  cfg.CacheValidity(),
		RetryBase:      cfg.RetryBase(),
		RetryMax:       cfg.Coalescer.RetryMax,
		SourceTimeout:  cfg.SourceTimeout(),
	}, coalescer.RealClock(), res.Resolve, log, met)
	defer coal.Close()

	eng := engine.New(engine.Deps{
		Orders:     ordersRepo,
		Gates:      gatesMachine,
		Batches:    batchManager,
		BatchList:  batchRepo,
		Approvals:  approvalsRepo,
		Packer:     packer,
		Dispatcher: dispatchRepo,
		Resolver:   res,
		Coalescer:  coal,
		Log:        log,
		Timeout:    cfg.SourceTimeout(),
	})

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, eng, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
