// Command reconciler finalizes calls whose last provider callback was lost.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voip-platform/internal/callerid"
	"voip-platform/internal/calls"
	"voip-platform/internal/config"
	"voip-platform/internal/pricing"
	"voip-platform/internal/reconcile"
	"voip-platform/internal/telephony"
	"voip-platform/internal/wallet"
	"voip-platform/pkg/logger"
	"voip-platform/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const lockKey = "reconciler:calls"

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env).With("component", "reconciler")
	slog.SetDefault(log)

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: 5})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	var provider telephony.Provider
	if cfg.Telephony.Provider == "sandbox" {
		provider = telephony.NewSandboxProvider(log)
	} else {
		provider = telephony.NewTwilioProvider(telephony.TwilioOptions{
			AccountSID:    cfg.Twilio.AccountSID,
			AuthToken:     cfg.Twilio.AuthToken,
			BaseURL:       cfg.Twilio.APIBaseURL,
			PublicBaseURL: cfg.App.PublicBaseURL,
			Timeout:       cfg.Twilio.RequestTimeout,
		}, log)
	}

	var limiter calls.Limiter = calls.NoLimit{}
	if cfg.Billing.MaxConcurrentCalls > 0 {
		limiter = calls.NewRedisLimiter(rdb, cfg.Billing.MaxConcurrentCalls, cfg.Billing.ConcurrencySlotTTL)
	}

	tx := utils.SQLTransactor{DB: db}
	callSvc := calls.NewService(calls.Deps{
		Store:     calls.NewPostgresStore(db),
		Tx:        tx,
		Rates:     pricing.NewService(pricing.NewPostgresRepo(db)),
		Ledger:    wallet.NewService(wallet.NewPostgresStore(db), log),
		CallerIDs: callerid.NewService(callerid.NewPostgresStore(db), tx, provider, nil, callerid.Options{}, log),
		Limiter:   limiter,
		Log:       log,
	}, calls.Options{
		DefaultCallerID:        cfg.Billing.DefaultCallerID,
		DefaultCallerIDCountry: cfg.Billing.DefaultCallerIDCountry,
		IncrementSeconds:       cfg.Billing.IncrementSeconds,
	})

	// Hold the lock for most of a run so replicas do not overlap.
	lock := reconcile.NewRedisLock(rdb, lockKey, cfg.Reconciler.RunTimeout)
	rec := reconcile.New(callSvc, calls.NewStatusHandler(callSvc, log), provider, lock, reconcile.Options{
		StaleAfter: cfg.Reconciler.StaleAfter,
		BatchSize:  cfg.Reconciler.BatchSize,
	}, log)

	sched, err := reconcile.NewScheduler(rec, cfg.Reconciler.Schedule, cfg.Reconciler.RunTimeout, log)
	if err != nil {
		log.Error("reconciler schedule invalid", "schedule", cfg.Reconciler.Schedule, "err", err)
		os.Exit(1)
	}
	sched.Start()
	log.Info("reconciler started", "schedule", cfg.Reconciler.Schedule, "stale_after", cfg.Reconciler.StaleAfter.String())

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
