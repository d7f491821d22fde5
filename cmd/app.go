package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"buddy-match/internal/api"
	"buddy-match/internal/candidate"
	"buddy-match/internal/lock"
	"buddy-match/internal/matching"
	"buddy-match/internal/notifier"
	"buddy-match/internal/scheduler"
	"buddy-match/internal/storage"

	"go.uber.org/zap"
)

// appDeps 汇总各命令需要的组件。
type appDeps struct {
	runner     scheduler.Runner
	dispatcher scheduler.Dispatcher
	sched      *scheduler.Scheduler
	candidates *candidate.Service
	handler    http.Handler
}

type appBuilder func(cfg AppConfig, logger *zap.Logger) (appDeps, func(), error)

// buildApp 依次创建存储、单飞保护、编排器、通知与调度器。
func buildApp(cfg AppConfig, logger *zap.Logger) (appDeps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := storage.Open(cfg.Database)
	if err != nil {
		return appDeps{}, cleanup, fmt.Errorf("init store: %w", err)
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	})

	guard, closeGuard, err := buildGuard(cfg.Lock, logger)
	if err != nil {
		return appDeps{}, cleanup, err
	}
	closers = append(closers, closeGuard)

	orch, err := matching.NewOrchestrator(store, cfg.Matching,
		matching.WithGuard(guard),
		matching.WithLogger(logger.Named("matching")),
	)
	if err != nil {
		return appDeps{}, cleanup, err
	}

	dispatcher := notifier.NewDispatcher(store, buildNotifier(cfg.Email, store, logger), logger.Named("notifier"))
	sched := scheduler.NewScheduler(orch, dispatcher, cfg.Scheduler, logger.Named("scheduler"))
	closers = append(closers, func() {
		if err := sched.Close(); err != nil {
			logger.Warn("close scheduler", zap.Error(err))
		}
	})

	cands := candidate.NewService(store)
	handler := api.NewHandler(orch, sched, dispatcher, store, cands, logger.Named("api"))

	return appDeps{
		runner:     orch,
		dispatcher: dispatcher,
		sched:      sched,
		candidates: cands,
		handler:    handler,
	}, cleanup, nil
}

func buildGuard(cfg LockConfig, logger *zap.Logger) (lock.Guard, func(), error) {
	if cfg.Backend != "redis" {
		return lock.NewLocal(), func() {}, nil
	}
	client := lock.NewRedisClient(cfg.RedisConfig)
	lease := lock.NewRedisLease(client, cfg.Key, cfg.TTL, logger.Named("lock"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, func() {}, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	logger.Info("using redis run lease", zap.String("addr", cfg.Addr))
	return lease, func() { _ = client.Close() }, nil
}

func buildNotifier(cfg notifier.EmailConfig, dir notifier.Directory, logger *zap.Logger) notifier.Notifier {
	if !cfg.Enabled() {
		logger.Info("email notifier disabled: missing host/port/from, logging notifications instead")
		return notifier.NewLogNotifier(logger.Named("notifier"))
	}
	return notifier.NewEmailNotifier(cfg, dir, nil)
}
