package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"buddy-match/internal/scheduler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the matching scheduler",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		deps, cleanup, err := buildApp(cfg, logger)
		defer cleanup()
		if err != nil {
			logger.Error("init app", zap.Error(err))
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           deps.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		return runServer(ctx, srv, deps.sched, shutdownTimeout, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type lifecycle interface {
	Start() error
	Close() error
}

// runServer 启动调度器与 HTTP 服务，ctx 取消后优雅关闭两者。
func runServer(ctx context.Context, srv httpServer, sched lifecycle, timeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sched != nil {
		if err := sched.Start(); err != nil {
			if !errors.Is(err, scheduler.ErrDisabled) {
				return fmt.Errorf("start scheduler: %w", err)
			}
			logger.Info("scheduler disabled, serving API only")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown server: %w", err)
	}
	if sched != nil {
		if err := sched.Close(); err != nil && serveErr == nil {
			serveErr = fmt.Errorf("stop scheduler: %w", err)
		}
	}
	return serveErr
}
