package main

import (
	"context"
	"encoding/json"
	"fmt"

	"buddy-match/internal/matching"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Expire stale matches, run one matching pass and print the summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		sum, err := runOnceManual(cmd.Context(), cfg, logger, buildApp)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if !sum.Success {
			return fmt.Errorf("matching run failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runOnceCmd)
}

// runOnceManual 与定时触发相同：先清理过期记录，再匹配，成功后投递通知并补发积压。
func runOnceManual(ctx context.Context, cfg AppConfig, logger *zap.Logger, build appBuilder) (matching.Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deps, cleanup, err := build(cfg, logger)
	defer cleanup()
	if err != nil {
		return matching.Summary{}, err
	}

	expired, err := deps.runner.CleanupExpiredMatches(ctx)
	if err != nil {
		logger.Warn("cleanup expired matches failed", zap.Error(err))
	}
	sum := deps.runner.RunMatching(ctx)
	if err != nil {
		sum.Errors = append(sum.Errors, fmt.Sprintf("cleanup expired matches: %v", err))
	}
	logger.Info("manual run finished",
		zap.Bool("success", sum.Success),
		zap.Int("matches_created", sum.MatchesCreated),
		zap.Int64("expired", expired.Expired),
	)

	if deps.dispatcher != nil {
		if sum.Success && len(sum.Matches) > 0 {
			res := deps.dispatcher.DispatchMatches(ctx, sum.Matches)
			logger.Info("match notifications dispatched", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
		}
		if res := deps.dispatcher.DispatchPending(ctx); res.Sent+res.Failed > 0 {
			logger.Info("pending notifications retried", zap.Int("sent", res.Sent), zap.Int("failed", res.Failed))
		}
	}
	return sum, nil
}
