package notifier

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier 仅打印通知，适合开发阶段使用。
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器，未提供 logger 时不输出。
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify 打印一条通知。
func (n LogNotifier) Notify(ctx context.Context, candidateID string, msg Message) error {
	n.logger.Info("match notification",
		zap.String("candidate_id", candidateID),
		zap.String("match_id", msg.MatchID),
		zap.String("subject", msg.Subject),
	)
	return nil
}
