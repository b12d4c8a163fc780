// Package sender 各通知渠道的发送器实现。
package sender

import (
	"context"
	"log/slog"

	"github.com/wyfcoding/executioncore/internal/notification/domain"
)

// LogSender 日志渠道，优先级映射到日志级别。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender 创建日志发送器。
func NewLogSender(logger *slog.Logger) domain.Sender {
	return &LogSender{logger: logger.With("module", "notification")}
}

// Send 按优先级落日志。
func (s *LogSender) Send(ctx context.Context, n *domain.Notification) error {
	level := slog.LevelInfo
	switch n.Priority {
	case domain.PriorityLow:
		level = slog.LevelDebug
	case domain.PriorityHigh:
		level = slog.LevelWarn
	case domain.PriorityUrgent:
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, n.Title,
		"notification_id", n.NotificationID,
		"order_id", n.OrderID,
		"event", n.Event,
		"message", n.Message,
	)
	return nil
}
