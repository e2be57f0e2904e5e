package activities

import (
	"context"

	"go.uber.org/zap"

	"quanttrade/services/workflow"
)

// Notifier delivers workflow notifications to an operator channel.
type Notifier interface {
	Send(ctx context.Context, in workflow.NotificationInput) error
}

// LogNotifier writes notifications to the structured log, mapping severity
// to the log level.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) Send(_ context.Context, in workflow.NotificationInput) error {
	fields := []zap.Field{
		zap.String("type", in.Type),
		zap.String("severity", in.Severity),
	}
	for k, v := range in.Details {
		fields = append(fields, zap.String(k, v))
	}
	switch in.Severity {
	case "high", "critical":
		n.logger.Warn(in.Message, fields...)
	default:
		n.logger.Info(in.Message, fields...)
	}
	return nil
}
