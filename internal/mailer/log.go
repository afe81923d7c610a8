package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogDispatcher writes outbound emails to the log instead of delivering
// them. Used in development and in tests.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a log-only dispatcher
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Send logs the email instead of sending it
func (d *LogDispatcher) Send(_ context.Context, toEmail string, kind TemplateKind, params map[string]string) error {
	d.logger.Info("email dispatched",
		zap.String("to", toEmail),
		zap.String("template", string(kind)),
		zap.Any("params", params),
	)
	return nil
}
