package notification

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogMailer writes messages to the log instead of delivering mail. It
// stands in for the real mail service in development and tests.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, userID uuid.UUID, subject, body string) error {
	m.logger.Info("mail",
		zap.String("to", userID.String()),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
