package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes messages to the log instead of sending them. Used in development.
type LogSender struct {
	logger *zap.Logger
	prefix string
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger, subjectPrefix string) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger, prefix: subjectPrefix}
}

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = addr.Address
	}
	s.logger.Info("email",
		zap.Strings("to", to),
		zap.String("subject", s.prefix+msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
