package mail

import (
	"context"

	"github.com/m3rciful/communibot/core/logger"
	"log/slog"
)

// LogSender writes outgoing mail to the log instead of delivering it. Used in
// development when no SMTP host is configured.
type LogSender struct{}

// Send logs the message body at info level.
func (LogSender) Send(ctx context.Context, msg Message) error {
	logger.Info(ctx, "mail", "mail.logged",
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
