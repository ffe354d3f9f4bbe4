package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/m3rciful/communibot/core/config"
	"github.com/m3rciful/communibot/core/logger"
	"log/slog"
)

// SMTPSender delivers mail over plain SMTP with optional auth.
type SMTPSender struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPSender builds a sender from config. Callers are expected to have
// checked cfg.Host is non-empty; an empty host configuration selects the
// log-only sender instead.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

// Send delivers the message. smtp.SendMail blocks without regard to ctx;
// the dial timeout is bounded by the server, so we check ctx up front only.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	logger.Info(ctx, "mail", "mail.sent",
		slog.String("status", "ok"),
	)
	return nil
}
