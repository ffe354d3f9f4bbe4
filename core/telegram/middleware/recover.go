package middleware

import (
	"runtime/debug"

	"github.com/m3rciful/communibot/core/metrics"
	"github.com/m3rciful/communibot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/communibot/core/logger"
)

// RecoverMiddleware catches panics in handlers and prevents the bot from crashing.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		defer func() {
			if r := recover(); r != nil {
				ctx := helpers.BuildContext(c)
				metrics.HandlerErrorsTotal.WithLabelValues("panic").Inc()
				logger.Error(ctx, "tg", "tg.panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()
		return next(c)
	}
}
