package middleware

import (
	"fmt"
	"time"

	"github.com/m3rciful/communibot/core/logger"
	"github.com/m3rciful/communibot/core/metrics"
	tghelpers "github.com/m3rciful/communibot/core/telegram/helpers"
	"github.com/m3rciful/communibot/services/ratelimit"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// ThrottleMiddleware enforces the per-user message budget through the shared
// limiter store, so the cap holds across bot instances. A store failure
// counts as a denial; better to drop a message than to let an outage disable
// the limiter.
func ThrottleMiddleware(limiter *ratelimit.Limiter) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}

			ctx := tghelpers.BuildContext(c)
			res, err := limiter.TryConsume(ctx, ratelimit.MessageKey(user.ID), 1)
			if err != nil {
				metrics.RateLimitedTotal.WithLabelValues("messages").Inc()
				logger.Error(ctx, "tg.throttle", "throttle.store",
					slog.String("status", "fail"),
					slog.Int64("user_id", user.ID),
					slog.String("err", err.Error()),
				)
				return nil
			}
			if !res.Allowed {
				metrics.RateLimitedTotal.WithLabelValues("messages").Inc()
				logger.Warn(ctx, "tg.throttle", "throttle.limited",
					slog.Int64("user_id", user.ID),
				)
				// Tell the user once per window, on the first denied message.
				if res.Overflow == 1 {
					_ = c.Send(fmt.Sprintf(
						"You are sending messages too fast. Try again in about %s.",
						res.RetryAfter.Round(time.Second),
					))
				}
				return nil
			}
			return next(c)
		}
	}
}
