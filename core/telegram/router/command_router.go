// Package router wires registry commands and session-driven text dispatch
// into bot routes with shared per-handler logging.
package router

import (
	"time"

	"github.com/m3rciful/communibot/core/logger"
	tg "github.com/m3rciful/communibot/core/telegram"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// CommandRoutes prepares command handlers wrapped with the summary logger.
func CommandRoutes(reg *tg.Registry) []tg.Route {
	if reg == nil {
		return nil
	}

	routes := make([]tg.Route, 0, len(reg.Commands()))
	for cmd, def := range reg.Commands() {
		name := normalizeHandlerName(cmd)
		handler := def.Handler
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler: func(c tele.Context) error {
				return handleWithSummary(c, name, time.Now(), func() error {
					return handler(c)
				})
			},
		})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(reg.Commands())),
	)

	return routes
}
