package router

import (
	"time"

	tg "github.com/m3rciful/communibot/core/telegram"
	tghelpers "github.com/m3rciful/communibot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// FlowDispatcher routes a plain text message to the sender's active
// conversation flow, if any. It reports whether the message was consumed.
type FlowDispatcher interface {
	DispatchText(c tele.Context) (bool, error)
}

// TextOptions controls fallback behaviour for text updates.
type TextOptions struct {
	UnknownText tele.HandlerFunc
}

// TextRoutes builds the OnText route. Order matters: an active flow owns the
// user's plain text, then command lookup (covers aliases typed without a
// leading slash), then the registry fallback.
func TextRoutes(flows FlowDispatcher, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if flows != nil {
			tghelpers.WithHandler(c, "flow")
			handled, err := flows.DispatchText(c)
			if handled || err != nil {
				logHandlerSummary(c, "flow", start, err)
				return err
			}
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, nil)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: handler},
	}
}
