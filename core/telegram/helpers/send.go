package helpers

import (
	tele "gopkg.in/telebot.v4"
)

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	if len(opts) > 0 && opts[0] != nil {
		return c.Send(text, opts[0])
	}
	return c.Send(text)
}

// SendKB sends raw text with a reply keyboard attached.
func SendKB(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	return c.Send(text, &tele.SendOptions{ReplyMarkup: markup})
}
