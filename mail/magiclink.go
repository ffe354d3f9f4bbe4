package mail

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/m3rciful/communibot/services/identity"
)

// LinkBuilder renders verification URLs against the public base URL of the
// verify server.
type LinkBuilder struct {
	baseURL string
}

// NewLinkBuilder builds a LinkBuilder. baseURL must not end with a slash;
// config normalization guarantees that.
func NewLinkBuilder(baseURL string) *LinkBuilder {
	return &LinkBuilder{baseURL: baseURL}
}

// VerifyURL renders the magic link for a token. The Telegram identity rides
// along in query parameters so the callback can complete the link without any
// bot-side session.
func (b *LinkBuilder) VerifyURL(t *identity.LinkToken) string {
	q := url.Values{}
	q.Set("token", t.Token)
	q.Set("telegram_id", strconv.FormatInt(t.TelegramID, 10))
	if t.Username != nil {
		q.Set("username", *t.Username)
	}
	if t.FirstName != nil {
		q.Set("first_name", *t.FirstName)
	}
	return b.baseURL + "/verify?" + q.Encode()
}

// MagicLinkMailer composes and sends verification emails.
type MagicLinkMailer struct {
	sender Sender
	links  *LinkBuilder
}

// NewMagicLinkMailer builds the mailer.
func NewMagicLinkMailer(sender Sender, links *LinkBuilder) *MagicLinkMailer {
	return &MagicLinkMailer{sender: sender, links: links}
}

// SendLink delivers the magic link for a freshly issued token.
func (m *MagicLinkMailer) SendLink(ctx context.Context, t *identity.LinkToken) error {
	body := fmt.Sprintf(
		"Hi!\n\nSomeone (hopefully you) asked to link this email address to a Telegram account.\n\n"+
			"Open the link below to confirm:\n\n%s\n\n"+
			"The link is valid for 24 hours. If you did not request this, ignore this email.\n",
		m.links.VerifyURL(t),
	)
	return m.sender.Send(ctx, Message{
		To:      t.Email,
		Subject: "Confirm your account link",
		Body:    body,
	})
}
