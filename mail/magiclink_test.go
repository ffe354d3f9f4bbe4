package mail

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/m3rciful/communibot/services/identity"
)

func TestVerifyURL(t *testing.T) {
	username := "alice"
	firstName := "Alice Müller"
	tok := &identity.LinkToken{
		Token:      "tok-123",
		TelegramID: 100,
		Email:      "a@example.com",
		Username:   &username,
		FirstName:  &firstName,
	}

	raw := NewLinkBuilder("https://bot.example.com").VerifyURL(tok)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	if u.Path != "/verify" {
		t.Fatalf("path = %q, want /verify", u.Path)
	}
	q := u.Query()
	if q.Get("token") != "tok-123" {
		t.Fatalf("token = %q", q.Get("token"))
	}
	if q.Get("telegram_id") != "100" {
		t.Fatalf("telegram_id = %q", q.Get("telegram_id"))
	}
	if q.Get("username") != "alice" || q.Get("first_name") != "Alice Müller" {
		t.Fatalf("identity params = %q / %q", q.Get("username"), q.Get("first_name"))
	}
}

func TestVerifyURLOmitsAbsentIdentity(t *testing.T) {
	tok := &identity.LinkToken{Token: "tok", TelegramID: 1, Email: "a@example.com"}
	raw := NewLinkBuilder("https://bot.example.com").VerifyURL(tok)
	if strings.Contains(raw, "username=") || strings.Contains(raw, "first_name=") {
		t.Fatalf("url = %q, want no empty identity params", raw)
	}
}

type captureSender struct{ last Message }

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.last = msg
	return nil
}

func TestSendLinkContainsVerifyURL(t *testing.T) {
	sender := &captureSender{}
	mailer := NewMagicLinkMailer(sender, NewLinkBuilder("https://bot.example.com"))
	tok := &identity.LinkToken{Token: "tok-xyz", TelegramID: 5, Email: "user@example.com"}

	if err := mailer.SendLink(context.Background(), tok); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.last.To != "user@example.com" {
		t.Fatalf("to = %q", sender.last.To)
	}
	if !strings.Contains(sender.last.Body, "https://bot.example.com/verify?") ||
		!strings.Contains(sender.last.Body, "tok-xyz") {
		t.Fatalf("body missing verify url: %q", sender.last.Body)
	}
}
