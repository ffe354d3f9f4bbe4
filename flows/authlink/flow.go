// Package authlink drives the email linking conversation: /link prompts for
// an address, a magic link goes out by email, and the verification callback
// finishes the job out of band.
package authlink

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/communibot/core/logger"
	"github.com/m3rciful/communibot/core/metrics"
	"github.com/m3rciful/communibot/services/identity"
	"github.com/m3rciful/communibot/services/ratelimit"
	"github.com/m3rciful/communibot/services/sessions"
	"log/slog"
)

const component = "flow.authlink"

// LinkMailer sends the magic link for a freshly issued token.
type LinkMailer interface {
	SendLink(ctx context.Context, t *identity.LinkToken) error
}

// Machine runs the linking flow. It owns the auth session states; the users
// table stays authoritative, so every decision re-checks it rather than
// trusting the session.
type Machine struct {
	ids      *identity.Service
	sessions sessions.Store
	limiter  *ratelimit.Limiter
	mailer   LinkMailer
	now      func() time.Time
}

// NewMachine wires the flow.
func NewMachine(ids *identity.Service, store sessions.Store, limiter *ratelimit.Limiter, mailer LinkMailer) *Machine {
	return &Machine{ids: ids, sessions: store, limiter: limiter, mailer: mailer, now: time.Now}
}

// Start handles /link. Already-linked users get told so and no session is
// created; otherwise the flow moves to awaiting an email address, replacing
// any other active flow.
func (m *Machine) Start(ctx context.Context, u *identity.User) (string, error) {
	if u.Linked() {
		return fmt.Sprintf("Your account is already linked to %s.", *u.Email), nil
	}
	if err := m.sessions.Save(ctx, u.TelegramID, sessions.AwaitingEmail{}); err != nil {
		return "", err
	}
	return "Send me the email address you want to link.", nil
}

// HandleText consumes a text message while an auth flow is active.
func (m *Machine) HandleText(ctx context.Context, u *identity.User, flow sessions.Flow, text string) (string, error) {
	switch f := flow.(type) {
	case sessions.AwaitingEmail:
		return m.handleEmail(ctx, u, text)
	case sessions.AwaitingVerification:
		return m.handlePending(ctx, u, f)
	default:
		return "", fmt.Errorf("authlink: unexpected flow %q", flow.Step())
	}
}

func (m *Machine) handleEmail(ctx context.Context, u *identity.User, text string) (string, error) {
	email, err := NormalizeEmail(text)
	if err != nil {
		// Stay in the same state; the user just tries again.
		return "That does not look like a valid email address. Please try again.", nil
	}

	res, err := m.limiter.TryConsume(ctx, ratelimit.MagicLinkKey(u.TelegramID, email), 1)
	if err != nil {
		// Fail closed: without a limiter verdict no email goes out.
		_ = m.sessions.Clear(ctx, u.TelegramID)
		logger.Error(ctx, component, "link.limiter",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return "Something went wrong. Please try /link again later.", nil
	}
	if !res.Allowed {
		_ = m.sessions.Clear(ctx, u.TelegramID)
		metrics.RateLimitedTotal.WithLabelValues("magic_link").Inc()
		logger.Info(ctx, component, "link.rate_limited",
			slog.Int64("user_id", u.TelegramID),
		)
		return fmt.Sprintf(
			"Too many link requests for that address. Try again in about %s.",
			res.RetryAfter.Round(time.Minute),
		), nil
	}

	username := ""
	if u.Username != nil {
		username = *u.Username
	}
	firstName := ""
	if u.FirstName != nil {
		firstName = *u.FirstName
	}
	token, err := m.ids.IssueLinkToken(ctx, u.TelegramID, email, username, firstName)
	if err == nil {
		err = m.mailer.SendLink(ctx, token)
	}
	if err != nil {
		_ = m.sessions.Clear(ctx, u.TelegramID)
		logger.Error(ctx, component, "link.send",
			slog.String("status", "fail"),
			slog.Int64("user_id", u.TelegramID),
			slog.String("err", err.Error()),
		)
		return "I could not send the verification email. Please try /link again later.", nil
	}

	err = m.sessions.Save(ctx, u.TelegramID, sessions.AwaitingVerification{
		Email:     email,
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		// The mail is out but the flow cannot track it; reset to idle so the
		// user is not stuck mid-flow. The link still works when it arrives.
		_ = m.sessions.Clear(ctx, u.TelegramID)
		return "", err
	}

	metrics.LinksIssuedTotal.Inc()
	logger.Info(ctx, component, "link.sent",
		slog.String("status", "ok"),
		slog.Int64("user_id", u.TelegramID),
	)
	return fmt.Sprintf("Verification link sent to %s. Open it within 24 hours to finish linking.", email), nil
}

func (m *Machine) handlePending(ctx context.Context, u *identity.User, f sessions.AwaitingVerification) (string, error) {
	// The callback may have completed the link while this session sat idle.
	if u.Linked() {
		_ = m.sessions.Clear(ctx, u.TelegramID)
		return fmt.Sprintf("Your account is linked to %s.", *u.Email), nil
	}
	if f.Expired(m.now()) {
		_ = m.sessions.Clear(ctx, u.TelegramID)
		return "The verification link has expired. Use /link to request a new one.", nil
	}
	return fmt.Sprintf("A verification link is already on its way to %s. Open it to finish linking, or /cancel to start over.", f.Email), nil
}

// Status answers /status from the users table and the session, in that order
// of authority.
func (m *Machine) Status(ctx context.Context, u *identity.User) (string, error) {
	if u.Linked() {
		return fmt.Sprintf("Linked to %s.", *u.Email), nil
	}

	sess, err := m.sessions.Load(ctx, u.TelegramID)
	if err != nil {
		return "", err
	}
	if sess != nil {
		if f, ok := sess.Flow.(sessions.AwaitingVerification); ok {
			if f.Expired(m.now()) {
				_ = m.sessions.Clear(ctx, u.TelegramID)
				return "Your verification link expired. Use /link to request a new one.", nil
			}
			return fmt.Sprintf("Verification pending for %s. Check your inbox.", f.Email), nil
		}
	}
	return "Not linked. Use /link to connect your email.", nil
}
