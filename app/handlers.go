package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/communibot/core/logger"
	"github.com/m3rciful/communibot/core/metrics"
	"github.com/m3rciful/communibot/core/telegram/commands"
	tghelpers "github.com/m3rciful/communibot/core/telegram/helpers"
	"github.com/m3rciful/communibot/core/telegram/keyboard"
	"github.com/m3rciful/communibot/services/communities"
	"github.com/m3rciful/communibot/services/identity"
	"github.com/m3rciful/communibot/services/sessions"
	"log/slog"

	coretelegram "github.com/m3rciful/communibot/core/telegram"
	tele "gopkg.in/telebot.v4"
)

const helpText = `I help you discover and create communities.

/link - connect your email address
/status - check your link status
/newcommunity - create a community step by step
/communities [newest|popular|alphabetical] - browse communities
/community <slug> - show one community
/join <slug> - join a community
/leave <slug> - leave a community
/cancel - abort the current dialog`

func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Start the bot",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "Show available commands",
	})
	reg.RegisterCommand("/link", commands.Command{
		Handler:     a.handleLink,
		Description: "Link your email address",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     a.handleStatus,
		Description: "Show your link status",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancel,
		Description: "Abort the current dialog",
	})
	reg.RegisterCommand("/newcommunity", commands.Command{
		Handler:     a.handleNewCommunity,
		Description: "Create a community",
	})
	reg.RegisterCommand("/communities", commands.Command{
		Handler:     a.handleCommunities,
		Description: "Browse communities",
	})
	reg.RegisterCommand("/community", commands.Command{
		Handler:     a.handleCommunity,
		Description: "Show one community",
	})
	reg.RegisterCommand("/join", commands.Command{
		Handler:     a.handleJoin,
		Description: "Join a community",
	})
	reg.RegisterCommand("/leave", commands.Command{
		Handler:     a.handleLeave,
		Description: "Leave a community",
	})

	reg.SetTextFallback(func(c tele.Context) error {
		return c.Send("I did not understand that. Use /help to see what I can do.")
	})

	return reg
}

// currentUser resolves the sender, lazily creating the user record on first
// contact.
func (a *App) currentUser(ctx context.Context, c tele.Context) (*identity.User, error) {
	sender := c.Sender()
	if sender == nil {
		return nil, fmt.Errorf("update without sender")
	}
	return a.ids.EnsureUser(ctx, sender.ID, sender.Username, sender.FirstName)
}

// DispatchText feeds a plain text message to the sender's active flow. It
// reports false when no flow is active so the router can fall through to
// command lookup.
func (a *App) DispatchText(c tele.Context) (bool, error) {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	if sender == nil {
		return false, nil
	}

	sess, err := a.sessions.Load(ctx, sender.ID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}

	u, err := a.currentUser(ctx, c)
	if err != nil {
		return true, err
	}

	var reply string
	switch f := sess.Flow.(type) {
	case sessions.WizardFlow:
		reply, err = a.wizardFlow.HandleText(ctx, u.ID, sender.ID, f, c.Text())
		if err == nil {
			return true, tghelpers.SendKB(c, reply, a.wizardKeyboard(ctx, sender.ID))
		}
	default:
		reply, err = a.authFlow.HandleText(ctx, u, sess.Flow, c.Text())
	}
	if err != nil {
		return true, err
	}
	return true, tghelpers.SendText(c, reply)
}

// wizardKeyboard offers answer buttons on the choice steps and hides any
// leftover keyboard everywhere else.
func (a *App) wizardKeyboard(ctx context.Context, telegramID int64) *tele.ReplyMarkup {
	sess, err := a.sessions.Load(ctx, telegramID)
	if err == nil && sess != nil {
		if f, ok := sess.Flow.(sessions.WizardFlow); ok {
			switch f.Pos {
			case 4:
				return keyboard.ReplyButtons([]string{"public", "private"})
			case 5:
				return keyboard.ReplyButtons([]string{"create", "back", "cancel"})
			}
		}
	}
	return keyboard.RemoveKeyboard()
}

func (a *App) handleStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	return c.Send(fmt.Sprintf("Hi %s!\n\n%s", u.DisplayName(), helpText))
}

func (a *App) handleHelp(c tele.Context) error {
	return c.Send(helpText)
}

func (a *App) handleLink(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	reply, err := a.authFlow.Start(ctx, u)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	return c.Send(reply)
}

func (a *App) handleStatus(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	reply, err := a.authFlow.Status(ctx, u)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	return c.Send(reply)
}

func (a *App) handleCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	sess, err := a.sessions.Load(ctx, sender.ID)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	if sess == nil {
		return c.Send("Nothing to cancel.")
	}
	if err := a.sessions.Clear(ctx, sender.ID); err != nil {
		return a.replyInternal(ctx, c, err)
	}
	return c.Send("Cancelled.")
}

func (a *App) handleNewCommunity(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	if err := identity.Authorize(u, identity.RoleStandard); err != nil {
		return a.replyAuthError(c, err)
	}
	reply, err := a.wizardFlow.Start(ctx, u.TelegramID)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	return c.Send(reply)
}

func (a *App) handleCommunities(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}

	filter := communities.ListFilter{Sort: communities.SortNewest}
	if arg := firstArg(c); arg != "" {
		switch communities.Sort(strings.ToLower(arg)) {
		case communities.SortNewest, communities.SortPopular, communities.SortAlphabetical:
			filter.Sort = communities.Sort(strings.ToLower(arg))
		default:
			filter.Search = arg
		}
	}

	page, err := a.comms.List(ctx, filter, viewerID(u))
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	if len(page.Items) == 0 {
		return c.Send("No communities found. Create one with /newcommunity!")
	}

	var b strings.Builder
	b.WriteString("Communities:\n")
	for _, item := range page.Items {
		fmt.Fprintf(&b, "\n%s (%s)", item.Name, item.Slug)
		if item.IsPrivate {
			b.WriteString(" [private]")
		}
		fmt.Fprintf(&b, "\n%d members\n", item.MemberCount)
	}
	if page.HasMore {
		b.WriteString("\nThere are more. Narrow the list with /communities <search>.")
	}
	return c.Send(b.String())
}

func (a *App) handleCommunity(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	slug := firstArg(c)
	if slug == "" {
		return c.Send("Usage: /community <slug>")
	}

	comm, err := a.comms.GetBySlug(ctx, strings.ToLower(slug), viewerID(u))
	if errors.Is(err, communities.ErrNotFound) {
		return c.Send("No community with that slug was found.")
	}
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}

	visibility := "public"
	if comm.IsPrivate {
		visibility = "private"
	}
	desc := ""
	if comm.Description != nil && *comm.Description != "" {
		desc = "\n" + *comm.Description
	}
	return c.Send(fmt.Sprintf(
		"%s (%s)%s\n\n%d members, %s\nJoin with /join %s",
		comm.Name, comm.Slug, desc, comm.MemberCount, visibility, comm.Slug,
	))
}

func (a *App) handleJoin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	if err := identity.Authorize(u, identity.RoleStandard); err != nil {
		return a.replyAuthError(c, err)
	}
	slug := firstArg(c)
	if slug == "" {
		return c.Send("Usage: /join <slug>")
	}

	status, comm, err := a.comms.JoinBySlug(ctx, strings.ToLower(slug), u.ID)
	var already *communities.AlreadyMemberError
	switch {
	case errors.Is(err, communities.ErrNotFound):
		return c.Send("No community with that slug was found.")
	case errors.As(err, &already):
		return c.Send(already.Error())
	case err != nil:
		return a.replyInternal(ctx, c, err)
	}

	metrics.JoinsTotal.WithLabelValues(string(status)).Inc()
	logger.Info(ctx, "app", "community.join",
		slog.String("status", "ok"),
		slog.String("slug", comm.Slug),
		slog.String("result", string(status)),
	)
	if status == communities.JoinStatusPending {
		return c.Send(fmt.Sprintf("Your request to join %q is pending approval.", comm.Name))
	}
	return c.Send(fmt.Sprintf("Welcome to %q!", comm.Name))
}

func (a *App) handleLeave(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	u, err := a.currentUser(ctx, c)
	if err != nil {
		return a.replyInternal(ctx, c, err)
	}
	if err := identity.Authorize(u, identity.RoleStandard); err != nil {
		return a.replyAuthError(c, err)
	}
	slug := firstArg(c)
	if slug == "" {
		return c.Send("Usage: /leave <slug>")
	}

	comm, err := a.comms.LeaveBySlug(ctx, strings.ToLower(slug), u.ID)
	switch {
	case errors.Is(err, communities.ErrNotFound):
		return c.Send("No community with that slug was found.")
	case errors.Is(err, communities.ErrNotMember):
		return c.Send("You are not a member of that community.")
	case errors.Is(err, communities.ErrCreatorCannotLeave):
		return c.Send("You created this community, so you cannot leave it.")
	case err != nil:
		return a.replyInternal(ctx, c, err)
	}

	return c.Send(fmt.Sprintf("You left %q.", comm.Name))
}

func (a *App) replyAuthError(c tele.Context, err error) error {
	switch {
	case errors.Is(err, identity.ErrNotLinked):
		return c.Send("You need to link your account first. Use /link.")
	case errors.Is(err, identity.ErrForbidden):
		return c.Send("You do not have permission to do that.")
	default:
		return err
	}
}

// replyInternal logs the failure and sends a generic message; internals never
// reach the chat.
func (a *App) replyInternal(ctx context.Context, c tele.Context, err error) error {
	logger.Error(ctx, "app", "handler.internal",
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	_ = c.Send("Something went wrong. Please try again later.")
	return err
}

func firstArg(c tele.Context) string {
	msg := c.Message()
	if msg == nil {
		return ""
	}
	fields := strings.Fields(msg.Payload)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func viewerID(u *identity.User) *string {
	if u == nil || u.ID == "" {
		return nil
	}
	id := u.ID
	return &id
}
