// Package wizard drives the step-by-step community creation conversation.
// Each answer advances the draft one step; the community exists only after
// the final confirmation.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/communibot/core/logger"
	"github.com/m3rciful/communibot/core/metrics"
	"github.com/m3rciful/communibot/services/communities"
	"github.com/m3rciful/communibot/services/sessions"
	"log/slog"
)

const component = "flow.wizard"

// Wizard step positions.
const (
	stepSlug = iota + 1
	stepName
	stepDescription
	stepVisibility
	stepConfirm
)

// skipWord is the literal answer that leaves the description empty.
const skipWord = "skip"

// Machine runs the creation wizard. Validation happens per step so users get
// immediate feedback, but the communities service re-validates the whole
// draft at commit; the wizard never bypasses it.
type Machine struct {
	comms    *communities.Service
	sessions sessions.Store
}

// NewMachine wires the wizard.
func NewMachine(comms *communities.Service, store sessions.Store) *Machine {
	return &Machine{comms: comms, sessions: store}
}

// Start handles /newcommunity, replacing any other active flow.
func (m *Machine) Start(ctx context.Context, telegramID int64) (string, error) {
	if err := m.sessions.Save(ctx, telegramID, sessions.WizardFlow{Pos: stepSlug}); err != nil {
		return "", err
	}
	return "Let's create a community. First, pick a slug: 3-50 characters, lowercase letters, digits, - and _ only.", nil
}

// HandleText consumes an answer for the wizard's current step. Invalid input
// re-prompts without advancing.
func (m *Machine) HandleText(ctx context.Context, userID string, telegramID int64, f sessions.WizardFlow, text string) (string, error) {
	text = strings.TrimSpace(text)

	switch f.Pos {
	case stepSlug:
		return m.handleSlug(ctx, telegramID, f, text)
	case stepName:
		return m.handleName(ctx, telegramID, f, text)
	case stepDescription:
		return m.handleDescription(ctx, telegramID, f, text)
	case stepVisibility:
		return m.handleVisibility(ctx, telegramID, f, text)
	case stepConfirm:
		return m.handleConfirm(ctx, userID, telegramID, f, text)
	default:
		// A position this build does not know; restart cleanly.
		_ = m.sessions.Clear(ctx, telegramID)
		return "Something went wrong with the wizard. Use /newcommunity to start over.", nil
	}
}

func (m *Machine) handleSlug(ctx context.Context, telegramID int64, f sessions.WizardFlow, text string) (string, error) {
	slug, err := communities.ValidateSlug(text)
	if err != nil {
		return "Invalid slug: use 3-50 characters, lowercase letters, digits, - and _ only. Try another one.", nil
	}
	free, err := m.comms.SlugAvailable(ctx, slug)
	if err != nil {
		return "", err
	}
	if !free {
		return fmt.Sprintf("The slug %q is already taken. Try another one.", slug), nil
	}

	f.Draft.Slug = slug
	f.Pos = stepName
	if err := m.sessions.Save(ctx, telegramID, f); err != nil {
		return "", err
	}
	return "Great. Now give your community a display name (3-100 characters).", nil
}

func (m *Machine) handleName(ctx context.Context, telegramID int64, f sessions.WizardFlow, text string) (string, error) {
	name, err := communities.ValidateName(text)
	if err != nil {
		return "Invalid name: 3-100 characters. Try again.", nil
	}

	f.Draft.Name = name
	f.Pos = stepDescription
	if err := m.sessions.Save(ctx, telegramID, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("Optionally describe the community (up to 500 characters), or send %q to leave it empty.", skipWord), nil
}

func (m *Machine) handleDescription(ctx context.Context, telegramID int64, f sessions.WizardFlow, text string) (string, error) {
	if strings.EqualFold(text, skipWord) {
		f.Draft.Description = ""
	} else {
		desc, err := communities.ValidateDescription(text)
		if err != nil {
			return fmt.Sprintf("The description is too long (500 characters max). Shorten it, or send %q.", skipWord), nil
		}
		f.Draft.Description = desc
	}

	f.Pos = stepVisibility
	if err := m.sessions.Save(ctx, telegramID, f); err != nil {
		return "", err
	}
	return "Should the community be public or private? Answer \"public\" or \"private\".", nil
}

func (m *Machine) handleVisibility(ctx context.Context, telegramID int64, f sessions.WizardFlow, text string) (string, error) {
	switch strings.ToLower(text) {
	case "public":
		f.Draft.Private = false
	case "private":
		f.Draft.Private = true
	default:
		return "Please answer \"public\" or \"private\".", nil
	}

	f.Pos = stepConfirm
	if err := m.sessions.Save(ctx, telegramID, f); err != nil {
		return "", err
	}
	return summary(f.Draft) + "\n\nSend \"create\" to confirm, \"back\" to change the visibility, or \"cancel\" to abort.", nil
}

func (m *Machine) handleConfirm(ctx context.Context, userID string, telegramID int64, f sessions.WizardFlow, text string) (string, error) {
	switch strings.ToLower(text) {
	case "cancel":
		if err := m.sessions.Clear(ctx, telegramID); err != nil {
			return "", err
		}
		return "Community creation cancelled. Nothing was created.", nil

	case "back":
		// Only the previous step is reachable; earlier answers are committed.
		f.Pos = stepVisibility
		if err := m.sessions.Save(ctx, telegramID, f); err != nil {
			return "", err
		}
		return "Should the community be public or private? Answer \"public\" or \"private\".", nil

	case "create":
		return m.commit(ctx, userID, telegramID, f)

	default:
		return "Please send \"create\", \"back\" or \"cancel\".", nil
	}
}

// commit creates the community. The wizard session ends here whatever the
// outcome; a taken slug means starting over, since the answer was valid when
// given and only a concurrent creation invalidated it.
func (m *Machine) commit(ctx context.Context, userID string, telegramID int64, f sessions.WizardFlow) (string, error) {
	if err := m.sessions.Clear(ctx, telegramID); err != nil {
		return "", err
	}

	c, err := m.comms.Create(ctx, userID, f.Draft)
	if errors.Is(err, communities.ErrSlugTaken) {
		return fmt.Sprintf("Sorry, the slug %q was just taken by someone else. Use /newcommunity to try again.", f.Draft.Slug), nil
	}
	if communities.IsValidation(err) {
		logger.Warn(ctx, component, "wizard.commit",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Sprintf("The draft was rejected (%s). Use /newcommunity to start over.", err), nil
	}
	if err != nil {
		return "", err
	}

	metrics.CommunitiesCreatedTotal.Inc()
	logger.Info(ctx, component, "wizard.created",
		slog.String("status", "ok"),
		slog.Int64("user_id", telegramID),
		slog.String("slug", c.Slug),
	)
	return fmt.Sprintf("Done! Community %q (%s) is live and you are its admin.", c.Name, c.Slug), nil
}

func summary(d communities.Draft) string {
	visibility := "public"
	if d.Private {
		visibility = "private"
	}
	desc := d.Description
	if desc == "" {
		desc = "(none)"
	}
	return fmt.Sprintf(
		"Here is your community:\nSlug: %s\nName: %s\nDescription: %s\nVisibility: %s",
		d.Slug, d.Name, desc, visibility,
	)
}
