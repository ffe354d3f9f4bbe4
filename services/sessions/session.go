// Package sessions persists per-user conversation state. A session carries
// exactly one active flow (auth linking or the community wizard) as a closed
// tagged union: each flow type holds only the data valid for its state, and
// starting a new flow replaces whatever was active before.
package sessions

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/m3rciful/communibot/services/communities"
)

// TTL is the session lifetime; every save refreshes it.
const TTL = 24 * time.Hour

// Step discriminates the flow union in storage.
type Step string

const (
	// StepAuthAwaitingEmail marks the auth flow waiting for an email address.
	StepAuthAwaitingEmail Step = "auth_awaiting_email"
	// StepAuthAwaitingVerification marks the auth flow waiting for the
	// verification callback.
	StepAuthAwaitingVerification Step = "auth_awaiting_verification"
	// StepWizard marks an in-progress community creation wizard.
	StepWizard Step = "wizard"
)

// Flow is one member of the session state union.
type Flow interface {
	Step() Step
}

// AwaitingEmail is the auth flow right after /link: the next text message is
// treated as an email address. It carries no data of its own.
type AwaitingEmail struct{}

// Step implements Flow.
func (AwaitingEmail) Step() Step { return StepAuthAwaitingEmail }

// AwaitingVerification is the auth flow after the magic link went out.
type AwaitingVerification struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Step implements Flow.
func (AwaitingVerification) Step() Step { return StepAuthAwaitingVerification }

// Expired reports whether the magic link's validity window has passed.
// Expiry is evaluated lazily on read; nothing sweeps sessions in the
// background.
func (a AwaitingVerification) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// WizardFlow is the community creation wizard at steps 1..5, accumulating the
// draft as steps complete.
type WizardFlow struct {
	Pos   int               `json:"pos"`
	Draft communities.Draft `json:"draft"`
}

// Step implements Flow.
func (WizardFlow) Step() Step { return StepWizard }

// Session is the per-user record around the active flow.
type Session struct {
	TelegramID int64
	Flow       Flow
	ExpiresAt  time.Time
}

// EncodeFlow serializes a flow into its step discriminator and JSON payload.
func EncodeFlow(f Flow) (Step, []byte, error) {
	if f == nil {
		return "", nil, fmt.Errorf("nil flow")
	}
	payload, err := json.Marshal(f)
	if err != nil {
		return "", nil, fmt.Errorf("encode session flow: %w", err)
	}
	return f.Step(), payload, nil
}

// DecodeFlow rebuilds a flow from its step discriminator and JSON payload.
// Unknown steps are an error; callers treat such sessions as absent rather
// than guessing at their meaning.
func DecodeFlow(step Step, payload []byte) (Flow, error) {
	switch step {
	case StepAuthAwaitingEmail:
		return AwaitingEmail{}, nil
	case StepAuthAwaitingVerification:
		var f AwaitingVerification
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, fmt.Errorf("decode session flow %q: %w", step, err)
		}
		return f, nil
	case StepWizard:
		var f WizardFlow
		if err := json.Unmarshal(payload, &f); err != nil {
			return nil, fmt.Errorf("decode session flow %q: %w", step, err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown session step %q", step)
	}
}
