package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/communibot/core/logger"
	"log/slog"
)

// linkTokenTTL bounds magic-link validity.
const linkTokenTTL = 24 * time.Hour

// Service manages user identities and magic-link completion. The users table
// is authoritative for linking; bot-side sessions are a UX convenience only,
// so CompleteLink must work even when the originating session is long gone.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the identity service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// GetByTelegramID returns the user or nil when unknown.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return s.repo.FindByTelegramID(ctx, telegramID)
}

// EnsureUser returns the user for a Telegram id, creating an unlinked
// standard-role record on first contact.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, username, firstName string) (*User, error) {
	u, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	u = &User{
		TelegramID: telegramID,
		Username:   optional(username),
		FirstName:  optional(firstName),
		Role:       RoleStandard,
	}
	err = s.repo.Create(ctx, u)
	if errors.Is(err, errDuplicate) {
		// Another update created the row first; use it.
		return s.repo.FindByTelegramID(ctx, telegramID)
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "service.identity", "user.create",
		slog.String("status", "ok"),
		slog.Int64("user_id", telegramID),
	)
	return u, nil
}

// Authorize checks that the user may perform an operation gated on required.
// It distinguishes "link your account first" (ErrNotLinked) from "your role
// lacks this permission" (ErrForbidden).
func Authorize(u *User, required Role) error {
	if !u.Linked() {
		return ErrNotLinked
	}
	if !u.Role.Covers(required) {
		return ErrForbidden
	}
	return nil
}

// IssueLinkToken mints a single-use verification token for the given email.
func (s *Service) IssueLinkToken(ctx context.Context, telegramID int64, email, username, firstName string) (*LinkToken, error) {
	t := &LinkToken{
		Token:      uuid.NewString(),
		TelegramID: telegramID,
		Email:      email,
		Username:   optional(username),
		FirstName:  optional(firstName),
		ExpiresAt:  s.now().Add(linkTokenTTL),
	}
	if err := s.repo.CreateLinkToken(ctx, t); err != nil {
		return nil, fmt.Errorf("issue link token: %w", err)
	}
	logger.Info(ctx, "service.identity", "link.token_issued",
		slog.String("status", "ok"),
		slog.Int64("user_id", telegramID),
	)
	return t, nil
}

// CompleteLink finalizes linking from the verification callback. The token
// must be known, unconsumed, unexpired, and minted for the same Telegram id.
// Conflicts with existing identities are rejected before anything mutates.
func (s *Service) CompleteLink(ctx context.Context, token string, telegramID int64) (*User, error) {
	t, err := s.repo.FindLinkToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if t == nil || t.ConsumedAt != nil || t.TelegramID != telegramID {
		return nil, ErrTokenInvalid
	}
	if s.now().After(t.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	if other, err := s.repo.FindByEmail(ctx, t.Email); err != nil {
		return nil, err
	} else if other != nil && other.TelegramID != telegramID {
		return nil, ErrEmailTaken
	}

	username := ""
	if t.Username != nil {
		username = *t.Username
	}
	firstName := ""
	if t.FirstName != nil {
		firstName = *t.FirstName
	}
	u, err := s.EnsureUser(ctx, telegramID, username, firstName)
	if err != nil {
		return nil, err
	}
	if u.Linked() {
		if *u.Email == t.Email {
			// Idempotent re-verification of the same pair.
			_ = s.repo.ConsumeLinkToken(ctx, token)
			return u, nil
		}
		return nil, ErrTelegramBound
	}

	err = s.repo.SetEmail(ctx, u.ID, t.Email, t.Username, t.FirstName)
	if errors.Is(err, errDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	if err := s.repo.ConsumeLinkToken(ctx, token); err != nil {
		logger.Warn(ctx, "service.identity", "link.token_consume",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	logger.Info(ctx, "service.identity", "link.completed",
		slog.String("status", "ok"),
		slog.Int64("user_id", telegramID),
	)

	email := t.Email
	u.Email = &email
	return u, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
