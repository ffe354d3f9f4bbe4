package identity

import (
	"context"
	"errors"
)

// errDuplicate signals a unique-constraint rejection on users (telegram_id or
// email). The service decides which conflict it was.
var errDuplicate = errors.New("identity row already exists")

// Repository is the persistence boundary for users and link tokens.
type Repository interface {
	// FindByTelegramID returns the user or nil when absent.
	FindByTelegramID(ctx context.Context, telegramID int64) (*User, error)

	// FindByEmail returns the user or nil when absent.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create inserts the user and fills generated fields. Returns
	// errDuplicate when the telegram id is already present.
	Create(ctx context.Context, u *User) error

	// SetEmail links the email and refreshes profile fields. Returns
	// errDuplicate when the email is bound elsewhere.
	SetEmail(ctx context.Context, userID, email string, username, firstName *string) error

	// CreateLinkToken stores a fresh token.
	CreateLinkToken(ctx context.Context, t *LinkToken) error

	// FindLinkToken returns the token or nil when unknown.
	FindLinkToken(ctx context.Context, token string) (*LinkToken, error)

	// ConsumeLinkToken marks the token used.
	ConsumeLinkToken(ctx context.Context, token string) error
}
