package identity

import "errors"

var (
	// ErrEmailTaken indicates the email is already linked to a different user.
	ErrEmailTaken = errors.New("email is already linked to another account")
	// ErrTelegramBound indicates this Telegram account is already linked to a
	// different email.
	ErrTelegramBound = errors.New("this account is already linked to a different email")
	// ErrTokenInvalid covers unknown, consumed, and mismatched tokens.
	ErrTokenInvalid = errors.New("verification link is invalid")
	// ErrTokenExpired indicates the verification link's validity window passed.
	ErrTokenExpired = errors.New("verification link has expired")
	// ErrNotLinked indicates an operation that requires a linked account.
	// Distinct from ErrForbidden: the user should link, not request a role.
	ErrNotLinked = errors.New("account is not linked yet")
	// ErrForbidden indicates the user's role lacks a required permission.
	ErrForbidden = errors.New("your role does not permit this operation")
)
