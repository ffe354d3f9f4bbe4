// Package identity owns user records, email linking via magic-link tokens,
// and role-based authorization.
package identity

import "time"

// Role orders authorization levels. The ordering is a strict superset
// relation: elevated_admin covers scoped_admin covers standard.
type Role string

const (
	// RoleElevatedAdmin holds every permission.
	RoleElevatedAdmin Role = "elevated_admin"
	// RoleScopedAdmin holds admin permissions within an assigned scope.
	RoleScopedAdmin Role = "scoped_admin"
	// RoleStandard is the default role for new users.
	RoleStandard Role = "standard"
)

func (r Role) rank() int {
	switch r {
	case RoleElevatedAdmin:
		return 2
	case RoleScopedAdmin:
		return 1
	default:
		return 0
	}
}

// Covers reports whether r grants at least the permissions of required.
func (r Role) Covers(required Role) bool {
	return r.rank() >= required.rank()
}

// User is one end-user identity, created lazily on first contact and linked
// to an email once magic-link verification completes.
type User struct {
	ID         string    `db:"id"`
	TelegramID int64     `db:"telegram_id"`
	Email      *string   `db:"email"`
	Username   *string   `db:"username"`
	FirstName  *string   `db:"first_name"`
	Role       Role      `db:"role"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Linked reports whether the user completed email linking.
func (u *User) Linked() bool {
	return u != nil && u.Email != nil && *u.Email != ""
}

// DisplayName returns the best available name for replies.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.FirstName != nil && *u.FirstName != "" {
		return *u.FirstName
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return ""
}

// LinkToken is a single-use emailed verification token.
type LinkToken struct {
	Token      string     `db:"token"`
	TelegramID int64      `db:"telegram_id"`
	Email      string     `db:"email"`
	Username   *string    `db:"username"`
	FirstName  *string    `db:"first_name"`
	ExpiresAt  time.Time  `db:"expires_at"`
	ConsumedAt *time.Time `db:"consumed_at"`
}
