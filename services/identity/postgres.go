package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository on the shared sqlx handle.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository wraps the shared database handle.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// FindByTelegramID returns the user or nil when absent.
func (r *PostgresRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE telegram_id = $1`, telegramID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by telegram id: %w", err)
	}
	return &u, nil
}

// FindByEmail returns the user or nil when absent.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &u, nil
}

// Create inserts the user and fills generated fields.
func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		u.TelegramID, u.Username, u.FirstName, u.Role,
	)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return errDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetEmail links the email and refreshes the profile fields.
func (r *PostgresRepository) SetEmail(ctx context.Context, userID, email string, username, firstName *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			email = $2,
			username = COALESCE($3, username),
			first_name = COALESCE($4, first_name),
			updated_at = now()
		WHERE id = $1`,
		userID, email, username, firstName,
	)
	if isUniqueViolation(err) {
		return errDuplicate
	}
	if err != nil {
		return fmt.Errorf("set user email: %w", err)
	}
	return nil
}

// CreateLinkToken stores a fresh token.
func (r *PostgresRepository) CreateLinkToken(ctx context.Context, t *LinkToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO link_tokens (token, telegram_id, email, username, first_name, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.Token, t.TelegramID, t.Email, t.Username, t.FirstName, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert link token: %w", err)
	}
	return nil
}

// FindLinkToken returns the token or nil when unknown.
func (r *PostgresRepository) FindLinkToken(ctx context.Context, token string) (*LinkToken, error) {
	var t LinkToken
	err := r.db.GetContext(ctx, &t, `SELECT * FROM link_tokens WHERE token = $1`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find link token: %w", err)
	}
	return &t, nil
}

// ConsumeLinkToken marks the token used.
func (r *PostgresRepository) ConsumeLinkToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE link_tokens SET consumed_at = now() WHERE token = $1 AND consumed_at IS NULL`,
		token,
	)
	if err != nil {
		return fmt.Errorf("consume link token: %w", err)
	}
	return nil
}
