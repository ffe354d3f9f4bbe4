package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/communibot/core/logger"
	"log/slog"
)

// PostgresStore keeps sessions in the sessions table. Postgres has no native
// TTL, so expiry is lazy: expired rows read as absent and are deleted on
// sight, and every save overwrites expires_at.
type PostgresStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresStore wraps the shared database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Load returns the session, or nil when absent or expired.
func (s *PostgresStore) Load(ctx context.Context, telegramID int64) (*Session, error) {
	var row struct {
		Step      Step      `db:"step"`
		Payload   []byte    `db:"payload"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT step, payload, expires_at FROM sessions WHERE telegram_id = $1`,
		telegramID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	if s.now().After(row.ExpiresAt) {
		_ = s.Clear(ctx, telegramID)
		return nil, nil
	}

	flow, err := DecodeFlow(row.Step, row.Payload)
	if err != nil {
		// A step this build no longer understands; drop it and start clean.
		logger.Warn(ctx, "service.sessions", "session.decode",
			slog.Int64("user_id", telegramID),
			slog.String("err", err.Error()),
		)
		_ = s.Clear(ctx, telegramID)
		return nil, nil
	}

	return &Session{TelegramID: telegramID, Flow: flow, ExpiresAt: row.ExpiresAt}, nil
}

// Save upserts the flow with a refreshed TTL.
func (s *PostgresStore) Save(ctx context.Context, telegramID int64, f Flow) error {
	step, payload, err := EncodeFlow(f)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (telegram_id, step, payload, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (telegram_id) DO UPDATE SET
			step = EXCLUDED.step,
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at`,
		telegramID, step, string(payload), s.now().Add(TTL),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the session.
func (s *PostgresStore) Clear(ctx context.Context, telegramID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE telegram_id = $1`, telegramID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
