package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps window counters in the rate_counters table. The upsert
// below both opens/extends the window and adds the points in one statement,
// which is what makes TryConsume atomic under concurrent updates.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps the shared database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const incrQuery = `
INSERT INTO rate_counters (key, window_start, count)
VALUES ($1, now(), $2)
ON CONFLICT (key) DO UPDATE SET
    count = CASE
        WHEN rate_counters.window_start <= now() - make_interval(secs => $3)
        THEN EXCLUDED.count
        ELSE rate_counters.count + EXCLUDED.count
    END,
    window_start = CASE
        WHEN rate_counters.window_start <= now() - make_interval(secs => $3)
        THEN now()
        ELSE rate_counters.window_start
    END
RETURNING count, window_start`

// Incr adds points to the counter behind key, resetting the window first when
// it has elapsed.
func (s *PostgresStore) Incr(ctx context.Context, key string, points int, window time.Duration) (int, time.Time, error) {
	var row struct {
		Count       int       `db:"count"`
		WindowStart time.Time `db:"window_start"`
	}
	if err := s.db.GetContext(ctx, &row, incrQuery, key, points, window.Seconds()); err != nil {
		return 0, time.Time{}, fmt.Errorf("rate counter incr: %w", err)
	}
	return row.Count, row.WindowStart, nil
}
