package sessions

import "context"

// Store persists sessions keyed by Telegram user id. Mutations are plain
// read-modify-write without optimistic concurrency: duplicate webhook
// deliveries for one user resolve to last-writer-wins, which is accepted.
type Store interface {
	// Load returns the session, or nil when absent or expired.
	Load(ctx context.Context, telegramID int64) (*Session, error)

	// Save upserts the flow for the user with a refreshed TTL.
	Save(ctx context.Context, telegramID int64, f Flow) error

	// Clear removes the session. Clearing an absent session is not an error.
	Clear(ctx context.Context, telegramID int64) error
}
