package sessions

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	step      Step
	payload   []byte
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation for tests and development.
// It round-trips flows through the codec so tests exercise the same
// serialization as the database store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]memoryEntry

	// Now can be overridden in tests to control TTL expiry.
	Now func() time.Time
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]memoryEntry),
		Now:      time.Now,
	}
}

// Load returns the session, or nil when absent or expired.
func (s *MemoryStore) Load(_ context.Context, telegramID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[telegramID]
	if !ok {
		return nil, nil
	}
	if s.Now().After(e.expiresAt) {
		delete(s.sessions, telegramID)
		return nil, nil
	}
	flow, err := DecodeFlow(e.step, e.payload)
	if err != nil {
		delete(s.sessions, telegramID)
		return nil, nil
	}
	return &Session{TelegramID: telegramID, Flow: flow, ExpiresAt: e.expiresAt}, nil
}

// Save upserts the flow with a refreshed TTL.
func (s *MemoryStore) Save(_ context.Context, telegramID int64, f Flow) error {
	step, payload, err := EncodeFlow(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[telegramID] = memoryEntry{step: step, payload: payload, expiresAt: s.Now().Add(TTL)}
	return nil
}

// Clear removes the session.
func (s *MemoryStore) Clear(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, telegramID)
	return nil
}
