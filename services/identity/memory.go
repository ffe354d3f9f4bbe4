package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository implementation for tests and
// development, enforcing the same uniqueness rules as the database.
type MemoryRepository struct {
	mu       sync.Mutex
	byTG     map[int64]*User
	byID     map[string]*User
	tokens   map[string]*LinkToken

	// Now can be overridden in tests.
	Now func() time.Time
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byTG:   make(map[int64]*User),
		byID:   make(map[string]*User),
		tokens: make(map[string]*LinkToken),
		Now:    time.Now,
	}
}

func cloneUser(u *User) *User {
	cp := *u
	if u.Email != nil {
		e := *u.Email
		cp.Email = &e
	}
	return &cp
}

// FindByTelegramID returns the user or nil when absent.
func (r *MemoryRepository) FindByTelegramID(_ context.Context, telegramID int64) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byTG[telegramID]; ok {
		return cloneUser(u), nil
	}
	return nil, nil
}

// FindByEmail returns the user or nil when absent.
func (r *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byTG {
		if u.Email != nil && *u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

// Create inserts the user, enforcing telegram id uniqueness.
func (r *MemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byTG[u.TelegramID]; exists {
		return errDuplicate
	}
	now := r.Now()
	u.ID = uuid.NewString()
	u.CreatedAt = now
	u.UpdatedAt = now

	stored := cloneUser(u)
	r.byTG[u.TelegramID] = stored
	r.byID[u.ID] = stored
	return nil
}

// SetEmail links the email, enforcing email uniqueness.
func (r *MemoryRepository) SetEmail(_ context.Context, userID, email string, username, firstName *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byTG {
		if u.ID != userID && u.Email != nil && *u.Email == email {
			return errDuplicate
		}
	}
	u, ok := r.byID[userID]
	if !ok {
		return nil
	}
	e := email
	u.Email = &e
	if username != nil {
		u.Username = username
	}
	if firstName != nil {
		u.FirstName = firstName
	}
	u.UpdatedAt = r.Now()
	return nil
}

// CreateLinkToken stores a fresh token.
func (r *MemoryRepository) CreateLinkToken(_ context.Context, t *LinkToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.Token] = &cp
	return nil
}

// FindLinkToken returns the token or nil when unknown.
func (r *MemoryRepository) FindLinkToken(_ context.Context, token string) (*LinkToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[token]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

// ConsumeLinkToken marks the token used.
func (r *MemoryRepository) ConsumeLinkToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[token]; ok && t.ConsumedAt == nil {
		now := r.Now()
		t.ConsumedAt = &now
	}
	return nil
}
