package communities

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memberKey struct {
	communityID string
	userID      string
}

// MemoryRepository is an in-memory Repository implementation for tests and
// development. It enforces the same uniqueness guarantees as the database.
type MemoryRepository struct {
	mu          sync.Mutex
	bySlug      map[string]*Community
	byID        map[string]*Community
	memberships map[memberKey]*Membership

	// Now can be overridden in tests.
	Now func() time.Time
}

// NewMemoryRepository constructs an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bySlug:      make(map[string]*Community),
		byID:        make(map[string]*Community),
		memberships: make(map[memberKey]*Membership),
		Now:         time.Now,
	}
}

func cloneCommunity(c *Community) *Community {
	cp := *c
	if c.Description != nil {
		d := *c.Description
		cp.Description = &d
	}
	return &cp
}

// GetBySlug returns the community or nil when absent.
func (r *MemoryRepository) GetBySlug(_ context.Context, slug string) (*Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.bySlug[slug]; ok {
		return cloneCommunity(c), nil
	}
	return nil, nil
}

// GetByID returns the community or nil when absent.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		return cloneCommunity(c), nil
	}
	return nil, nil
}

// List returns communities visible to viewerID matching the filter.
func (r *MemoryRepository) List(_ context.Context, f ListFilter, viewerID *string) ([]Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	var items []Community
	for _, c := range r.byID {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(c.Slug, search) {
			continue
		}
		if c.IsPrivate {
			if viewerID == nil {
				continue
			}
			m, ok := r.memberships[memberKey{c.ID, *viewerID}]
			if !ok || m.Status != MemberStatusActive {
				continue
			}
		}
		items = append(items, *cloneCommunity(c))
	}

	switch f.Sort {
	case SortPopular:
		sort.Slice(items, func(i, j int) bool {
			if items[i].MemberCount != items[j].MemberCount {
				return items[i].MemberCount > items[j].MemberCount
			}
			return items[i].CreatedAt.After(items[j].CreatedAt)
		})
	case SortAlphabetical:
		sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	default:
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	}

	if f.Offset >= len(items) {
		return []Community{}, nil
	}
	items = items[f.Offset:]
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items, nil
}

// CreateWithCreator inserts the community and the creator's admin membership
// atomically under the repository lock.
func (r *MemoryRepository) CreateWithCreator(_ context.Context, c *Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.bySlug[c.Slug]; taken {
		return ErrSlugTaken
	}

	now := r.Now()
	c.ID = uuid.NewString()
	c.MemberCount = 1
	c.CreatedAt = now
	c.UpdatedAt = now

	stored := cloneCommunity(c)
	r.bySlug[c.Slug] = stored
	r.byID[c.ID] = stored
	r.memberships[memberKey{c.ID, c.CreatorID}] = &Membership{
		CommunityID: c.ID,
		UserID:      c.CreatorID,
		Role:        MemberRoleAdmin,
		Status:      MemberStatusActive,
		JoinedAt:    now,
	}
	return nil
}

// GetMembership returns the membership row or nil when absent.
func (r *MemoryRepository) GetMembership(_ context.Context, communityID, userID string) (*Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.memberships[memberKey{communityID, userID}]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

// InsertMembership adds the row, enforcing (community, user) uniqueness.
func (r *MemoryRepository) InsertMembership(_ context.Context, m *Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey{m.CommunityID, m.UserID}
	if _, exists := r.memberships[key]; exists {
		return errDuplicateMembership
	}

	m.JoinedAt = r.Now()
	cp := *m
	r.memberships[key] = &cp

	if m.Status == MemberStatusActive {
		if c, ok := r.byID[m.CommunityID]; ok {
			c.MemberCount++
			c.UpdatedAt = m.JoinedAt
		}
	}
	return nil
}

// DeleteMembership removes the row, adjusting the member count for active rows.
func (r *MemoryRepository) DeleteMembership(_ context.Context, communityID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := memberKey{communityID, userID}
	m, ok := r.memberships[key]
	if !ok {
		return ErrNotMember
	}
	delete(r.memberships, key)

	if m.Status == MemberStatusActive {
		if c, ok := r.byID[communityID]; ok && c.MemberCount > 0 {
			c.MemberCount--
			c.UpdatedAt = r.Now()
		}
	}
	return nil
}
