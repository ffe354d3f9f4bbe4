package communities

import (
	"context"
	"errors"
	"fmt"

	"github.com/m3rciful/communibot/core/logger"
	"log/slog"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

// Service enforces community invariants over a Repository.
type Service struct {
	repo Repository
}

// NewService builds the membership service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates the draft and creates the community together with the
// creator's admin membership. The creator is an active admin member from the
// moment the community exists.
func (s *Service) Create(ctx context.Context, creatorID string, d Draft) (*Community, error) {
	d, err := ValidateDraft(d)
	if err != nil {
		return nil, err
	}

	c := &Community{
		Slug:      d.Slug,
		Name:      d.Name,
		IsPrivate: d.Private,
		CreatorID: creatorID,
	}
	if d.Description != "" {
		desc := d.Description
		c.Description = &desc
	}

	if err := s.repo.CreateWithCreator(ctx, c); err != nil {
		if errors.Is(err, ErrSlugTaken) {
			return nil, ErrSlugTaken
		}
		logger.Error(ctx, "service.communities", "community.create",
			slog.String("status", "fail"),
			slog.String("slug", d.Slug),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("create community: %w", err)
	}

	logger.Info(ctx, "service.communities", "community.create",
		slog.String("status", "ok"),
		slog.String("slug", c.Slug),
		slog.Bool("private", c.IsPrivate),
	)
	return c, nil
}

// SlugAvailable reports whether no community currently owns slug. The wizard
// uses it for early feedback; Create remains the authoritative check.
func (s *Service) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	c, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return false, err
	}
	return c == nil, nil
}

// GetBySlug returns the community visible to the viewer. Private communities
// answer ErrNotFound rather than a permission error when the viewer is absent
// or not an active member: their existence is not revealed to non-members.
func (s *Service) GetBySlug(ctx context.Context, slug string, viewerID *string) (*Community, error) {
	c, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if c.IsPrivate {
		if viewerID == nil {
			return nil, ErrNotFound
		}
		m, err := s.repo.GetMembership(ctx, c.ID, *viewerID)
		if err != nil {
			return nil, err
		}
		if m == nil || m.Status != MemberStatusActive {
			return nil, ErrNotFound
		}
	}
	return c, nil
}

// List returns one page of communities visible to the viewer.
func (s *Service) List(ctx context.Context, f ListFilter, viewerID *string) (Page, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	// Fetch one extra row to answer HasMore without a count query.
	probe := f
	probe.Limit = f.Limit + 1
	items, err := s.repo.List(ctx, probe, viewerID)
	if err != nil {
		return Page{}, err
	}

	page := Page{Items: items}
	if len(items) > f.Limit {
		page.Items = items[:f.Limit]
		page.HasMore = true
	}
	return page, nil
}

// Join adds userID to the community. Public communities grant an active
// membership immediately; private ones record a pending request. Any existing
// row, whatever its status, blocks a fresh join. Under concurrent joins the
// store's (community, user) uniqueness decides the winner; the loser gets
// AlreadyMemberError, never a second row.
func (s *Service) Join(ctx context.Context, communityID, userID string) (JoinStatus, error) {
	c, err := s.repo.GetByID(ctx, communityID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", ErrNotFound
	}

	if m, err := s.repo.GetMembership(ctx, communityID, userID); err != nil {
		return "", err
	} else if m != nil {
		return "", &AlreadyMemberError{Status: m.Status}
	}

	status := MemberStatusActive
	result := JoinStatusJoined
	if c.IsPrivate {
		status = MemberStatusPending
		result = JoinStatusPending
	}

	err = s.repo.InsertMembership(ctx, &Membership{
		CommunityID: communityID,
		UserID:      userID,
		Role:        MemberRoleMember,
		Status:      status,
	})
	if errors.Is(err, errDuplicateMembership) {
		// Lost a concurrent join. Report the surviving row's status.
		existing := status
		if m, merr := s.repo.GetMembership(ctx, communityID, userID); merr == nil && m != nil {
			existing = m.Status
		}
		return "", &AlreadyMemberError{Status: existing}
	}
	if err != nil {
		return "", fmt.Errorf("join community: %w", err)
	}

	logger.Info(ctx, "service.communities", "community.join",
		slog.String("status", "ok"),
		slog.String("slug", c.Slug),
		slog.String("outcome", string(result)),
	)
	return result, nil
}

// Leave removes userID's membership. The creator can never leave.
func (s *Service) Leave(ctx context.Context, communityID, userID string) error {
	c, err := s.repo.GetByID(ctx, communityID)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNotFound
	}
	if c.CreatorID == userID {
		return ErrCreatorCannotLeave
	}
	return s.repo.DeleteMembership(ctx, communityID, userID)
}

// JoinBySlug resolves the slug without visibility filtering and joins; a
// private community must be joinable by slug even though it is hidden from
// listings and lookups.
func (s *Service) JoinBySlug(ctx context.Context, slug, userID string) (JoinStatus, *Community, error) {
	c, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return "", nil, err
	}
	if c == nil {
		return "", nil, ErrNotFound
	}
	status, err := s.Join(ctx, c.ID, userID)
	if err != nil {
		return "", nil, err
	}
	return status, c, nil
}

// LeaveBySlug resolves the slug without visibility filtering and leaves.
func (s *Service) LeaveBySlug(ctx context.Context, slug, userID string) (*Community, error) {
	c, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if err := s.Leave(ctx, c.ID, userID); err != nil {
		return nil, err
	}
	return c, nil
}

// IsMember reports whether userID holds an active membership.
func (s *Service) IsMember(ctx context.Context, communityID, userID string) (bool, error) {
	m, err := s.repo.GetMembership(ctx, communityID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Status == MemberStatusActive, nil
}

// GetUserRole returns the member role, or nil unless the membership is active.
func (s *Service) GetUserRole(ctx context.Context, communityID, userID string) (*MemberRole, error) {
	m, err := s.repo.GetMembership(ctx, communityID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Status != MemberStatusActive {
		return nil, nil
	}
	role := m.Role
	return &role, nil
}
