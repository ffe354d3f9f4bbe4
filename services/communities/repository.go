package communities

import (
	"context"
	"errors"
)

// errDuplicateMembership signals that the (community, user) uniqueness
// constraint rejected an insert. The service maps it to AlreadyMemberError.
var errDuplicateMembership = errors.New("membership already exists")

// Repository is the persistence boundary for communities and memberships.
// The (community, user) primary key in the backing store is the enforcement
// point for concurrent joins; request logic never takes locks of its own.
type Repository interface {
	// GetBySlug returns the community or nil when absent. No visibility
	// filtering happens here; the service decides what the viewer may see.
	GetBySlug(ctx context.Context, slug string) (*Community, error)

	// GetByID returns the community or nil when absent.
	GetByID(ctx context.Context, id string) (*Community, error)

	// List returns communities matching the filter. Private communities are
	// included only when viewerID holds an active membership.
	List(ctx context.Context, f ListFilter, viewerID *string) ([]Community, error)

	// CreateWithCreator inserts the community together with the creator's
	// admin membership as one transaction and fills generated fields.
	// Returns ErrSlugTaken when the slug is not unique.
	CreateWithCreator(ctx context.Context, c *Community) error

	// GetMembership returns the membership row or nil when absent.
	GetMembership(ctx context.Context, communityID, userID string) (*Membership, error)

	// InsertMembership adds a membership row, maintaining the community's
	// active member count. Returns errDuplicateMembership when the row exists.
	InsertMembership(ctx context.Context, m *Membership) error

	// DeleteMembership removes the row and decrements the member count if the
	// membership was active.
	DeleteMembership(ctx context.Context, communityID, userID string) error
}
