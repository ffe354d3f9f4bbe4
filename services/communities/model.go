// Package communities owns the Community and Membership records and enforces
// their uniqueness, visibility, and join/leave invariants. All mutations of
// these tables go through the Service so the invariants are enforced in one
// place.
package communities

import "time"

// MemberRole is the role a user holds inside a community.
type MemberRole string

const (
	// MemberRoleAdmin can manage the community.
	MemberRoleAdmin MemberRole = "admin"
	// MemberRoleModerator can moderate content.
	MemberRoleModerator MemberRole = "moderator"
	// MemberRoleMember is a regular member.
	MemberRoleMember MemberRole = "member"
)

// MemberStatus is the lifecycle status of a membership row.
type MemberStatus string

const (
	// MemberStatusActive grants membership rights.
	MemberStatusActive MemberStatus = "active"
	// MemberStatusPending awaits approval (private communities).
	MemberStatusPending MemberStatus = "pending"
	// MemberStatusBanned blocks the user from rejoining.
	MemberStatusBanned MemberStatus = "banned"
)

// Community is a named group with public or private visibility.
type Community struct {
	ID          string    `db:"id"`
	Slug        string    `db:"slug"`
	Name        string    `db:"name"`
	Description *string   `db:"description"`
	IsPrivate   bool      `db:"is_private"`
	CreatorID   string    `db:"creator_id"`
	MemberCount int       `db:"member_count"`
	PostCount   int       `db:"post_count"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Membership is the join relation between a user and a community.
type Membership struct {
	CommunityID string       `db:"community_id"`
	UserID      string       `db:"user_id"`
	Role        MemberRole   `db:"role"`
	Status      MemberStatus `db:"status"`
	JoinedAt    time.Time    `db:"joined_at"`
}

// Draft carries the validated input for creating a community.
type Draft struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Private     bool   `json:"private"`
}

// Sort selects the ordering for community listings.
type Sort string

const (
	// SortNewest orders by creation time descending.
	SortNewest Sort = "newest"
	// SortPopular orders by member count descending.
	SortPopular Sort = "popular"
	// SortAlphabetical orders by name ascending.
	SortAlphabetical Sort = "alphabetical"
)

// ListFilter controls List queries.
type ListFilter struct {
	Search string
	Sort   Sort
	Limit  int
	Offset int
}

// Page is one page of a community listing.
type Page struct {
	Items   []Community
	HasMore bool
}

// JoinStatus reports how a join request ended up.
type JoinStatus string

const (
	// JoinStatusJoined means the membership is active immediately.
	JoinStatusJoined JoinStatus = "joined"
	// JoinStatusPending means the membership awaits approval.
	JoinStatusPending JoinStatus = "pending"
)
