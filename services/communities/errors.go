package communities

import (
	"errors"
	"fmt"
)

var (
	// ErrSlugTaken indicates the requested slug already belongs to a community.
	ErrSlugTaken = errors.New("community slug is already taken")
	// ErrNotFound is returned for missing communities, and intentionally also
	// for private communities the requester may not see.
	ErrNotFound = errors.New("community not found")
	// ErrCreatorCannotLeave rejects leave attempts by the community creator.
	ErrCreatorCannotLeave = errors.New("the community creator cannot leave")
	// ErrNotMember is returned when leaving without a membership row.
	ErrNotMember = errors.New("not a member of this community")
)

// AlreadyMemberError rejects a join when a membership row already exists.
// The existing status is kept so the caller can phrase the rejection.
type AlreadyMemberError struct {
	Status MemberStatus
}

func (e *AlreadyMemberError) Error() string {
	switch e.Status {
	case MemberStatusPending:
		return "your join request is already pending approval"
	case MemberStatusBanned:
		return "you are banned from this community"
	default:
		return "you are already a member of this community"
	}
}

// ValidationError reports user-correctable input problems. Flows re-prompt at
// the same step instead of surfacing these as failures.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
