package communities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresRepository implements Repository on the shared sqlx handle.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository wraps the shared database handle.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetBySlug returns the community or nil when absent.
func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*Community, error) {
	var c Community
	err := r.db.GetContext(ctx, &c, `SELECT * FROM communities WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get community by slug: %w", err)
	}
	return &c, nil
}

// GetByID returns the community or nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Community, error) {
	var c Community
	err := r.db.GetContext(ctx, &c, `SELECT * FROM communities WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get community by id: %w", err)
	}
	return &c, nil
}

// List returns communities visible to viewerID matching the filter.
func (r *PostgresRepository) List(ctx context.Context, f ListFilter, viewerID *string) ([]Community, error) {
	var order string
	switch f.Sort {
	case SortPopular:
		order = "c.member_count DESC, c.created_at DESC"
	case SortAlphabetical:
		order = "c.name ASC"
	default:
		order = "c.created_at DESC"
	}

	// A NULL viewer makes the membership subquery NULL, which is not TRUE,
	// so private communities drop out for anonymous listings.
	query := `
		SELECT c.* FROM communities c
		WHERE ($1 = '' OR c.name ILIKE '%' || $1 || '%' OR c.slug ILIKE '%' || $1 || '%')
		  AND (c.is_private = FALSE OR EXISTS (
		      SELECT 1 FROM community_members m
		      WHERE m.community_id = c.id AND m.user_id = $2::uuid AND m.status = 'active'))
		ORDER BY ` + order + `
		LIMIT $3 OFFSET $4`

	items := []Community{}
	if err := r.db.SelectContext(ctx, &items, query, f.Search, viewerID, f.Limit, f.Offset); err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	return items, nil
}

// CreateWithCreator inserts the community and the creator's admin membership
// in one transaction so a community never exists without its first member.
func (r *PostgresRepository) CreateWithCreator(ctx context.Context, c *Community) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create community: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var desc sql.NullString
	if c.Description != nil && *c.Description != "" {
		desc = sql.NullString{String: *c.Description, Valid: true}
	}

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO communities (slug, name, description, is_private, creator_id, member_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		RETURNING id, member_count, post_count, created_at, updated_at`,
		c.Slug, c.Name, desc, c.IsPrivate, c.CreatorID,
	)
	if err := row.Scan(&c.ID, &c.MemberCount, &c.PostCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert community: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO community_members (community_id, user_id, role, status)
		VALUES ($1, $2, 'admin', 'active')`,
		c.ID, c.CreatorID,
	); err != nil {
		return fmt.Errorf("insert creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create community: %w", err)
	}
	return nil
}

// GetMembership returns the membership row or nil when absent.
func (r *PostgresRepository) GetMembership(ctx context.Context, communityID, userID string) (*Membership, error) {
	var m Membership
	err := r.db.GetContext(ctx, &m, `
		SELECT * FROM community_members WHERE community_id = $1 AND user_id = $2`,
		communityID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return &m, nil
}

// InsertMembership adds the row and bumps the active member count in one
// transaction. The primary key on (community_id, user_id) decides races.
func (r *PostgresRepository) InsertMembership(ctx context.Context, m *Membership) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert membership: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO community_members (community_id, user_id, role, status)
		VALUES ($1, $2, $3, $4)
		RETURNING joined_at`,
		m.CommunityID, m.UserID, m.Role, m.Status,
	)
	if err := row.Scan(&m.JoinedAt); err != nil {
		if isUniqueViolation(err) {
			return errDuplicateMembership
		}
		return fmt.Errorf("insert membership: %w", err)
	}

	if m.Status == MemberStatusActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE communities SET member_count = member_count + 1, updated_at = now()
			WHERE id = $1`,
			m.CommunityID,
		); err != nil {
			return fmt.Errorf("bump member count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert membership: %w", err)
	}
	return nil
}

// DeleteMembership removes the row, adjusting the member count when the
// deleted membership was active.
func (r *PostgresRepository) DeleteMembership(ctx context.Context, communityID, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete membership: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status MemberStatus
	err = tx.GetContext(ctx, &status, `
		DELETE FROM community_members WHERE community_id = $1 AND user_id = $2
		RETURNING status`,
		communityID, userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotMember
	}
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}

	if status == MemberStatusActive {
		if _, err := tx.ExecContext(ctx, `
			UPDATE communities SET member_count = member_count - 1, updated_at = now()
			WHERE id = $1 AND member_count > 0`,
			communityID,
		); err != nil {
			return fmt.Errorf("drop member count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete membership: %w", err)
	}
	return nil
}
