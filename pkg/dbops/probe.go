package dbops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
)

// CountMaxAssociations returns the highest number of associations that share
// one element in role under the relationship, or 0 when there are none.
//
// For a role with cardinality max = 1 a result above 1 means the data breaks
// the relationship's constraints.
func (o *Operations) CountMaxAssociations(ctx context.Context, relationshipID int64, role m2m.Role) (int, error) {
	if !role.IsParentOrChild() {
		return 0, m2m.Invalidf("cardinality is only tracked for parent and child roles, got %q", role)
	}

	inner := flavor.NewSelectBuilder()
	inner.Select(inner.As("COUNT(*)", "cnt"))
	inner.From(o.catalog.Associations())
	inner.Where(inner.Equal("relationship_id", relationshipID))
	inner.GroupBy(role.Column())

	sb := flavor.NewSelectBuilder()
	sb.Select("COALESCE(MAX(per_element.cnt), 0)")
	sb.From(sb.BuilderAs(inner, "per_element"))

	query, args := sb.Build()

	var n int
	if err := sqlx.GetContext(ctx, o.db, &n, query, args...); err != nil {
		o.logger.Error("failed to probe cardinality",
			zap.Int64("relationship_id", relationshipID), zap.String("role", string(role)), zap.Error(err))
		return 0, fmt.Errorf("counting max associations: %w", err)
	}
	return n, nil
}

// CountElementAssociations returns how many associations of the relationship
// have elementID in role.
func (o *Operations) CountElementAssociations(ctx context.Context, relationshipID int64, role m2m.Role, elementID int64) (int, error) {
	if !role.Valid() {
		return 0, m2m.Invalidf("unknown role %q", role)
	}

	sb := flavor.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(o.catalog.Associations())
	sb.Where(
		sb.Equal("relationship_id", relationshipID),
		sb.Equal(role.Column(), elementID),
	)

	query, args := sb.Build()

	var n int
	if err := sqlx.GetContext(ctx, o.db, &n, query, args...); err != nil {
		return 0, fmt.Errorf("counting associations of element %d: %w", elementID, err)
	}
	return n, nil
}

// CountAssociations returns the number of associations of a relationship.
func (o *Operations) CountAssociations(ctx context.Context, relationshipID int64) (int64, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From(o.catalog.Associations())
	sb.Where(sb.Equal("relationship_id", relationshipID))

	query, args := sb.Build()

	var n int64
	if err := sqlx.GetContext(ctx, o.db, &n, query, args...); err != nil {
		return 0, fmt.Errorf("counting associations: %w", err)
	}
	return n, nil
}

// AssociationExists reports whether parentID and childID are already
// connected under the relationship.
func (o *Operations) AssociationExists(ctx context.Context, relationshipID, parentID, childID int64) (bool, error) {
	inner := flavor.NewSelectBuilder()
	inner.Select("1")
	inner.From(o.catalog.Associations())
	inner.Where(
		inner.Equal("relationship_id", relationshipID),
		inner.Equal("parent_id", parentID),
		inner.Equal("child_id", childID),
	)

	sb := flavor.NewSelectBuilder()
	sb.Select(sb.Exists(inner))

	query, args := sb.Build()

	var exists bool
	if err := sqlx.GetContext(ctx, o.db, &exists, query, args...); err != nil {
		return false, fmt.Errorf("checking association: %w", err)
	}
	return exists, nil
}

// LockRelationship takes a row lock on the relationship until the current
// transaction ends. Association writers lock first so cardinality checks and
// inserts under one relationship are serialized. Outside a transaction the
// lock is released immediately.
func (o *Operations) LockRelationship(ctx context.Context, relationshipID int64) error {
	sb := flavor.NewSelectBuilder()
	sb.Select("id")
	sb.From(o.catalog.Relationships())
	sb.Where(sb.Equal("id", relationshipID))
	sb.ForUpdate()

	query, args := sb.Build()

	var id int64
	err := sqlx.GetContext(ctx, o.db, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("relationship %d: %w", relationshipID, m2m.ErrDefinitionNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking relationship %d: %w", relationshipID, err)
	}
	return nil
}
