// Package dbops is the only layer that issues raw DDL and DML against the
// relationship tables.
//
// Mutations report their outcome as an m2m.Result instead of an error so that
// batch callers (migration, cleanup) can aggregate partial failures and keep
// going. Read-only probes return ordinary errors.
package dbops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/schema"
)

var flavor = sqlbuilder.PostgreSQL

var associationColumns = []string{"id", "relationship_id", "parent_id", "child_id", "intermediary_id"}

// Operations runs statements against the relationship tables.
type Operations struct {
	db      m2m.Querier
	catalog schema.Catalog
	logger  *zap.Logger
}

// Option configures Operations.
type Option func(*Operations)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Operations) { o.logger = l }
}

// New returns Operations for db using the table names of catalog.
func New(db m2m.Querier, catalog schema.Catalog, opts ...Option) *Operations {
	o := &Operations{db: db, catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithQuerier returns a copy of o running on q, typically a transaction.
func (o *Operations) WithQuerier(q m2m.Querier) *Operations {
	c := *o
	c.db = q
	return &c
}

// Catalog returns the table catalog in use.
func (o *Operations) Catalog() schema.Catalog { return o.catalog }

// TableExists reports whether the physical table for t exists.
func (o *Operations) TableExists(ctx context.Context, t schema.Table) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, o.db, &exists, "SELECT to_regclass($1) IS NOT NULL", o.catalog.Name(t))
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", o.catalog.Name(t), err)
	}
	return exists, nil
}

// MissingTables returns the engine tables that do not exist yet.
func (o *Operations) MissingTables(ctx context.Context) ([]schema.Table, error) {
	var missing []schema.Table
	for _, t := range schema.EngineTables {
		ok, err := o.TableExists(ctx, t)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// CreateTables creates the association, relationship and type set tables.
// Existing tables are left untouched and reported as such.
func (o *Operations) CreateTables(ctx context.Context) m2m.ResultSet {
	var rs m2m.ResultSet
	for _, t := range schema.EngineTables {
		rs.Add(o.createTable(ctx, t))
	}
	return rs
}

func (o *Operations) createTable(ctx context.Context, t schema.Table) m2m.Result {
	name := o.catalog.Name(t)

	exists, err := o.TableExists(ctx, t)
	if err != nil {
		return m2m.Failed(err, "unable to create table %s", name)
	}
	if exists {
		return m2m.Succeeded("table %s already exists", name)
	}

	stmts, err := o.catalog.CreateStatements(t)
	if err != nil {
		return m2m.Failed(err, "unable to create table %s", name)
	}
	for _, stmt := range stmts {
		if _, err := o.db.ExecContext(ctx, stmt); err != nil {
			o.logger.Error("failed to create table", zap.String("table", name), zap.Error(err))
			return m2m.Failed(err, "unable to create table %s", name)
		}
	}

	o.logger.Info("created table", zap.String("table", name))
	return m2m.Succeeded("created table %s", name)
}

// DropTables drops the engine tables. Used by the reset path of the migration.
func (o *Operations) DropTables(ctx context.Context) m2m.ResultSet {
	var rs m2m.ResultSet
	for i := len(schema.EngineTables) - 1; i >= 0; i-- {
		name := o.catalog.Name(schema.EngineTables[i])
		if _, err := o.db.ExecContext(ctx, o.catalog.DropStatement(schema.EngineTables[i])); err != nil {
			o.logger.Error("failed to drop table", zap.String("table", name), zap.Error(err))
			rs.Add(m2m.Failed(err, "unable to drop table %s", name))
			continue
		}
		rs.Add(m2m.Succeeded("dropped table %s", name))
	}
	return rs
}

// InsertAssociation stores a and returns the new association ID.
func (o *Operations) InsertAssociation(ctx context.Context, a m2m.Association) (int64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	ib := flavor.NewInsertBuilder()
	ib.InsertInto(o.catalog.Associations())
	ib.Cols("relationship_id", "parent_id", "child_id", "intermediary_id")
	ib.Values(a.RelationshipID, a.ParentID, a.ChildID, a.IntermediaryID)
	ib.SQL("RETURNING id")

	query, args := ib.Build()

	var id int64
	if err := sqlx.GetContext(ctx, o.db, &id, query, args...); err != nil {
		o.logger.Error("failed to insert association",
			zap.Int64("relationship_id", a.RelationshipID),
			zap.Int64("parent_id", a.ParentID),
			zap.Int64("child_id", a.ChildID),
			zap.Error(err))
		return 0, fmt.Errorf("inserting association: %w", err)
	}
	return id, nil
}

// GetAssociation loads one association by ID.
func (o *Operations) GetAssociation(ctx context.Context, id int64) (m2m.Association, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select(associationColumns...)
	sb.From(o.catalog.Associations())
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var a m2m.Association
	err := sqlx.GetContext(ctx, o.db, &a, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return m2m.Association{}, fmt.Errorf("association %d: %w", id, m2m.ErrElementNotFound)
	}
	if err != nil {
		return m2m.Association{}, fmt.Errorf("loading association %d: %w", id, err)
	}
	return a, nil
}

// DeleteAssociation removes one association row. The intermediary post, if
// any, is left to the caller.
func (o *Operations) DeleteAssociation(ctx context.Context, id int64) m2m.Result {
	dlb := flavor.NewDeleteBuilder()
	dlb.DeleteFrom(o.catalog.Associations())
	dlb.Where(dlb.Equal("id", id))

	return o.execDelete(ctx, dlb, "association %d", id)
}

// DeleteAssociationsByRelationship removes every association of a relationship.
func (o *Operations) DeleteAssociationsByRelationship(ctx context.Context, relationshipID int64) m2m.Result {
	dlb := flavor.NewDeleteBuilder()
	dlb.DeleteFrom(o.catalog.Associations())
	dlb.Where(dlb.Equal("relationship_id", relationshipID))

	return o.execDelete(ctx, dlb, "associations of relationship %d", relationshipID)
}

// DeleteAssociationsByIDs removes the given association rows in one statement.
func (o *Operations) DeleteAssociationsByIDs(ctx context.Context, ids []int64) m2m.Result {
	if len(ids) == 0 {
		return m2m.SucceededCount(0, "no associations to delete")
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	dlb := flavor.NewDeleteBuilder()
	dlb.DeleteFrom(o.catalog.Associations())
	dlb.Where(dlb.In("id", values...))

	return o.execDelete(ctx, dlb, "%d associations", len(ids))
}

// DeleteAssociationsByElement removes every association in which the element
// takes part, in any role. Only roles whose domain matches are considered,
// since IDs of different domains may collide.
func (o *Operations) DeleteAssociationsByElement(ctx context.Context, domain m2m.Domain, elementID int64) m2m.Result {
	if !domain.Valid() {
		return m2m.Failed(m2m.Invalidf("unknown domain %q", domain), "unable to delete associations")
	}
	if elementID <= 0 {
		return m2m.Failed(m2m.Invalidf("element id must be positive, got %d", elementID), "unable to delete associations")
	}

	format := "DELETE FROM " + o.catalog.Associations() + " AS assoc" +
		" USING " + o.catalog.Relationships() + " AS rel" +
		" WHERE rel.id = assoc.relationship_id AND (" +
		"(rel.parent_domain = %v AND assoc.parent_id = %v)" +
		" OR (rel.child_domain = %v AND assoc.child_id = %v)"
	args := []any{string(domain), elementID, string(domain), elementID}
	// Intermediary elements are always posts.
	if domain == m2m.DomainPosts {
		format += " OR assoc.intermediary_id = %v"
		args = append(args, elementID)
	}
	query, args := sqlbuilder.Buildf(format+")", args...).BuildWithFlavor(flavor)

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		o.logger.Error("failed to delete associations of element",
			zap.String("domain", string(domain)), zap.Int64("element_id", elementID), zap.Error(err))
		return m2m.Failed(err, "unable to delete associations of %s element %d", domain, elementID)
	}
	n, _ := res.RowsAffected()
	return m2m.SucceededCount(n, "deleted %d associations of %s element %d", n, domain, elementID)
}

// UpdateAssociationsRelationship moves every association of oldID to newID in
// a single statement. Used when a relationship slug changes.
func (o *Operations) UpdateAssociationsRelationship(ctx context.Context, oldID, newID int64) m2m.Result {
	ub := flavor.NewUpdateBuilder()
	ub.Update(o.catalog.Associations())
	ub.Set(ub.Assign("relationship_id", newID))
	ub.Where(ub.Equal("relationship_id", oldID))

	query, args := ub.Build()

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		o.logger.Error("failed to relink associations",
			zap.Int64("old_relationship_id", oldID), zap.Int64("new_relationship_id", newID), zap.Error(err))
		return m2m.Failed(err, "unable to move associations from relationship %d to %d", oldID, newID)
	}
	n, _ := res.RowsAffected()
	return m2m.SucceededCount(n, "moved %d associations from relationship %d to %d", n, oldID, newID)
}

func (o *Operations) execDelete(ctx context.Context, dlb *sqlbuilder.DeleteBuilder, format string, args ...any) m2m.Result {
	query, qargs := dlb.Build()
	what := fmt.Sprintf(format, args...)

	res, err := o.db.ExecContext(ctx, query, qargs...)
	if err != nil {
		o.logger.Error("failed to delete associations", zap.String("target", what), zap.Error(err))
		return m2m.Failed(err, "unable to delete %s", what)
	}
	n, _ := res.RowsAffected()
	return m2m.SucceededCount(n, "deleted %s (%d rows)", what, n)
}
