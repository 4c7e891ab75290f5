// Package definition persists relationship definitions and their type sets.
//
// A definition is stored as one relationship row plus one type set per
// restricted role. Persisting a definition whose slug is already in use
// overwrites the existing row in place, keeping its ID and associations.
package definition

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/dbx"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/schema"
)

// Repository reads and writes relationship definitions.
type Repository struct {
	db      m2m.Querier
	catalog schema.Catalog
	ops     *dbops.Operations
	logger  *zap.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// NewRepository returns a repository backed by ops.
func NewRepository(ops *dbops.Operations, db m2m.Querier, opts ...Option) *Repository {
	r := &Repository{db: db, catalog: ops.Catalog(), ops: ops, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Persist validates d and stores it. When a definition with the same slug
// exists it is overwritten and d takes over its ID. On success d.ID and the
// role type set IDs are updated.
func (r *Repository) Persist(ctx context.Context, d *m2m.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}

	err := dbx.InTx(ctx, r.db, func(q m2m.Querier) error {
		existing, err := r.getRow(ctx, q, "slug", d.Slug, true)
		switch {
		case err == nil:
			if err := deleteTypeSets(ctx, q, r.catalog, existing.ParentTypes, existing.ChildTypes); err != nil {
				return err
			}
		case m2m.IsDefinitionNotFoundErr(err):
			existing = nil
		default:
			return err
		}

		if d.Parent.TypeSetID, err = writeTypeSet(ctx, q, r.catalog, d.Parent.Types); err != nil {
			return err
		}
		if d.Child.TypeSetID, err = writeTypeSet(ctx, q, r.catalog, d.Child.Types); err != nil {
			return err
		}

		row := RowFrom(d)
		if existing != nil {
			row.ID = existing.ID
			if err := r.updateRow(ctx, q, row); err != nil {
				return err
			}
			d.ID = existing.ID
			r.logger.Info("overwrote relationship definition", zap.String("slug", d.Slug), zap.Int64("id", d.ID))
			return nil
		}

		id, err := r.insertRow(ctx, q, row)
		if err != nil {
			return err
		}
		d.ID = id
		r.logger.Info("created relationship definition", zap.String("slug", d.Slug), zap.Int64("id", d.ID))
		return nil
	})
	if err != nil {
		r.logger.Error("failed to persist relationship definition", zap.String("slug", d.Slug), zap.Error(err))
		return fmt.Errorf("persisting definition %q: %w", d.Slug, err)
	}
	return nil
}

// GetBySlug loads the definition with slug. It returns ErrDefinitionNotFound
// when there is none.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (m2m.Definition, error) {
	return r.get(ctx, "slug", slug)
}

// GetByID loads the definition with id.
func (r *Repository) GetByID(ctx context.Context, id int64) (m2m.Definition, error) {
	return r.get(ctx, "id", id)
}

// All loads every definition, active or not, ordered by ID.
func (r *Repository) All(ctx context.Context) ([]m2m.Definition, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select(Columns...)
	sb.From(r.catalog.Relationships())
	sb.OrderBy("id")

	query, args := sb.Build()

	var rows []Row
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}
	return r.hydrate(ctx, r.db, rows)
}

// Delete removes the definition with slug and every association using it.
// The Result counts the deleted associations.
func (r *Repository) Delete(ctx context.Context, slug string) m2m.Result {
	var res m2m.Result
	err := dbx.InTx(ctx, r.db, func(q m2m.Querier) error {
		row, err := r.getRow(ctx, q, "slug", slug, true)
		if err != nil {
			return err
		}

		res = r.ops.WithQuerier(q).DeleteAssociationsByRelationship(ctx, row.ID)
		if !res.Success {
			return res.Err
		}
		if err := deleteTypeSets(ctx, q, r.catalog, row.ParentTypes, row.ChildTypes); err != nil {
			return err
		}
		return r.deleteRow(ctx, q, row.ID)
	})
	if err != nil {
		r.logger.Error("failed to delete relationship definition", zap.String("slug", slug), zap.Error(err))
		return m2m.Failed(err, "unable to delete relationship %q", slug)
	}

	r.logger.Info("deleted relationship definition", zap.String("slug", slug), zap.Int64("associations", res.Affected))
	return m2m.SucceededCount(res.Affected, "deleted relationship %q and %d associations", slug, res.Affected)
}

// ChangeSlug renames a definition. The definition is stored under a new ID
// and every association is moved to it before the old row is removed.
// It returns ErrSlugTaken when newSlug is in use.
func (r *Repository) ChangeSlug(ctx context.Context, oldSlug, newSlug string) (m2m.Definition, error) {
	if newSlug == "" || len(newSlug) > m2m.MaxSlugLength {
		return m2m.Definition{}, m2m.Invalidf("slug must have 1 to %d characters, got %d", m2m.MaxSlugLength, len(newSlug))
	}

	var renamed m2m.Definition
	err := dbx.InTx(ctx, r.db, func(q m2m.Querier) error {
		old, err := r.getRow(ctx, q, "slug", oldSlug, true)
		if err != nil {
			return err
		}
		if oldSlug == newSlug {
			renamed, err = r.hydrateOne(ctx, q, *old)
			return err
		}

		if _, err := r.getRow(ctx, q, "slug", newSlug, false); err == nil {
			return fmt.Errorf("%w: %q", m2m.ErrSlugTaken, newSlug)
		} else if !m2m.IsDefinitionNotFoundErr(err) {
			return err
		}

		row := *old
		row.Slug = newSlug
		newID, err := r.insertRow(ctx, q, row)
		if err != nil {
			return err
		}
		row.ID = newID

		if res := r.ops.WithQuerier(q).UpdateAssociationsRelationship(ctx, old.ID, newID); !res.Success {
			return res.Err
		}
		if err := r.deleteRow(ctx, q, old.ID); err != nil {
			return err
		}

		renamed, err = r.hydrateOne(ctx, q, row)
		return err
	})
	if err != nil {
		return m2m.Definition{}, fmt.Errorf("changing slug %q to %q: %w", oldSlug, newSlug, err)
	}

	r.logger.Info("changed relationship slug",
		zap.String("old_slug", oldSlug), zap.String("new_slug", newSlug), zap.Int64("id", renamed.ID))
	return renamed, nil
}

func (r *Repository) get(ctx context.Context, column string, value any) (m2m.Definition, error) {
	row, err := r.getRow(ctx, r.db, column, value, false)
	if err != nil {
		return m2m.Definition{}, err
	}
	return r.hydrateOne(ctx, r.db, *row)
}

func (r *Repository) getRow(ctx context.Context, q m2m.Querier, column string, value any, lock bool) (*Row, error) {
	sb := flavor.NewSelectBuilder()
	sb.Select(Columns...)
	sb.From(r.catalog.Relationships())
	sb.Where(sb.Equal(column, value))
	if lock {
		sb.ForUpdate()
	}

	query, args := sb.Build()

	var row Row
	err := sqlx.GetContext(ctx, q, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %v", m2m.ErrDefinitionNotFound, column, value)
	}
	if err != nil {
		return nil, fmt.Errorf("loading definition by %s: %w", column, err)
	}
	return &row, nil
}

func (r *Repository) insertRow(ctx context.Context, q m2m.Querier, row Row) (int64, error) {
	ib := flavor.NewInsertBuilder()
	ib.InsertInto(r.catalog.Relationships())
	ib.Cols(Columns[1:]...)
	ib.Values(row.Values()...)
	ib.SQL("RETURNING id")

	query, args := ib.Build()

	var id int64
	if err := sqlx.GetContext(ctx, q, &id, query, args...); err != nil {
		if dbx.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %q", m2m.ErrSlugTaken, row.Slug)
		}
		return 0, fmt.Errorf("inserting definition: %w", err)
	}
	return id, nil
}

func (r *Repository) updateRow(ctx context.Context, q m2m.Querier, row Row) error {
	ub := flavor.NewUpdateBuilder()
	ub.Update(r.catalog.Relationships())
	values := row.Values()
	assignments := make([]string, len(values))
	for i, col := range Columns[1:] {
		assignments[i] = ub.Assign(col, values[i])
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", row.ID))

	query, args := ub.Build()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating definition: %w", err)
	}
	return nil
}

func (r *Repository) deleteRow(ctx context.Context, q m2m.Querier, id int64) error {
	dlb := flavor.NewDeleteBuilder()
	dlb.DeleteFrom(r.catalog.Relationships())
	dlb.Where(dlb.Equal("id", id))

	query, args := dlb.Build()

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting definition: %w", err)
	}
	return nil
}

func (r *Repository) hydrateOne(ctx context.Context, q m2m.Querier, row Row) (m2m.Definition, error) {
	defs, err := r.hydrate(ctx, q, []Row{row})
	if err != nil {
		return m2m.Definition{}, err
	}
	return defs[0], nil
}

func (r *Repository) hydrate(ctx context.Context, q m2m.Querier, rows []Row) ([]m2m.Definition, error) {
	return Hydrate(ctx, q, r.catalog, rows)
}

// Hydrate converts rows into definitions, loading their type sets with one
// query.
func Hydrate(ctx context.Context, q m2m.Querier, catalog schema.Catalog, rows []Row) ([]m2m.Definition, error) {
	setIDs := make([]int64, 0, 2*len(rows))
	for _, row := range rows {
		setIDs = append(setIDs, row.ParentTypes, row.ChildTypes)
	}
	sets, err := LoadTypeSets(ctx, q, catalog, setIDs)
	if err != nil {
		return nil, err
	}

	defs := make([]m2m.Definition, len(rows))
	for i, row := range rows {
		defs[i] = row.Definition(sets)
	}
	return defs, nil
}
