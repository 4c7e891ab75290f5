// Package association creates and deletes associations while enforcing the
// rules of their relationship definition: distinctness, accepted post types
// and cardinality.
package association

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/dbx"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/host"
)

// Driver writes associations.
type Driver struct {
	db       m2m.Querier
	ops      *dbops.Operations
	elements host.Elements
	logger   *zap.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// NewDriver returns a driver writing through ops. Transactions are started on
// db when it can begin them.
func NewDriver(db m2m.Querier, ops *dbops.Operations, elements host.Elements, opts ...Option) *Driver {
	d := &Driver{db: db, ops: ops, elements: elements, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Request describes a new association.
type Request struct {
	ParentID int64
	ChildID  int64
	// IntermediaryID attaches an existing intermediary post. When it is 0
	// and the definition has an intermediary type, CreateIntermediary makes
	// the driver create an empty one.
	IntermediaryID     int64
	CreateIntermediary bool
}

// Create validates and stores an association under def. Rule violations are
// reported as a failed Result carrying ErrAlreadyAssociated,
// ErrTypeMismatch, ErrCardinalityExceeded or ErrElementNotFound.
//
// The relationship row is locked for the duration of the checks and the
// insert, so concurrent writers cannot exceed a cardinality limit.
func (d *Driver) Create(ctx context.Context, def *m2m.Definition, req Request) (m2m.Association, m2m.Result) {
	a := m2m.Association{
		RelationshipID: def.ID,
		ParentID:       req.ParentID,
		ChildID:        req.ChildID,
		IntermediaryID: req.IntermediaryID,
	}
	fail := func(err error) (m2m.Association, m2m.Result) {
		d.logger.Debug("association rejected",
			zap.String("relationship", def.Slug),
			zap.Int64("parent_id", a.ParentID),
			zap.Int64("child_id", a.ChildID),
			zap.Error(err))
		return m2m.Association{}, m2m.Failed(err, "unable to associate %d with %d in %s", a.ParentID, a.ChildID, def.Slug)
	}

	if err := a.Validate(); err != nil {
		return fail(err)
	}
	for _, role := range []m2m.Role{m2m.RoleParent, m2m.RoleChild} {
		if err := d.checkType(ctx, def, role, a.ElementID(role)); err != nil {
			return fail(err)
		}
	}

	createdIntermediary := false
	if a.IntermediaryID == 0 && req.CreateIntermediary && def.HasIntermediary() {
		id, err := d.elements.CreatePost(ctx, host.Post{Type: def.IntermediaryType, Status: "publish"})
		if err != nil {
			return fail(fmt.Errorf("creating intermediary post: %w", err))
		}
		a.IntermediaryID = id
		createdIntermediary = true
	}

	err := dbx.InTx(ctx, d.db, func(q m2m.Querier) error {
		ops := d.ops.WithQuerier(q)
		if err := ops.LockRelationship(ctx, def.ID); err != nil {
			return err
		}
		if def.IsDistinct {
			exists, err := ops.AssociationExists(ctx, def.ID, a.ParentID, a.ChildID)
			if err != nil {
				return err
			}
			if exists {
				return m2m.ErrAlreadyAssociated
			}
		}
		for _, role := range []m2m.Role{m2m.RoleParent, m2m.RoleChild} {
			n, err := ops.CountElementAssociations(ctx, def.ID, role, a.ElementID(role))
			if err != nil {
				return err
			}
			if c := def.Role(role).Cardinality; !c.Allows(n) {
				return fmt.Errorf("%w: %s %d already has %d associations, limit %s",
					m2m.ErrCardinalityExceeded, role, a.ElementID(role), n, c)
			}
		}
		id, err := ops.InsertAssociation(ctx, a)
		if err != nil {
			return err
		}
		a.ID = id
		return nil
	})
	if err != nil {
		if createdIntermediary {
			if derr := d.elements.DeletePost(ctx, a.IntermediaryID); derr != nil {
				d.logger.Warn("failed to remove intermediary post of rejected association",
					zap.Int64("intermediary_id", a.IntermediaryID), zap.Error(derr))
			}
		}
		return fail(err)
	}

	return a, m2m.SucceededCount(1, "associated %d with %d in %s", a.ParentID, a.ChildID, def.Slug)
}

// checkType verifies that a post element exists and that role accepts its
// type. Elements outside the posts domain are not checked.
func (d *Driver) checkType(ctx context.Context, def *m2m.Definition, role m2m.Role, id int64) error {
	rd := def.Role(role)
	if rd.Domain != m2m.DomainPosts {
		return nil
	}
	p, err := d.elements.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !rd.AcceptsType(p.Type) {
		return fmt.Errorf("%w: %s %d has type %q, %s accepts %v", m2m.ErrTypeMismatch, role, id, p.Type, role, rd.Types)
	}
	return nil
}

// Delete removes the association row and then its intermediary post.
func (d *Driver) Delete(ctx context.Context, a m2m.Association) m2m.Result {
	res := d.ops.DeleteAssociation(ctx, a.ID)
	if !res.Success || !a.HasIntermediary() {
		return res
	}
	if err := d.elements.DeletePost(ctx, a.IntermediaryID); err != nil && !errors.Is(err, m2m.ErrElementNotFound) {
		d.logger.Error("failed to delete intermediary post",
			zap.Int64("association_id", a.ID), zap.Int64("intermediary_id", a.IntermediaryID), zap.Error(err))
		return m2m.Failed(err, "deleted association %d but not its intermediary post %d", a.ID, a.IntermediaryID)
	}
	return res
}
