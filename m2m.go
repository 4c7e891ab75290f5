// Package m2m holds the value types shared by the relationship/association
// engine: relationship definitions, associations, the closed enumerations
// describing roles, domains and origins, and the result types used to report
// operational outcomes from batch work.
//
// The engine itself lives in the pkg/ subpackages. This package stays free of
// SQL so that callers can depend on the types without pulling in the query
// layer.
package m2m

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Querier executes statements against PostgreSQL.
// Implemented by *sqlx.DB and *sqlx.Tx.
//
// Every component accepts a Querier so it can run inside a caller-supplied
// transaction. Components that need a transaction of their own start one when
// the Querier also implements Beginner, and otherwise run on the Querier as is.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Beginner is implemented by *sqlx.DB.
type Beginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Role identifies the position an element takes in an association.
type Role string

const (
	RoleParent       Role = "parent"
	RoleChild        Role = "child"
	RoleIntermediary Role = "intermediary"
)

// Roles lists every role in column order.
var Roles = []Role{RoleParent, RoleChild, RoleIntermediary}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleParent, RoleChild, RoleIntermediary:
		return true
	}
	return false
}

// IsParentOrChild reports whether r is one of the two primary roles.
func (r Role) IsParentOrChild() bool {
	return r == RoleParent || r == RoleChild
}

// Other returns the opposite primary role. It returns "" for the
// intermediary role.
func (r Role) Other() Role {
	switch r {
	case RoleParent:
		return RoleChild
	case RoleChild:
		return RoleParent
	}
	return ""
}

// Column returns the association column storing the element ID for r.
func (r Role) Column() string {
	return string(r) + "_id"
}

// ParseRole converts s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
	}
	return r, nil
}

// Domain is the kind of element a role accepts.
type Domain string

const (
	DomainPosts Domain = "posts"
	DomainUsers Domain = "users"
	DomainTerms Domain = "terms"
)

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainPosts, DomainUsers, DomainTerms:
		return true
	}
	return false
}

// ParseDomain converts s into a Domain.
func ParseDomain(s string) (Domain, error) {
	d := Domain(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: unknown domain %q", ErrInvalidArgument, s)
	}
	return d, nil
}

// Origin records how a relationship definition came to exist.
type Origin string

const (
	OriginWizard             Origin = "wizard"
	OriginPostReferenceField Origin = "post_reference_field"
	OriginMigration          Origin = "migration"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginWizard, OriginPostReferenceField, OriginMigration:
		return true
	}
	return false
}

// ParseOrigin converts s into an Origin.
func ParseOrigin(s string) (Origin, error) {
	o := Origin(s)
	if !o.Valid() {
		return "", fmt.Errorf("%w: unknown origin %q", ErrInvalidArgument, s)
	}
	return o, nil
}

// Ownership names the role that owns the other side of the relationship.
type Ownership string

const (
	OwnershipNone   Ownership = "none"
	OwnershipParent Ownership = "parent"
	OwnershipChild  Ownership = "child"
)

// Valid reports whether o is one of the known ownership values.
func (o Ownership) Valid() bool {
	switch o {
	case OwnershipNone, OwnershipParent, OwnershipChild:
		return true
	}
	return false
}
