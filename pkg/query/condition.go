// Package query composes condition objects into association and relationship
// queries.
//
// A query is built in two phases. The builder accumulates conditions; Finalize
// inspects what the conditions require, picks the element selector and
// renders one SQL statement. The finalized query runs once.
//
//	q, err := engine.Associations().
//		Add(query.Must(query.RelationshipSlug("book_review"))).
//		Add(query.Must(query.ElementID(m2m.RoleParent, 42))).
//		Finalize(ctx)
//	associations, err := q.Results(ctx)
package query

import (
	"github.com/pthm/m2m/internal/sqldsl"
	"github.com/pthm/m2m/pkg/schema"
)

// Condition is a composable predicate. Every condition renders a boolean
// expression that is valid on its own and may add joins. Conditions are
// created through the constructors of this package.
type Condition interface {
	// Where renders the boolean expression.
	Where(env *Env) sqldsl.Expr
	// Joins returns the joins the expression relies on.
	Joins(env *Env) []sqldsl.JoinClause
	// Requirements describes what the condition needs from the query.
	Requirements() Requirements
	condition()
}

// Default identifies a default condition a query adds unless told otherwise.
type Default uint8

const (
	DefaultIsActive Default = 1 << iota
	DefaultHasActiveTypes
	DefaultOrigin
)

// Requirements are declared by conditions and read by Finalize.
type Requirements struct {
	// Translation is set when an element ID should resolve to its
	// translation.
	Translation bool
	// AssociationOnly is set when the condition reads association columns
	// and cannot be used in a relationship query.
	AssociationOnly bool
	// Covers lists the default conditions made redundant by this one.
	Covers Default
}

func (r Requirements) merge(o Requirements) Requirements {
	return Requirements{
		Translation:     r.Translation || o.Translation,
		AssociationOnly: r.AssociationOnly || o.AssociationOnly,
		Covers:          r.Covers | o.Covers,
	}
}

// Env is the render environment of one query. It binds every condition that
// needs a join to an alias that is unique within the query.
type Env struct {
	Catalog schema.Catalog
	// Assoc is the association table alias, empty in relationship queries.
	Assoc string
	// Rel is the relationship table alias.
	Rel      string
	Selector ElementSelector

	aliases *AliasGenerator
	bound   map[Condition]map[string]string
}

func newEnv(catalog schema.Catalog, assoc, rel string, aliases *AliasGenerator) *Env {
	return &Env{
		Catalog: catalog,
		Assoc:   assoc,
		Rel:     rel,
		aliases: aliases,
		bound:   map[Condition]map[string]string{},
	}
}

// alias returns the alias bound to c for base, generating it on first use.
func (e *Env) alias(c Condition, base string) string {
	m, ok := e.bound[c]
	if !ok {
		m = map[string]string{}
		e.bound[c] = m
	}
	if a, ok := m[base]; ok {
		return a
	}
	a := e.aliases.Generate(base)
	m[base] = a
	return a
}

func (e *Env) relCol(column string) sqldsl.Col {
	return sqldsl.Col{Table: e.Rel, Column: column}
}

func (e *Env) assocCol(column string) sqldsl.Col {
	return sqldsl.Col{Table: e.Assoc, Column: column}
}

// composite joins its operands with AND or OR.
type composite struct {
	or       bool
	operands []Condition
}

// And combines conditions with AND. At least one operand is required.
func And(first Condition, rest ...Condition) Condition {
	return &composite{operands: append([]Condition{first}, rest...)}
}

// Or combines conditions with OR. At least one operand is required.
func Or(first Condition, rest ...Condition) Condition {
	return &composite{or: true, operands: append([]Condition{first}, rest...)}
}

// Where renders "((A) AND (B))", each operand parenthesized, order kept.
func (c *composite) Where(env *Env) sqldsl.Expr {
	parts := make([]sqldsl.Expr, len(c.operands))
	for i, op := range c.operands {
		parts[i] = sqldsl.Paren{Expr: op.Where(env)}
	}
	if c.or {
		return sqldsl.Or(parts...)
	}
	return sqldsl.And(parts...)
}

func (c *composite) Joins(env *Env) []sqldsl.JoinClause {
	var joins []sqldsl.JoinClause
	for _, op := range c.operands {
		joins = append(joins, op.Joins(env)...)
	}
	return joins
}

func (c *composite) Requirements() Requirements {
	var r Requirements
	for _, op := range c.operands {
		r = r.merge(op.Requirements())
	}
	return r
}

func (*composite) condition() {}

type not struct {
	operand Condition
}

// Not negates a condition.
func Not(c Condition) Condition {
	return &not{operand: c}
}

func (n *not) Where(env *Env) sqldsl.Expr         { return sqldsl.Not(n.operand.Where(env)) }
func (n *not) Joins(env *Env) []sqldsl.JoinClause { return n.operand.Joins(env) }
func (n *not) Requirements() Requirements         { return n.operand.Requirements() }
func (*not) condition()                           {}

type tautology struct{}

// Tautology matches every row. A query without conditions uses it as its
// root.
func Tautology() Condition {
	return tautology{}
}

func (tautology) Where(*Env) sqldsl.Expr         { return sqldsl.Raw("1=1") }
func (tautology) Joins(*Env) []sqldsl.JoinClause { return nil }
func (tautology) Requirements() Requirements     { return Requirements{} }
func (tautology) condition()                     {}

// Must panics when err is not nil. It suits conditions built from constants.
func Must(c Condition, err error) Condition {
	if err != nil {
		panic(err)
	}
	return c
}

// combine returns the AND of conds, or Tautology for none.
func combine(conds []Condition) Condition {
	switch len(conds) {
	case 0:
		return Tautology()
	case 1:
		return conds[0]
	}
	return And(conds[0], conds[1:]...)
}
