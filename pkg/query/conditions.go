package query

import (
	"fmt"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/sqldsl"
)

// ElementOption adjusts an element condition.
type ElementOption func(*elementOptions)

type elementOptions struct {
	translate bool
	domain    m2m.Domain
}

// Translated makes the condition compare against the element's translation
// in the query language when localization is active.
func Translated() ElementOption {
	return func(o *elementOptions) { o.translate = true }
}

// InDomain restricts the condition to roles of domain.
func InDomain(d m2m.Domain) ElementOption {
	return func(o *elementOptions) { o.domain = d }
}

func applyElementOptions(role m2m.Role, opts []ElementOption) (elementOptions, error) {
	var o elementOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.domain != "" {
		if !o.domain.Valid() {
			return o, m2m.Invalidf("unknown domain %q", o.domain)
		}
		if role == m2m.RoleIntermediary && o.domain != m2m.DomainPosts {
			return o, m2m.Invalidf("the intermediary role is always in the %s domain", m2m.DomainPosts)
		}
	}
	return o, nil
}

func validRole(role m2m.Role) error {
	if !role.Valid() {
		return m2m.Invalidf("unknown role %q", role)
	}
	return nil
}

func primaryRole(role m2m.Role) error {
	if !role.IsParentOrChild() {
		return m2m.Invalidf("role must be %s or %s, got %q", m2m.RoleParent, m2m.RoleChild, role)
	}
	return nil
}

// domainGuard restricts a role to a domain; it is nil for intermediaries and
// when no domain was requested.
func domainGuard(env *Env, role m2m.Role, d m2m.Domain) sqldsl.Expr {
	if d == "" || !role.IsParentOrChild() {
		return nil
	}
	return sqldsl.Eq{Left: env.relCol(string(role) + "_domain"), Right: sqldsl.Lit(d)}
}

// leaf is embedded by the conditions that add no joins.
type leaf struct{}

func (leaf) Joins(*Env) []sqldsl.JoinClause { return nil }
func (leaf) condition()                     {}

// elementID compares the element ID of one role.
type elementID struct {
	leaf
	role   m2m.Role
	id     int64
	negate bool
	opts   elementOptions
}

// ElementID matches associations whose element in role is id.
func ElementID(role m2m.Role, id int64, opts ...ElementOption) (Condition, error) {
	return newElementID(role, id, false, opts)
}

// NotElementID matches associations whose element in role is not id.
func NotElementID(role m2m.Role, id int64, opts ...ElementOption) (Condition, error) {
	return newElementID(role, id, true, opts)
}

func newElementID(role m2m.Role, id int64, negate bool, opts []ElementOption) (Condition, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, m2m.Invalidf("element id must not be negative, got %d", id)
	}
	o, err := applyElementOptions(role, opts)
	if err != nil {
		return nil, err
	}
	return &elementID{role: role, id: id, negate: negate, opts: o}, nil
}

func (c *elementID) Where(env *Env) sqldsl.Expr {
	value := env.Selector.ElementIDValue(c.role, c.opts.translate)
	var cmp sqldsl.Expr = sqldsl.Eq{Left: value, Right: sqldsl.Int(c.id)}
	if c.negate {
		cmp = sqldsl.Ne{Left: value, Right: sqldsl.Int(c.id)}
	}
	return sqldsl.And(cmp, domainGuard(env, c.role, c.opts.domain))
}

func (c *elementID) Requirements() Requirements {
	return Requirements{Translation: c.opts.translate, AssociationOnly: true}
}

// hasIntermediary tests whether an intermediary post is attached.
type hasIntermediary struct {
	leaf
	want bool
}

// HasIntermediary matches associations with (true) or without (false) an
// intermediary post.
func HasIntermediary(want bool) Condition {
	return &hasIntermediary{want: want}
}

func (c *hasIntermediary) Where(env *Env) sqldsl.Expr {
	col := env.assocCol(m2m.RoleIntermediary.Column())
	if c.want {
		return sqldsl.Ne{Left: col, Right: sqldsl.Int(0)}
	}
	return sqldsl.Eq{Left: col, Right: sqldsl.Int(0)}
}

func (c *hasIntermediary) Requirements() Requirements {
	return Requirements{AssociationOnly: true}
}

// relationshipColumn compares one relationship column with a literal.
type relationshipColumn struct {
	leaf
	column string
	value  sqldsl.Expr
	covers Default
}

func (c *relationshipColumn) Where(env *Env) sqldsl.Expr {
	return sqldsl.Eq{Left: env.relCol(c.column), Right: c.value}
}

func (c *relationshipColumn) Requirements() Requirements {
	return Requirements{Covers: c.covers}
}

// RelationshipID matches the relationship with id.
func RelationshipID(id int64) (Condition, error) {
	if id <= 0 {
		return nil, m2m.Invalidf("relationship id must be positive, got %d", id)
	}
	return &relationshipColumn{column: "id", value: sqldsl.Int(id)}, nil
}

// RelationshipSlug matches the relationship with slug.
func RelationshipSlug(slug string) (Condition, error) {
	if err := validSlug(slug); err != nil {
		return nil, err
	}
	return &relationshipColumn{column: "slug", value: sqldsl.Lit(slug)}, nil
}

func validSlug(slug string) error {
	if slug == "" || len(slug) > m2m.MaxSlugLength {
		return m2m.Invalidf("slug must have 1 to %d characters, got %d", m2m.MaxSlugLength, len(slug))
	}
	return nil
}

// slugIn matches any of several slugs.
type slugIn struct {
	leaf
	slugs []string
}

// SlugIn matches relationships whose slug is one of slugs.
func SlugIn(first string, rest ...string) (Condition, error) {
	slugs := append([]string{first}, rest...)
	for _, s := range slugs {
		if err := validSlug(s); err != nil {
			return nil, err
		}
	}
	return &slugIn{slugs: slugs}, nil
}

func (c *slugIn) Where(env *Env) sqldsl.Expr {
	return sqldsl.In{Expr: env.relCol("slug"), Values: c.slugs}
}

func (c *slugIn) Requirements() Requirements { return Requirements{} }

// FlagColumn names a boolean column of the relationship table.
type FlagColumn string

const (
	FlagActive   FlagColumn = "is_active"
	FlagLegacy   FlagColumn = "needs_legacy_support"
	FlagDistinct FlagColumn = "is_distinct"
)

// Valid reports whether f is a known flag column.
func (f FlagColumn) Valid() bool {
	switch f {
	case FlagActive, FlagLegacy, FlagDistinct:
		return true
	}
	return false
}

// Flag matches relationships whose flag column equals value.
func Flag(column FlagColumn, value bool) (Condition, error) {
	if !column.Valid() {
		return nil, m2m.Invalidf("unknown flag column %q", column)
	}
	c := &relationshipColumn{column: string(column), value: sqldsl.Bool(value)}
	if column == FlagActive {
		c.covers = DefaultIsActive
	}
	return c, nil
}

// Origin matches relationships created through origin.
func Origin(origin m2m.Origin) (Condition, error) {
	if !origin.Valid() {
		return nil, m2m.Invalidf("unknown origin %q", origin)
	}
	return &relationshipColumn{column: "origin", value: sqldsl.Lit(origin), covers: DefaultOrigin}, nil
}

// IntermediaryType matches relationships whose intermediary post type is t.
func IntermediaryType(t string) (Condition, error) {
	if err := validType(t); err != nil {
		return nil, err
	}
	return &relationshipColumn{column: "intermediary_type", value: sqldsl.Lit(t)}, nil
}

func validType(t string) error {
	if t == "" || len(t) > 20 {
		return m2m.Invalidf("type must have 1 to 20 characters, got %q", t)
	}
	return nil
}

// hasIntermediaryType tests whether the relationship uses intermediary posts.
type hasIntermediaryType struct {
	leaf
	want bool
}

// HasIntermediaryType matches relationships with (true) or without (false)
// an intermediary post type.
func HasIntermediaryType(want bool) Condition {
	return &hasIntermediaryType{want: want}
}

func (c *hasIntermediaryType) Where(env *Env) sqldsl.Expr {
	col := env.relCol("intermediary_type")
	if c.want {
		return sqldsl.Ne{Left: col, Right: sqldsl.Lit("")}
	}
	return sqldsl.Eq{Left: col, Right: sqldsl.Lit("")}
}

func (c *hasIntermediaryType) Requirements() Requirements { return Requirements{} }

// domain matches the domain of a role.
type domain struct {
	leaf
	role   m2m.Role
	domain m2m.Domain
}

// Domain matches relationships whose role accepts elements of d.
func Domain(role m2m.Role, d m2m.Domain) (Condition, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	if role == m2m.RoleIntermediary {
		return nil, m2m.Invalidf("the intermediary role is always in the %s domain", m2m.DomainPosts)
	}
	if !d.Valid() {
		return nil, m2m.Invalidf("unknown domain %q", d)
	}
	return &domain{role: role, domain: d}, nil
}

func (c *domain) Where(env *Env) sqldsl.Expr {
	return domainGuard(env, c.role, c.domain)
}

func (c *domain) Requirements() Requirements { return Requirements{} }

// CardinalityTypeIs matches relationships of one cardinality type.
func CardinalityTypeIs(t m2m.CardinalityType) (Condition, error) {
	if !t.Valid() {
		return nil, m2m.Invalidf("unknown cardinality type %q", t)
	}
	return &cardinalityType{t: t}, nil
}

type cardinalityType struct {
	leaf
	t m2m.CardinalityType
}

func (c *cardinalityType) Where(env *Env) sqldsl.Expr {
	parentMax := env.relCol("cardinality_parent_max")
	childMax := env.relCol("cardinality_child_max")
	one := sqldsl.Int(1)

	switch c.t {
	case m2m.OneToOne:
		return sqldsl.And(sqldsl.Eq{Left: parentMax, Right: one}, sqldsl.Eq{Left: childMax, Right: one})
	case m2m.OneToMany:
		return sqldsl.Or(
			sqldsl.And(sqldsl.Ne{Left: parentMax, Right: one}, sqldsl.Eq{Left: childMax, Right: one}),
			sqldsl.And(sqldsl.Eq{Left: parentMax, Right: one}, sqldsl.Ne{Left: childMax, Right: one}),
		)
	}
	return sqldsl.And(sqldsl.Ne{Left: parentMax, Right: one}, sqldsl.Ne{Left: childMax, Right: one})
}

func (c *cardinalityType) Requirements() Requirements { return Requirements{} }

// Bound selects the lower or upper limit of a cardinality.
type Bound string

const (
	BoundMin Bound = "min"
	BoundMax Bound = "max"
)

// cardinalityBound compares one cardinality limit.
type cardinalityBound struct {
	leaf
	role  m2m.Role
	bound Bound
	op    ComparisonOperator
	value int
}

// CardinalityBound matches relationships whose role limit compares to value
// with op. Unbounded limits are stored as -1.
func CardinalityBound(role m2m.Role, bound Bound, op ComparisonOperator, value int) (Condition, error) {
	if err := primaryRole(role); err != nil {
		return nil, err
	}
	if bound != BoundMin && bound != BoundMax {
		return nil, m2m.Invalidf("unknown cardinality bound %q", bound)
	}
	if !op.Valid() || op.isPattern() {
		return nil, m2m.Invalidf("operator %q cannot compare cardinalities", op)
	}
	if value < m2m.Infinite {
		return nil, m2m.Invalidf("cardinality must be %d or above, got %d", m2m.Infinite, value)
	}
	return &cardinalityBound{role: role, bound: bound, op: op, value: value}, nil
}

func (c *cardinalityBound) Where(env *Env) sqldsl.Expr {
	col := env.relCol(fmt.Sprintf("cardinality_%s_%s", c.role, c.bound))
	return c.op.compare(col, sqldsl.Int(c.value))
}

func (c *cardinalityBound) Requirements() Requirements { return Requirements{} }

// hasType tests whether a role's type set contains a type.
type hasType struct {
	role m2m.Role
	typ  string
}

// HasType matches relationships whose role accepts post type t. A role
// without a type set accepts every type.
func HasType(role m2m.Role, t string) (Condition, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	if err := validType(t); err != nil {
		return nil, err
	}
	return &hasType{role: role, typ: t}, nil
}

func (c *hasType) Where(env *Env) sqldsl.Expr {
	if c.role == m2m.RoleIntermediary {
		return sqldsl.Eq{Left: env.relCol("intermediary_type"), Right: sqldsl.Lit(c.typ)}
	}
	alias := env.alias(c, "type_set")
	return sqldsl.Or(
		sqldsl.Eq{Left: env.relCol(string(c.role) + "_types"), Right: sqldsl.Int(0)},
		sqldsl.IsNotNull{Expr: sqldsl.Col{Table: alias, Column: "id"}},
	)
}

func (c *hasType) Joins(env *Env) []sqldsl.JoinClause {
	if c.role == m2m.RoleIntermediary {
		return nil
	}
	alias := env.alias(c, "type_set")
	return []sqldsl.JoinClause{
		sqldsl.LeftJoin(sqldsl.TableAs(env.Catalog.TypeSets(), alias), sqldsl.And(
			sqldsl.Eq{Left: sqldsl.Col{Table: alias, Column: "set_id"}, Right: env.relCol(string(c.role) + "_types")},
			sqldsl.Eq{Left: sqldsl.Col{Table: alias, Column: "type"}, Right: sqldsl.Lit(c.typ)},
		)),
	}
}

func (c *hasType) Requirements() Requirements { return Requirements{} }
func (*hasType) condition()                   {}

// hasActiveTypes requires every post role to accept an active post type.
type hasActiveTypes struct {
	leaf
	types []string
}

// HasActiveTypes matches relationships whose parent and child roles each
// accept at least one of the active post types. Roles outside the posts
// domain and roles without a type set always pass.
func HasActiveTypes(activeTypes []string) Condition {
	return &hasActiveTypes{types: append([]string(nil), activeTypes...)}
}

func (c *hasActiveTypes) Where(env *Env) sqldsl.Expr {
	parts := make([]sqldsl.Expr, 0, 2)
	for _, role := range []m2m.Role{m2m.RoleParent, m2m.RoleChild} {
		alias := env.alias(c, "active_type_set_"+string(role))
		setCol := env.relCol(string(role) + "_types")
		parts = append(parts, sqldsl.Or(
			sqldsl.Ne{Left: env.relCol(string(role) + "_domain"), Right: sqldsl.Lit(m2m.DomainPosts)},
			sqldsl.Eq{Left: setCol, Right: sqldsl.Int(0)},
			sqldsl.Exists{Query: sqldsl.SelectStmt{
				FromExpr: sqldsl.TableAs(env.Catalog.TypeSets(), alias),
				Where: sqldsl.And(
					sqldsl.Eq{Left: sqldsl.Col{Table: alias, Column: "set_id"}, Right: setCol},
					sqldsl.In{Expr: sqldsl.Col{Table: alias, Column: "type"}, Values: c.types},
				),
			}},
		))
	}
	return sqldsl.And(parts...)
}

func (c *hasActiveTypes) Requirements() Requirements {
	return Requirements{Covers: DefaultHasActiveTypes}
}
