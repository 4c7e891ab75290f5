package query

import (
	"strings"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/sqldsl"
)

// IntermediaryID matches the association whose intermediary post is id.
func IntermediaryID(id int64) (Condition, error) {
	if id <= 0 {
		return nil, m2m.Invalidf("intermediary id must be positive, got %d", id)
	}
	return &elementID{role: m2m.RoleIntermediary, id: id}, nil
}

// postJoin joins the posts table for the element of one role. The join only
// matches when the role is in the posts domain.
func postJoin(env *Env, c Condition, role m2m.Role, translate bool) sqldsl.JoinClause {
	alias := env.alias(c, "post_"+string(role))
	on := []sqldsl.Expr{
		sqldsl.Eq{Left: sqldsl.Col{Table: alias, Column: "id"}, Right: env.Selector.ElementIDValue(role, translate)},
		domainGuard(env, role, m2m.DomainPosts),
	}
	return sqldsl.LeftJoin(sqldsl.TableAs(env.Catalog.Posts(), alias), sqldsl.And(on...))
}

// search matches a text fragment in the title, excerpt or content of a post.
type search struct {
	role      m2m.Role
	term      string
	translate bool
}

// Search matches associations whose post in role contains term in its
// title, excerpt or content, case-insensitively. Wildcards in term match
// literally.
func Search(role m2m.Role, term string, opts ...ElementOption) (Condition, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	if strings.TrimSpace(term) == "" {
		return nil, m2m.Invalidf("search term must not be empty")
	}
	o, err := applyElementOptions(role, opts)
	if err != nil {
		return nil, err
	}
	return &search{role: role, term: term, translate: o.translate}, nil
}

func (c *search) Where(env *Env) sqldsl.Expr {
	alias := env.alias(c, "post_"+string(c.role))
	pattern := sqldsl.Contains(c.term)
	parts := make([]sqldsl.Expr, 0, 3)
	for _, col := range []string{"post_title", "post_excerpt", "post_content"} {
		parts = append(parts, sqldsl.ILike{Expr: sqldsl.Col{Table: alias, Column: col}, Pattern: pattern})
	}
	return sqldsl.Or(parts...)
}

func (c *search) Joins(env *Env) []sqldsl.JoinClause {
	return []sqldsl.JoinClause{postJoin(env, c, c.role, c.translate)}
}

func (c *search) Requirements() Requirements {
	return Requirements{Translation: c.translate, AssociationOnly: true}
}

func (*search) condition() {}

// postStatus matches the status of a post.
type postStatus struct {
	role     m2m.Role
	statuses []string
}

// PostStatus matches associations whose post in role has one of statuses.
func PostStatus(role m2m.Role, first string, rest ...string) (Condition, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	statuses := append([]string{first}, rest...)
	for _, s := range statuses {
		if s == "" || len(s) > 20 {
			return nil, m2m.Invalidf("post status must have 1 to 20 characters, got %q", s)
		}
	}
	return &postStatus{role: role, statuses: statuses}, nil
}

func (c *postStatus) Where(env *Env) sqldsl.Expr {
	alias := env.alias(c, "post_"+string(c.role))
	return sqldsl.In{Expr: sqldsl.Col{Table: alias, Column: "post_status"}, Values: c.statuses}
}

func (c *postStatus) Joins(env *Env) []sqldsl.JoinClause {
	return []sqldsl.JoinClause{postJoin(env, c, c.role, false)}
}

func (c *postStatus) Requirements() Requirements {
	return Requirements{AssociationOnly: true}
}

func (*postStatus) condition() {}

// meta compares a postmeta value of the post in one role.
type meta struct {
	role      m2m.Role
	key       string
	op        ComparisonOperator
	value     string
	translate bool
}

// Meta matches associations whose post in role has a meta_key entry whose
// value compares to value with op. Values compare as text.
func Meta(role m2m.Role, key string, op ComparisonOperator, value string, opts ...ElementOption) (Condition, error) {
	if err := validRole(role); err != nil {
		return nil, err
	}
	if key == "" || len(key) > 255 {
		return nil, m2m.Invalidf("meta key must have 1 to 255 characters, got %d", len(key))
	}
	if !op.Valid() {
		return nil, m2m.Invalidf("unknown comparison operator %q", op)
	}
	o, err := applyElementOptions(role, opts)
	if err != nil {
		return nil, err
	}
	return &meta{role: role, key: key, op: op, value: value, translate: o.translate}, nil
}

func (c *meta) Where(env *Env) sqldsl.Expr {
	alias := env.alias(c, "meta_"+string(c.role))
	return c.op.match(sqldsl.Col{Table: alias, Column: "meta_value"}, c.value)
}

func (c *meta) Joins(env *Env) []sqldsl.JoinClause {
	alias := env.alias(c, "meta_"+string(c.role))
	return []sqldsl.JoinClause{
		sqldsl.LeftJoin(sqldsl.TableAs(env.Catalog.Postmeta(), alias), sqldsl.And(
			sqldsl.Eq{Left: sqldsl.Col{Table: alias, Column: "post_id"}, Right: env.Selector.ElementIDValue(c.role, c.translate)},
			sqldsl.Eq{Left: sqldsl.Col{Table: alias, Column: "meta_key"}, Right: sqldsl.Lit(c.key)},
			domainGuard(env, c.role, m2m.DomainPosts),
		)),
	}
}

func (c *meta) Requirements() Requirements {
	return Requirements{Translation: c.translate, AssociationOnly: true}
}

func (*meta) condition() {}
