package query

import (
	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/sqldsl"
	"github.com/pthm/m2m/pkg/schema"
)

// ElementSelector decides how the element ID of a role is expressed in a
// query, so conditions never need to know whether translations are involved.
//
// A selector is created once per query, after every condition is known, and
// only emits the joins and columns that were actually asked for.
type ElementSelector interface {
	// RequestElementInResults adds the element ID of role to the SELECT list.
	RequestElementInResults(role m2m.Role)
	// ElementIDValue returns an expression usable anywhere in the query.
	ElementIDValue(role m2m.Role, preferTranslated bool) sqldsl.Expr
	// ElementIDAlias returns the SELECT list name of ElementIDValue.
	ElementIDAlias(role m2m.Role, preferTranslated bool) string
	JoinClauses() []sqldsl.JoinClause
	SelectColumns() []sqldsl.Expr
	// GroupBy returns the expressions that must be grouped next to the
	// association ID.
	GroupBy() []sqldsl.Expr
	// TranslatedRoles lists the roles whose translated ID is selected.
	TranslatedRoles() []m2m.Role
}

// defaultSelector reads element IDs straight from the association table.
type defaultSelector struct {
	assoc string
}

// NewDefaultSelector returns the selector used when translations are not
// involved. assoc is the alias of the association table.
func NewDefaultSelector(assoc string) ElementSelector {
	return &defaultSelector{assoc: assoc}
}

func (s *defaultSelector) RequestElementInResults(m2m.Role) {}

func (s *defaultSelector) ElementIDValue(role m2m.Role, _ bool) sqldsl.Expr {
	return sqldsl.Col{Table: s.assoc, Column: role.Column()}
}

func (s *defaultSelector) ElementIDAlias(role m2m.Role, _ bool) string {
	return role.Column()
}

func (s *defaultSelector) JoinClauses() []sqldsl.JoinClause { return nil }
func (s *defaultSelector) SelectColumns() []sqldsl.Expr     { return nil }
func (s *defaultSelector) GroupBy() []sqldsl.Expr           { return nil }
func (s *defaultSelector) TranslatedRoles() []m2m.Role      { return nil }

// translatedSelector resolves each requested role to its translation in one
// language, falling back to the stored element when no translation exists.
type translatedSelector struct {
	catalog  schema.Catalog
	assoc    string
	rel      string
	language string
	aliases  *AliasGenerator

	requested map[m2m.Role]bool
	order     []m2m.Role
	joinAlias map[m2m.Role][2]string
}

// NewTranslatedSelector returns a selector resolving elements to language,
// normally the current language.
func NewTranslatedSelector(catalog schema.Catalog, assoc, rel, language string, aliases *AliasGenerator) ElementSelector {
	return &translatedSelector{
		catalog:   catalog,
		assoc:     assoc,
		rel:       rel,
		language:  language,
		aliases:   aliases,
		requested: map[m2m.Role]bool{},
		joinAlias: map[m2m.Role][2]string{},
	}
}

// NewAllLanguagesSelector returns the selector used while all languages are
// displayed. There is no current language then, so elements resolve to the
// default language explicitly.
func NewAllLanguagesSelector(catalog schema.Catalog, assoc, rel, defaultLanguage string, aliases *AliasGenerator) ElementSelector {
	return NewTranslatedSelector(catalog, assoc, rel, defaultLanguage, aliases)
}

func (s *translatedSelector) RequestElementInResults(role m2m.Role) {
	if s.requested[role] {
		return
	}
	s.requested[role] = true
	s.order = append(s.order, role)
	s.joinAlias[role] = [2]string{
		s.aliases.Generate("tr_orig_" + string(role)),
		s.aliases.Generate("tr_cur_" + string(role)),
	}
}

func (s *translatedSelector) ElementIDValue(role m2m.Role, preferTranslated bool) sqldsl.Expr {
	stored := sqldsl.Col{Table: s.assoc, Column: role.Column()}
	if !preferTranslated {
		return stored
	}
	s.RequestElementInResults(role)
	cur := s.joinAlias[role][1]
	return sqldsl.Coalesce(sqldsl.Col{Table: cur, Column: "element_id"}, stored)
}

func (s *translatedSelector) ElementIDAlias(role m2m.Role, preferTranslated bool) string {
	if !preferTranslated {
		return role.Column()
	}
	return "translated_" + role.Column()
}

func (s *translatedSelector) JoinClauses() []sqldsl.JoinClause {
	table := s.catalog.Translations()
	joins := make([]sqldsl.JoinClause, 0, 2*len(s.order))
	for _, role := range s.order {
		orig, cur := s.joinAlias[role][0], s.joinAlias[role][1]

		origOn := []sqldsl.Expr{
			sqldsl.Eq{Left: sqldsl.Col{Table: orig, Column: "element_id"}, Right: sqldsl.Col{Table: s.assoc, Column: role.Column()}},
			sqldsl.Like{Expr: sqldsl.Col{Table: orig, Column: "element_type"}, Pattern: `post\_%`},
		}
		if role.IsParentOrChild() {
			origOn = append(origOn, sqldsl.Eq{
				Left:  sqldsl.Col{Table: s.rel, Column: string(role) + "_domain"},
				Right: sqldsl.Lit(m2m.DomainPosts),
			})
		}

		joins = append(joins,
			sqldsl.LeftJoin(sqldsl.TableAs(table, orig), sqldsl.And(origOn...)),
			sqldsl.LeftJoin(sqldsl.TableAs(table, cur), sqldsl.And(
				sqldsl.Eq{Left: sqldsl.Col{Table: cur, Column: "trid"}, Right: sqldsl.Col{Table: orig, Column: "trid"}},
				sqldsl.Eq{Left: sqldsl.Col{Table: cur, Column: "element_type"}, Right: sqldsl.Col{Table: orig, Column: "element_type"}},
				sqldsl.Eq{Left: sqldsl.Col{Table: cur, Column: "language_code"}, Right: sqldsl.Lit(s.language)},
			)),
		)
	}
	return joins
}

func (s *translatedSelector) SelectColumns() []sqldsl.Expr {
	cols := make([]sqldsl.Expr, 0, len(s.order))
	for _, role := range s.order {
		cols = append(cols, sqldsl.SelectAs(s.ElementIDValue(role, true), s.ElementIDAlias(role, true)))
	}
	return cols
}

func (s *translatedSelector) GroupBy() []sqldsl.Expr {
	exprs := make([]sqldsl.Expr, 0, len(s.order))
	for _, role := range s.order {
		exprs = append(exprs, s.ElementIDValue(role, true))
	}
	return exprs
}

func (s *translatedSelector) TranslatedRoles() []m2m.Role {
	return append([]m2m.Role(nil), s.order...)
}
