package query

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/sqldsl"
)

// AssociationQueryBuilder accumulates the conditions of an association
// query. It renders nothing until Finalize.
type AssociationQueryBuilder struct {
	base
	translatedRoles []m2m.Role
	orderRole       m2m.Role
}

// Add appends c. Conditions are combined with AND.
func (b *AssociationQueryBuilder) Add(c Condition) *AssociationQueryBuilder {
	b.add(c)
	return b
}

// DoNotAddDefaultConditions lets the query see inactive relationships,
// relationships with disabled post types and relationships not created
// through the wizard.
func (b *AssociationQueryBuilder) DoNotAddDefaultConditions() *AssociationQueryBuilder {
	b.noDefaults = true
	return b
}

// NeedFoundRows makes Results also count every matching row, ignoring Limit
// and Offset. Read the count with FoundRows.
func (b *AssociationQueryBuilder) NeedFoundRows() *AssociationQueryBuilder {
	b.foundRows = true
	return b
}

func (b *AssociationQueryBuilder) Limit(n int) *AssociationQueryBuilder {
	b.setLimit(n)
	return b
}

func (b *AssociationQueryBuilder) Offset(n int) *AssociationQueryBuilder {
	b.setOffset(n)
	return b
}

// OrderByElement orders the results by the element ID of role instead of
// the association ID.
func (b *AssociationQueryBuilder) OrderByElement(role m2m.Role) *AssociationQueryBuilder {
	if !role.Valid() && b.err == nil {
		b.err = m2m.Invalidf("unknown role %q", role)
	}
	b.orderRole = role
	return b
}

// TranslateElements requests the translated element ID of each role in the
// results. Without active localization the request has no effect.
func (b *AssociationQueryBuilder) TranslateElements(roles ...m2m.Role) *AssociationQueryBuilder {
	for _, r := range roles {
		if !r.Valid() && b.err == nil {
			b.err = m2m.Invalidf("unknown role %q", r)
		}
	}
	b.translatedRoles = append(b.translatedRoles, roles...)
	return b
}

// Finalize renders the query. The builder must not be used afterwards.
func (b *AssociationQueryBuilder) Finalize(ctx context.Context) (*AssociationQuery, error) {
	if b.err != nil {
		return nil, b.err
	}
	conds, req, err := b.collect(ctx)
	if err != nil {
		return nil, err
	}
	root := combine(conds)

	e := b.engine
	aliases := NewAliasGenerator(assocAlias, relAlias)
	selector := b.selector(req, aliases)
	for _, r := range b.translatedRoles {
		selector.RequestElementInResults(r)
	}

	env := newEnv(e.catalog, assocAlias, relAlias, aliases)
	env.Selector = selector
	where := root.Where(env)
	condJoins := root.Joins(env)

	order := []sqldsl.OrderTerm{{Expr: env.assocCol("id")}}
	if b.orderRole != "" {
		translated := len(selector.TranslatedRoles()) > 0 && containsRole(b.translatedRoles, b.orderRole)
		order = append([]sqldsl.OrderTerm{{Expr: selector.ElementIDValue(b.orderRole, translated)}}, order...)
	}

	cols := []sqldsl.Expr{
		env.assocCol("id"),
		env.assocCol("relationship_id"),
		env.assocCol(m2m.RoleParent.Column()),
		env.assocCol(m2m.RoleChild.Column()),
		env.assocCol(m2m.RoleIntermediary.Column()),
	}
	stmt := sqldsl.SelectStmt{
		ColumnExprs: append(cols, selector.SelectColumns()...),
		FromExpr:    sqldsl.TableAs(e.catalog.Associations(), assocAlias),
		Joins: dedupJoins(
			[]sqldsl.JoinClause{sqldsl.InnerJoin(
				sqldsl.TableAs(e.catalog.Relationships(), relAlias),
				sqldsl.Eq{Left: env.relCol("id"), Right: env.assocCol("relationship_id")},
			)},
			selector.JoinClauses(),
			condJoins,
		),
		Where:   where,
		GroupBy: append([]sqldsl.Expr{env.assocCol("id")}, selector.GroupBy()...),
		OrderBy: order,
		Limit:   b.limit,
		Offset:  b.offset,
	}

	q := &AssociationQuery{
		db:            e.db,
		logger:        e.logger,
		stmt:          stmt,
		translated:    selector.TranslatedRoles(),
		needFoundRows: b.foundRows,
	}
	e.logger.Debug("association query finalized",
		zap.Int("conditions", len(conds)),
		zap.Bool("translated", len(q.translated) > 0))
	return q, nil
}

func (b *AssociationQueryBuilder) selector(req Requirements, aliases *AliasGenerator) ElementSelector {
	e := b.engine
	l := e.localization
	if l == nil || !l.IsActive() || (!req.Translation && len(b.translatedRoles) == 0) {
		return NewDefaultSelector(assocAlias)
	}
	if l.IsShowingAllLanguages() {
		return NewAllLanguagesSelector(e.catalog, assocAlias, relAlias, l.DefaultLanguage(), aliases)
	}
	return NewTranslatedSelector(e.catalog, assocAlias, relAlias, l.CurrentLanguage(), aliases)
}

func containsRole(roles []m2m.Role, r m2m.Role) bool {
	for _, candidate := range roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// AssociationQuery is a rendered association query. Results runs it once.
// An AssociationQuery is not safe for concurrent use.
type AssociationQuery struct {
	db            m2m.Querier
	logger        *zap.Logger
	stmt          sqldsl.SelectStmt
	translated    []m2m.Role
	needFoundRows bool

	consumed  bool
	executed  bool
	foundRows int64
}

// SQL returns the rendered statement.
func (q *AssociationQuery) SQL() string {
	return q.stmt.SQL()
}

type associationRow struct {
	m2m.Association
	TranslatedParentID       int64 `db:"translated_parent_id"`
	TranslatedChildID        int64 `db:"translated_child_id"`
	TranslatedIntermediaryID int64 `db:"translated_intermediary_id"`
}

// Results executes the query. A second call returns ErrQueryConsumed.
func (q *AssociationQuery) Results(ctx context.Context) ([]m2m.Association, error) {
	if q.consumed {
		q.logger.Warn("association query executed twice; build a new query for every execution")
		return nil, m2m.ErrQueryConsumed
	}
	q.consumed = true

	var rows []associationRow
	if err := sqlx.SelectContext(ctx, q.db, &rows, q.stmt.SQL()); err != nil {
		return nil, fmt.Errorf("querying associations: %w", err)
	}

	out := make([]m2m.Association, len(rows))
	for i, row := range rows {
		a := row.Association
		for _, r := range q.translated {
			switch r {
			case m2m.RoleParent:
				a.Translated.Parent = row.TranslatedParentID
			case m2m.RoleChild:
				a.Translated.Child = row.TranslatedChildID
			case m2m.RoleIntermediary:
				a.Translated.Intermediary = row.TranslatedIntermediaryID
			}
		}
		out[i] = a
	}

	if q.needFoundRows {
		if err := sqlx.GetContext(ctx, q.db, &q.foundRows, q.stmt.CountStmt("found_rows").SQL()); err != nil {
			return nil, fmt.Errorf("counting associations: %w", err)
		}
	}
	q.executed = true
	return out, nil
}

// FoundRows returns the number of rows the query matches regardless of
// paging. It requires NeedFoundRows and a prior call to Results.
func (q *AssociationQuery) FoundRows() (int64, error) {
	return foundRows(q.logger, q.needFoundRows, q.executed, q.foundRows)
}

func foundRows(logger *zap.Logger, requested, executed bool, n int64) (int64, error) {
	if !requested {
		logger.Warn("found rows read without NeedFoundRows")
		return 0, m2m.ErrFoundRowsNotRequested
	}
	if !executed {
		return 0, m2m.ErrQueryNotExecuted
	}
	return n, nil
}
