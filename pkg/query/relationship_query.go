package query

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/sqldsl"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/schema"
)

// RelationshipQueryBuilder accumulates the conditions of a query over
// relationship definitions.
type RelationshipQueryBuilder struct {
	base
}

// Add appends c. Conditions reading association columns are rejected by
// Finalize.
func (b *RelationshipQueryBuilder) Add(c Condition) *RelationshipQueryBuilder {
	b.add(c)
	return b
}

// DoNotAddDefaultConditions lets the query see every definition.
func (b *RelationshipQueryBuilder) DoNotAddDefaultConditions() *RelationshipQueryBuilder {
	b.noDefaults = true
	return b
}

func (b *RelationshipQueryBuilder) NeedFoundRows() *RelationshipQueryBuilder {
	b.foundRows = true
	return b
}

func (b *RelationshipQueryBuilder) Limit(n int) *RelationshipQueryBuilder {
	b.setLimit(n)
	return b
}

func (b *RelationshipQueryBuilder) Offset(n int) *RelationshipQueryBuilder {
	b.setOffset(n)
	return b
}

// Finalize renders the query.
func (b *RelationshipQueryBuilder) Finalize(ctx context.Context) (*RelationshipQuery, error) {
	if b.err != nil {
		return nil, b.err
	}
	conds, req, err := b.collect(ctx)
	if err != nil {
		return nil, err
	}
	if req.AssociationOnly {
		return nil, m2m.Invalidf("relationship queries cannot filter on association elements")
	}
	root := combine(conds)

	e := b.engine
	env := newEnv(e.catalog, "", relAlias, NewAliasGenerator(relAlias))
	where := root.Where(env)

	cols := make([]sqldsl.Expr, len(definition.Columns))
	for i, c := range definition.Columns {
		cols[i] = env.relCol(c)
	}
	stmt := sqldsl.SelectStmt{
		ColumnExprs: cols,
		FromExpr:    sqldsl.TableAs(e.catalog.Relationships(), relAlias),
		Joins:       dedupJoins(root.Joins(env)),
		Where:       where,
		GroupBy:     []sqldsl.Expr{env.relCol("id")},
		OrderBy:     []sqldsl.OrderTerm{{Expr: env.relCol("id")}},
		Limit:       b.limit,
		Offset:      b.offset,
	}
	return &RelationshipQuery{
		db:            e.db,
		catalog:       e.catalog,
		logger:        e.logger,
		stmt:          stmt,
		needFoundRows: b.foundRows,
	}, nil
}

// RelationshipQuery is a rendered relationship query. Results runs it once.
type RelationshipQuery struct {
	db            m2m.Querier
	catalog       schema.Catalog
	logger        *zap.Logger
	stmt          sqldsl.SelectStmt
	needFoundRows bool

	consumed  bool
	executed  bool
	foundRows int64
}

// SQL returns the rendered statement.
func (q *RelationshipQuery) SQL() string {
	return q.stmt.SQL()
}

// Results executes the query and loads the type sets of every definition.
// A second call returns ErrQueryConsumed.
func (q *RelationshipQuery) Results(ctx context.Context) ([]m2m.Definition, error) {
	if q.consumed {
		q.logger.Warn("relationship query executed twice; build a new query for every execution")
		return nil, m2m.ErrQueryConsumed
	}
	q.consumed = true

	var rows []definition.Row
	if err := sqlx.SelectContext(ctx, q.db, &rows, q.stmt.SQL()); err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defs, err := definition.Hydrate(ctx, q.db, q.catalog, rows)
	if err != nil {
		return nil, err
	}

	if q.needFoundRows {
		if err := sqlx.GetContext(ctx, q.db, &q.foundRows, q.stmt.CountStmt("found_rows").SQL()); err != nil {
			return nil, fmt.Errorf("counting relationships: %w", err)
		}
	}
	q.executed = true
	return defs, nil
}

// FoundRows returns the number of definitions the query matches regardless
// of paging. It requires NeedFoundRows and a prior call to Results.
func (q *RelationshipQuery) FoundRows() (int64, error) {
	return foundRows(q.logger, q.needFoundRows, q.executed, q.foundRows)
}
