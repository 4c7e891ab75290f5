package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/internal/sqldsl"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/schema"
)

const (
	assocAlias = "assoc"
	relAlias   = "rel"
)

// Engine creates queries against one database.
type Engine struct {
	db           m2m.Querier
	catalog      schema.Catalog
	postTypes    host.PostTypes
	localization host.Localization
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPostTypes enables the active post type default condition.
func WithPostTypes(pt host.PostTypes) EngineOption {
	return func(e *Engine) { e.postTypes = pt }
}

// WithLocalization enables translated element selection.
func WithLocalization(l host.Localization) EngineOption {
	return func(e *Engine) { e.localization = l }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine returns an engine running queries on db.
func NewEngine(db m2m.Querier, catalog schema.Catalog, opts ...EngineOption) *Engine {
	e := &Engine{db: db, catalog: catalog, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithQuerier returns a copy of e running on q, typically a transaction.
func (e *Engine) WithQuerier(q m2m.Querier) *Engine {
	c := *e
	c.db = q
	return &c
}

// Associations starts an association query.
func (e *Engine) Associations() *AssociationQueryBuilder {
	return &AssociationQueryBuilder{base: base{engine: e}}
}

// Relationships starts a relationship query.
func (e *Engine) Relationships() *RelationshipQueryBuilder {
	return &RelationshipQueryBuilder{base: base{engine: e}}
}

// base holds the state shared by both builders.
type base struct {
	engine     *Engine
	conditions []Condition
	noDefaults bool
	foundRows  bool
	limit      int
	offset     int
	// err is the first invalid builder argument, returned by Finalize.
	err error
}

func (b *base) add(c Condition) {
	if c != nil {
		b.conditions = append(b.conditions, c)
	}
}

func (b *base) setLimit(n int) {
	if n < 0 && b.err == nil {
		b.err = m2m.Invalidf("limit must not be negative, got %d", n)
	}
	b.limit = n
}

func (b *base) setOffset(n int) {
	if n < 0 && b.err == nil {
		b.err = m2m.Invalidf("offset must not be negative, got %d", n)
	}
	b.offset = n
}

// collect returns the added conditions followed by the default conditions
// none of them covers, together with the merged requirements of the added
// conditions.
func (b *base) collect(ctx context.Context) ([]Condition, Requirements, error) {
	conds := append([]Condition(nil), b.conditions...)
	var req Requirements
	for _, c := range conds {
		req = req.merge(c.Requirements())
	}
	if b.noDefaults {
		return conds, req, nil
	}

	if req.Covers&DefaultIsActive == 0 {
		conds = append(conds, Must(Flag(FlagActive, true)))
	}
	if req.Covers&DefaultHasActiveTypes == 0 && b.engine.postTypes != nil {
		types, err := b.engine.postTypes.ActivePostTypes(ctx)
		if err != nil {
			return nil, req, fmt.Errorf("loading active post types: %w", err)
		}
		if types != nil {
			conds = append(conds, HasActiveTypes(types))
		}
	}
	if req.Covers&DefaultOrigin == 0 {
		conds = append(conds, Must(Origin(m2m.OriginWizard)))
	}
	return conds, req, nil
}

// dedupJoins keeps the first join for every alias.
func dedupJoins(groups ...[]sqldsl.JoinClause) []sqldsl.JoinClause {
	seen := map[string]bool{}
	var out []sqldsl.JoinClause
	for _, joins := range groups {
		for _, j := range joins {
			key := j.TableExpr.TableAlias()
			if key == "" {
				key = j.TableExpr.TableSQL()
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, j)
		}
	}
	return out
}
