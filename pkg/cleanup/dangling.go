package cleanup

import (
	"github.com/pthm/m2m/internal/sqldsl"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/schema"
)

// danglingStmt selects the IDs of intermediary posts that no association
// owns. With localization active a translated intermediary post also counts
// as owned when its default language version is owned.
func danglingStmt(catalog schema.Catalog, loc host.Localization, limit int) sqldsl.SelectStmt {
	postID := sqldsl.Col{Table: "post", Column: "id"}
	postType := sqldsl.Col{Table: "post", Column: "post_type"}

	intermediaryTypes := sqldsl.SelectStmt{
		Distinct:    true,
		ColumnExprs: []sqldsl.Expr{sqldsl.Col{Table: "rel", Column: "intermediary_type"}},
		FromExpr:    sqldsl.TableAs(catalog.Relationships(), "rel"),
		Where:       sqldsl.Ne{Left: sqldsl.Col{Table: "rel", Column: "intermediary_type"}, Right: sqldsl.Lit("")},
	}

	owned := sqldsl.SelectStmt{
		FromExpr: sqldsl.TableAs(catalog.Associations(), "assoc"),
		Where:    sqldsl.Eq{Left: sqldsl.Col{Table: "assoc", Column: "intermediary_id"}, Right: postID},
	}

	where := []sqldsl.Expr{
		sqldsl.InQuery{Expr: postType, Query: intermediaryTypes},
		sqldsl.NotExists{Query: owned},
	}
	if loc != nil && loc.IsActive() {
		where = append(where, sqldsl.NotExists{Query: ownedThroughDefaultLanguage(catalog, loc.DefaultLanguage(), postID, postType)})
	}

	return sqldsl.SelectStmt{
		ColumnExprs: []sqldsl.Expr{postID},
		FromExpr:    sqldsl.TableAs(catalog.Posts(), "post"),
		Where:       sqldsl.And(where...),
		OrderBy:     []sqldsl.OrderTerm{{Expr: postID}},
		Limit:       limit,
	}
}

func ownedThroughDefaultLanguage(catalog schema.Catalog, language string, postID, postType sqldsl.Expr) sqldsl.SelectStmt {
	tr := func(col string) sqldsl.Col { return sqldsl.Col{Table: "tr", Column: col} }
	def := func(col string) sqldsl.Col { return sqldsl.Col{Table: "default_tr", Column: col} }

	return sqldsl.SelectStmt{
		FromExpr: sqldsl.TableAs(catalog.Translations(), "tr"),
		Joins: []sqldsl.JoinClause{
			sqldsl.InnerJoin(sqldsl.TableAs(catalog.Translations(), "default_tr"), sqldsl.And(
				sqldsl.Eq{Left: def("trid"), Right: tr("trid")},
				sqldsl.Eq{Left: def("element_type"), Right: tr("element_type")},
				sqldsl.Eq{Left: def("language_code"), Right: sqldsl.Lit(language)},
			)),
			sqldsl.InnerJoin(sqldsl.TableAs(catalog.Associations(), "default_assoc"),
				sqldsl.Eq{Left: sqldsl.Col{Table: "default_assoc", Column: "intermediary_id"}, Right: def("element_id")}),
		},
		Where: sqldsl.And(
			sqldsl.Eq{Left: tr("element_id"), Right: postID},
			sqldsl.Eq{Left: tr("element_type"), Right: sqldsl.Concat{Parts: []sqldsl.Expr{sqldsl.Lit("post_"), postType}}},
		),
	}
}
