// Package sqldsl provides a small typed DSL for building PostgreSQL queries.
//
// Rather than concatenating SQL strings, callers compose typed expressions
// that render themselves through SQL(). The query layer builds WHERE
// fragments, JOIN clauses and complete SELECT statements from these pieces,
// and the rendered statements can be compared as plain strings in tests.
//
// # Expression Types
//
//	Col{Table: "assoc", Column: "parent_id"} // assoc.parent_id
//	Lit("book")                              // 'book'
//	Int(42)                                  // 42
//	Bool(true)                               // TRUE
//	Raw("1=1")                               // raw SQL (escape hatch)
//	Coalesce(a, b)                           // COALESCE(a, b)
//
// Operators:
//
//	Eq{Left: col, Right: Int(42)}           // col = 42
//	In{Expr: col, Values: []string{"a"}}    // col IN ('a')
//	InInts{Expr: col, Values: []int64{1}}   // col IN (1)
//	Like{Expr: col, Pattern: "%x%"}         // col LIKE '%x%'
//	And(a, b), Or(a, b), Not(a)              // (a AND b), (a OR b), NOT (a)
//	Exists{Query: stmt}                      // EXISTS (stmt)
//
// # Statements
//
//	SelectStmt{
//	    ColumnExprs: []Expr{Col{Table: "assoc", Column: "id"}},
//	    FromExpr:    TableAs("wp_toolset_associations", "assoc"),
//	    Where:       Eq{Left: Col{Table: "assoc", Column: "relationship_id"}, Right: Int(3)},
//	    GroupBy:     []Expr{Col{Table: "assoc", Column: "id"}},
//	    Limit:       25,
//	}
//
// Values are rendered inline. String literals double embedded single quotes
// and LIKE patterns are escaped with EscapeLike, so untrusted text can be used
// safely. Integer identifiers are rendered from typed Go integers.
package sqldsl
