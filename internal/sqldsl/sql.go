package sqldsl

import (
	"fmt"
	"strings"
)

// Optf returns formatted string if condition is true, empty string otherwise.
// Useful for optional SQL clauses.
func Optf(cond bool, format string, args ...any) string {
	if !cond {
		return ""
	}
	return fmt.Sprintf(format, args...)
}

// JoinClause represents a SQL JOIN clause.
type JoinClause struct {
	Type      string // "INNER", "LEFT"
	TableExpr TableExpr
	On        Expr
}

// SQL renders the JOIN clause.
func (j JoinClause) SQL() string {
	joinType := j.Type
	if joinType == "" {
		joinType = "INNER"
	}
	if j.On == nil {
		return joinType + " JOIN " + j.TableExpr.TableSQL()
	}
	return joinType + " JOIN " + j.TableExpr.TableSQL() + " ON " + j.On.SQL()
}

// LeftJoin creates a LEFT JOIN of table on cond.
func LeftJoin(table TableExpr, on Expr) JoinClause {
	return JoinClause{Type: "LEFT", TableExpr: table, On: on}
}

// InnerJoin creates an INNER JOIN of table on cond.
func InnerJoin(table TableExpr, on Expr) JoinClause {
	return JoinClause{Type: "INNER", TableExpr: table, On: on}
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Expr Expr
	Desc bool
}

// SQL renders the ordering term.
func (o OrderTerm) SQL() string {
	if o.Desc {
		return o.Expr.SQL() + " DESC"
	}
	return o.Expr.SQL() + " ASC"
}

// SelectStmt represents a SELECT query.
type SelectStmt struct {
	Distinct    bool
	ColumnExprs []Expr
	FromExpr    TableExpr
	Joins       []JoinClause
	Where       Expr
	GroupBy     []Expr
	OrderBy     []OrderTerm
	Limit       int
	Offset      int
	ForUpdate   bool
}

// SQL renders the SELECT statement, one clause per line.
func (s SelectStmt) SQL() string {
	lines := []string{"SELECT " + Optf(s.Distinct, "DISTINCT ") + s.columnsSQL()}
	if s.FromExpr != nil {
		lines = append(lines, "FROM "+s.FromExpr.TableSQL())
	}
	for _, j := range s.Joins {
		lines = append(lines, j.SQL())
	}
	if s.Where != nil {
		lines = append(lines, "WHERE "+s.Where.SQL())
	}
	if len(s.GroupBy) > 0 {
		lines = append(lines, "GROUP BY "+joinSQL(s.GroupBy))
	}
	if len(s.OrderBy) > 0 {
		terms := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			terms[i] = o.SQL()
		}
		lines = append(lines, "ORDER BY "+strings.Join(terms, ", "))
	}
	if s.Limit > 0 {
		lines = append(lines, fmt.Sprintf("LIMIT %d", s.Limit))
	}
	if s.Offset > 0 {
		lines = append(lines, fmt.Sprintf("OFFSET %d", s.Offset))
	}
	if s.ForUpdate {
		lines = append(lines, "FOR UPDATE")
	}
	return strings.Join(lines, "\n")
}

// Unpaged returns a copy of s without ordering, limit and offset.
// The copy is what a found-rows count wraps.
func (s SelectStmt) Unpaged() SelectStmt {
	s.OrderBy = nil
	s.Limit = 0
	s.Offset = 0
	return s
}

// CountStmt wraps s in SELECT COUNT(*) FROM (s) AS alias, ignoring paging.
func (s SelectStmt) CountStmt(alias string) SelectStmt {
	return SelectStmt{
		ColumnExprs: []Expr{Count()},
		FromExpr:    Subquery{Query: s.Unpaged(), Alias: alias},
	}
}

func (s SelectStmt) columnsSQL() string {
	if len(s.ColumnExprs) == 0 {
		return "1"
	}
	return joinSQL(s.ColumnExprs)
}

func joinSQL(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.SQL()
	}
	return strings.Join(parts, ", ")
}
