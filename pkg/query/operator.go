package query

import (
	"github.com/pthm/m2m/internal/sqldsl"
)

// ComparisonOperator is the operator of a value comparison.
type ComparisonOperator string

const (
	OpEqual          ComparisonOperator = "="
	OpNotEqual       ComparisonOperator = "<>"
	OpLess           ComparisonOperator = "<"
	OpGreater        ComparisonOperator = ">"
	OpLessOrEqual    ComparisonOperator = "<="
	OpGreaterOrEqual ComparisonOperator = ">="
	OpLike           ComparisonOperator = "LIKE"
	OpNotLike        ComparisonOperator = "NOT LIKE"
)

// Valid reports whether op is a known operator.
func (op ComparisonOperator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpGreater, OpLessOrEqual, OpGreaterOrEqual, OpLike, OpNotLike:
		return true
	}
	return false
}

func (op ComparisonOperator) isPattern() bool {
	return op == OpLike || op == OpNotLike
}

// compare renders left op right. Pattern operators are rendered by match.
func (op ComparisonOperator) compare(left, right sqldsl.Expr) sqldsl.Expr {
	switch op {
	case OpNotEqual:
		return sqldsl.Ne{Left: left, Right: right}
	case OpLess:
		return sqldsl.Lt{Left: left, Right: right}
	case OpGreater:
		return sqldsl.Gt{Left: left, Right: right}
	case OpLessOrEqual:
		return sqldsl.Lte{Left: left, Right: right}
	case OpGreaterOrEqual:
		return sqldsl.Gte{Left: left, Right: right}
	}
	return sqldsl.Eq{Left: left, Right: right}
}

// match renders a comparison of left with a string value.
func (op ComparisonOperator) match(left sqldsl.Expr, value string) sqldsl.Expr {
	switch op {
	case OpLike:
		return sqldsl.Like{Expr: left, Pattern: value}
	case OpNotLike:
		return sqldsl.NotLike{Expr: left, Pattern: value}
	}
	return op.compare(left, sqldsl.Lit(value))
}
