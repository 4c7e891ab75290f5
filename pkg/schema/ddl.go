package schema

import (
	_ "embed"
	"fmt"
	"strings"
)

// The DDL is embedded at compile time. Every statement is idempotent
// (CREATE ... IF NOT EXISTS) and {prefix} is replaced with the catalog prefix.

//go:embed sql/associations.sql
var associationsSQL string

//go:embed sql/relationships.sql
var relationshipsSQL string

//go:embed sql/type_sets.sql
var typeSetsSQL string

var ddl = map[Table]string{
	Associations:  associationsSQL,
	Relationships: relationshipsSQL,
	TypeSets:      typeSetsSQL,
}

// CreateStatements returns the DDL statements creating t and its indexes,
// one statement per element, without trailing semicolons.
func (c Catalog) CreateStatements(t Table) ([]string, error) {
	src, ok := ddl[t]
	if !ok {
		return nil, fmt.Errorf("no DDL for table %q", t)
	}
	src = strings.ReplaceAll(src, "{prefix}", c.prefix)

	var stmts []string
	for _, part := range strings.Split(src, ";") {
		stmt := stripComments(part)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

// DropStatement returns the statement dropping t.
func (c Catalog) DropStatement(t Table) string {
	return "DROP TABLE IF EXISTS " + c.Name(t)
}

func stripComments(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
