// Package schema resolves logical table names to physical names and owns the
// DDL of the three relationship tables.
//
// Every physical name carries the configured prefix (wp_ by default), so a
// single database can host several installations side by side.
package schema

import (
	"fmt"
	"regexp"
)

// Table is a logical table name.
type Table string

// Tables owned by the engine.
const (
	Associations  Table = "toolset_associations"
	Relationships Table = "toolset_relationships"
	TypeSets      Table = "toolset_type_sets"
)

// Host tables the engine reads from and writes to through the host package.
const (
	Posts        Table = "posts"
	Postmeta     Table = "postmeta"
	Options      Table = "options"
	Users        Table = "users"
	Terms        Table = "terms"
	Translations Table = "icl_translations"
)

// EngineTables lists the tables created by CreateTables, in creation order.
var EngineTables = []Table{Relationships, TypeSets, Associations}

// DefaultPrefix is the table prefix used when none is configured.
const DefaultPrefix = "wp_"

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Catalog maps logical table names to physical ones.
type Catalog struct {
	prefix string
}

// NewCatalog returns a catalog using prefix. The prefix is spliced into SQL
// unquoted, so it may only contain letters, digits and underscores.
func NewCatalog(prefix string) (Catalog, error) {
	if !prefixPattern.MatchString(prefix) {
		return Catalog{}, fmt.Errorf("invalid table prefix %q: only letters, digits and underscores are allowed", prefix)
	}
	return Catalog{prefix: prefix}, nil
}

// MustCatalog is like NewCatalog but panics on an invalid prefix.
func MustCatalog(prefix string) Catalog {
	c, err := NewCatalog(prefix)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog returns a catalog with DefaultPrefix.
func DefaultCatalog() Catalog {
	return Catalog{prefix: DefaultPrefix}
}

// Prefix returns the configured prefix.
func (c Catalog) Prefix() string { return c.prefix }

// Name returns the physical name of t.
func (c Catalog) Name(t Table) string { return c.prefix + string(t) }

func (c Catalog) Associations() string  { return c.Name(Associations) }
func (c Catalog) Relationships() string { return c.Name(Relationships) }
func (c Catalog) TypeSets() string      { return c.Name(TypeSets) }
func (c Catalog) Posts() string         { return c.Name(Posts) }
func (c Catalog) Postmeta() string      { return c.Name(Postmeta) }
func (c Catalog) Options() string       { return c.Name(Options) }
func (c Catalog) Translations() string  { return c.Name(Translations) }
