package query

import (
	"strconv"
)

// AliasGenerator hands out table aliases that are unique within one query.
// The first request for a base name returns it unchanged; later requests
// append a counter (type_set, type_set_2, type_set_3, ...).
type AliasGenerator struct {
	issued map[string]bool
	next   map[string]int
}

// NewAliasGenerator returns a generator with the given aliases reserved.
func NewAliasGenerator(reserved ...string) *AliasGenerator {
	g := &AliasGenerator{issued: map[string]bool{}, next: map[string]int{}}
	for _, r := range reserved {
		g.issued[r] = true
	}
	return g
}

// Generate returns an alias for base that has not been issued before.
func (g *AliasGenerator) Generate(base string) string {
	if !g.issued[base] {
		g.issued[base] = true
		return base
	}
	n := g.next[base]
	if n < 2 {
		n = 2
	}
	for {
		candidate := base + "_" + strconv.Itoa(n)
		n++
		if !g.issued[candidate] {
			g.next[base] = n
			g.issued[candidate] = true
			return candidate
		}
	}
}
