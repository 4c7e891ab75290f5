package m2m_test

import (
	"strings"
	"testing"

	"github.com/pthm/m2m"
)

func legacyDefinition() *m2m.Definition {
	return &m2m.Definition{
		Slug:   "book_review",
		Origin: m2m.OriginMigration,
		Parent: m2m.RoleDefinition{
			Domain:      m2m.DomainPosts,
			Types:       []string{"book"},
			Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite},
		},
		Child: m2m.RoleDefinition{
			Domain:      m2m.DomainPosts,
			Types:       []string{"review"},
			Cardinality: m2m.Cardinality{Min: 0, Max: 1},
		},
		Ownership:          m2m.OwnershipNone,
		IsDistinct:         true,
		NeedsLegacySupport: true,
		IsActive:           true,
	}
}

func TestDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *m2m.Definition)
		wantErr string
	}{
		{name: "valid", mutate: func(*m2m.Definition) {}},
		{
			name:    "missing slug",
			mutate:  func(d *m2m.Definition) { d.Slug = "" },
			wantErr: "Slug",
		},
		{
			name:    "slug too long",
			mutate:  func(d *m2m.Definition) { d.Slug = strings.Repeat("a", m2m.MaxSlugLength+1) },
			wantErr: "Slug",
		},
		{
			name:   "slug at limit",
			mutate: func(d *m2m.Definition) { d.Slug = strings.Repeat("a", m2m.MaxSlugLength) },
		},
		{
			name:    "cardinality below infinite",
			mutate:  func(d *m2m.Definition) { d.Child.Cardinality.Max = -2 },
			wantErr: "Max",
		},
		{
			name:    "min above max",
			mutate:  func(d *m2m.Definition) { d.Child.Cardinality = m2m.Cardinality{Min: 3, Max: 1} },
			wantErr: "min above max",
		},
		{
			name:    "unknown domain",
			mutate:  func(d *m2m.Definition) { d.Parent.Domain = "comments" },
			wantErr: "unknown parent domain",
		},
		{
			name:    "unknown origin",
			mutate:  func(d *m2m.Definition) { d.Origin = "import" },
			wantErr: "unknown origin",
		},
		{
			name:    "empty type name",
			mutate:  func(d *m2m.Definition) { d.Parent.Types = []string{""} },
			wantErr: "Types",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := legacyDefinition()
			tt.mutate(d)
			err := d.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !m2m.IsInvalidArgumentErr(err) {
				t.Fatalf("Validate() = %v, want invalid argument", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDefinitionCardinalityType(t *testing.T) {
	d := legacyDefinition()
	if got := d.CardinalityType(); got != m2m.OneToMany {
		t.Errorf("legacy definition: got %s, want %s", got, m2m.OneToMany)
	}

	d.Parent.Cardinality.Max = 1
	if got := d.CardinalityType(); got != m2m.OneToOne {
		t.Errorf("both max 1: got %s, want %s", got, m2m.OneToOne)
	}

	d.Parent.Cardinality.Max = m2m.Infinite
	d.Child.Cardinality.Max = 5
	if got := d.CardinalityType(); got != m2m.ManyToMany {
		t.Errorf("both many: got %s, want %s", got, m2m.ManyToMany)
	}
}

func TestCardinalityAllows(t *testing.T) {
	if !(m2m.Cardinality{Max: m2m.Infinite}).Allows(1000) {
		t.Error("infinite cardinality should allow any count")
	}
	one := m2m.Cardinality{Max: 1}
	if !one.Allows(0) {
		t.Error("max 1 should allow the first association")
	}
	if one.Allows(1) {
		t.Error("max 1 should reject the second association")
	}
	if got := (m2m.Cardinality{Min: 0, Max: m2m.Infinite}).String(); got != "0..*" {
		t.Errorf("String() = %q, want 0..*", got)
	}
}

func TestRoleHelpers(t *testing.T) {
	if _, err := m2m.ParseRole("sibling"); !m2m.IsInvalidArgumentErr(err) {
		t.Errorf("ParseRole(sibling) = %v, want invalid argument", err)
	}
	r, err := m2m.ParseRole("child")
	if err != nil || r != m2m.RoleChild {
		t.Fatalf("ParseRole(child) = %v, %v", r, err)
	}
	if r.Other() != m2m.RoleParent {
		t.Errorf("child.Other() = %q, want parent", r.Other())
	}
	if m2m.RoleIntermediary.Column() != "intermediary_id" {
		t.Errorf("Column() = %q", m2m.RoleIntermediary.Column())
	}
	if _, err := m2m.ParseDomain("comments"); !m2m.IsInvalidArgumentErr(err) {
		t.Errorf("ParseDomain(comments) = %v, want invalid argument", err)
	}

	d := legacyDefinition()
	d.IntermediaryType = "book-review-data"
	im := d.Role(m2m.RoleIntermediary)
	if im.Domain != m2m.DomainPosts || !im.AcceptsType("book-review-data") || im.AcceptsType("book") {
		t.Errorf("intermediary role = %+v", im)
	}
}

func TestAssociationValidate(t *testing.T) {
	ok := m2m.Association{RelationshipID: 1, ParentID: 42, ChildID: 7}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	bad := []m2m.Association{
		{RelationshipID: 0, ParentID: 42, ChildID: 7},
		{RelationshipID: 1, ParentID: -1, ChildID: 7},
		{RelationshipID: 1, ParentID: 42, ChildID: 7, IntermediaryID: -5},
	}
	for _, a := range bad {
		if err := a.Validate(); !m2m.IsInvalidArgumentErr(err) {
			t.Errorf("Validate(%+v) = %v, want invalid argument", a, err)
		}
	}
}
