package definition

import (
	"github.com/pthm/m2m"
)

// Columns lists the relationship table columns in the order Row maps them.
var Columns = []string{
	"id", "slug", "display_name_plural", "display_name_singular", "driver",
	"parent_domain", "parent_types", "child_domain", "child_types",
	"intermediary_type", "ownership",
	"cardinality_parent_max", "cardinality_parent_min",
	"cardinality_child_max", "cardinality_child_min",
	"is_distinct", "scope", "origin",
	"role_name_parent", "role_name_child", "role_name_intermediary",
	"role_label_parent_singular", "role_label_child_singular",
	"role_label_parent_plural", "role_label_child_plural",
	"needs_legacy_support", "is_active",
}

// Row is one row of the relationship table.
type Row struct {
	ID                      int64  `db:"id"`
	Slug                    string `db:"slug"`
	DisplayNamePlural       string `db:"display_name_plural"`
	DisplayNameSingular     string `db:"display_name_singular"`
	Driver                  string `db:"driver"`
	ParentDomain            string `db:"parent_domain"`
	ParentTypes             int64  `db:"parent_types"`
	ChildDomain             string `db:"child_domain"`
	ChildTypes              int64  `db:"child_types"`
	IntermediaryType        string `db:"intermediary_type"`
	Ownership               string `db:"ownership"`
	CardinalityParentMax    int    `db:"cardinality_parent_max"`
	CardinalityParentMin    int    `db:"cardinality_parent_min"`
	CardinalityChildMax     int    `db:"cardinality_child_max"`
	CardinalityChildMin     int    `db:"cardinality_child_min"`
	IsDistinct              bool   `db:"is_distinct"`
	Scope                   string `db:"scope"`
	Origin                  string `db:"origin"`
	RoleNameParent          string `db:"role_name_parent"`
	RoleNameChild           string `db:"role_name_child"`
	RoleNameIntermediary    string `db:"role_name_intermediary"`
	RoleLabelParentSingular string `db:"role_label_parent_singular"`
	RoleLabelChildSingular  string `db:"role_label_child_singular"`
	RoleLabelParentPlural   string `db:"role_label_parent_plural"`
	RoleLabelChildPlural    string `db:"role_label_child_plural"`
	NeedsLegacySupport      bool   `db:"needs_legacy_support"`
	IsActive                bool   `db:"is_active"`
}

// Values returns the column values in Columns order, without the ID.
func (r Row) Values() []any {
	return []any{
		r.Slug, r.DisplayNamePlural, r.DisplayNameSingular, r.Driver,
		r.ParentDomain, r.ParentTypes, r.ChildDomain, r.ChildTypes,
		r.IntermediaryType, r.Ownership,
		r.CardinalityParentMax, r.CardinalityParentMin,
		r.CardinalityChildMax, r.CardinalityChildMin,
		r.IsDistinct, r.Scope, r.Origin,
		r.RoleNameParent, r.RoleNameChild, r.RoleNameIntermediary,
		r.RoleLabelParentSingular, r.RoleLabelChildSingular,
		r.RoleLabelParentPlural, r.RoleLabelChildPlural,
		r.NeedsLegacySupport, r.IsActive,
	}
}

// Definition converts the row. types maps type set IDs to their members.
func (r Row) Definition(types map[int64][]string) m2m.Definition {
	return m2m.Definition{
		ID:                  r.ID,
		Slug:                r.Slug,
		DisplayNamePlural:   r.DisplayNamePlural,
		DisplayNameSingular: r.DisplayNameSingular,
		Driver:              r.Driver,
		Parent: m2m.RoleDefinition{
			Domain:      m2m.Domain(r.ParentDomain),
			Types:       types[r.ParentTypes],
			TypeSetID:   r.ParentTypes,
			Cardinality: m2m.Cardinality{Min: r.CardinalityParentMin, Max: r.CardinalityParentMax},
		},
		Child: m2m.RoleDefinition{
			Domain:      m2m.Domain(r.ChildDomain),
			Types:       types[r.ChildTypes],
			TypeSetID:   r.ChildTypes,
			Cardinality: m2m.Cardinality{Min: r.CardinalityChildMin, Max: r.CardinalityChildMax},
		},
		IntermediaryType: r.IntermediaryType,
		Ownership:        m2m.Ownership(r.Ownership),
		IsDistinct:       r.IsDistinct,
		Scope:            r.Scope,
		Origin:           m2m.Origin(r.Origin),
		RoleNames: m2m.RoleNames{
			Parent:       r.RoleNameParent,
			Child:        r.RoleNameChild,
			Intermediary: r.RoleNameIntermediary,
		},
		RoleLabels: m2m.RoleLabels{
			ParentSingular: r.RoleLabelParentSingular,
			ParentPlural:   r.RoleLabelParentPlural,
			ChildSingular:  r.RoleLabelChildSingular,
			ChildPlural:    r.RoleLabelChildPlural,
		},
		NeedsLegacySupport: r.NeedsLegacySupport,
		IsActive:           r.IsActive,
	}
}

// RowFrom converts a definition into a row.
func RowFrom(d *m2m.Definition) Row {
	ownership := d.Ownership
	if ownership == "" {
		ownership = m2m.OwnershipNone
	}
	return Row{
		ID:                      d.ID,
		Slug:                    d.Slug,
		DisplayNamePlural:       d.DisplayNamePlural,
		DisplayNameSingular:     d.DisplayNameSingular,
		Driver:                  d.Driver,
		ParentDomain:            string(d.Parent.Domain),
		ParentTypes:             d.Parent.TypeSetID,
		ChildDomain:             string(d.Child.Domain),
		ChildTypes:              d.Child.TypeSetID,
		IntermediaryType:        d.IntermediaryType,
		Ownership:               string(ownership),
		CardinalityParentMax:    d.Parent.Cardinality.Max,
		CardinalityParentMin:    d.Parent.Cardinality.Min,
		CardinalityChildMax:     d.Child.Cardinality.Max,
		CardinalityChildMin:     d.Child.Cardinality.Min,
		IsDistinct:              d.IsDistinct,
		Scope:                   d.Scope,
		Origin:                  string(d.Origin),
		RoleNameParent:          d.RoleNames.Parent,
		RoleNameChild:           d.RoleNames.Child,
		RoleNameIntermediary:    d.RoleNames.Intermediary,
		RoleLabelParentSingular: d.RoleLabels.ParentSingular,
		RoleLabelChildSingular:  d.RoleLabels.ChildSingular,
		RoleLabelParentPlural:   d.RoleLabels.ParentPlural,
		RoleLabelChildPlural:    d.RoleLabels.ChildPlural,
		NeedsLegacySupport:      d.NeedsLegacySupport,
		IsActive:                d.IsActive,
	}
}
