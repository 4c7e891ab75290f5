package m2m

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Infinite marks an unbounded cardinality limit.
const Infinite = -1

// MaxSlugLength is the longest slug a relationship definition may carry.
const MaxSlugLength = 255

// Cardinality bounds how many associations a single element may take part in
// while holding one role. A bound of Infinite means no limit.
type Cardinality struct {
	Min int `json:"min" validate:"gte=-1"`
	Max int `json:"max" validate:"gte=-1"`
}

// Unbounded reports whether Max is Infinite.
func (c Cardinality) Unbounded() bool {
	return c.Max == Infinite
}

// Allows reports whether an element that already takes part in count
// associations may take part in one more.
func (c Cardinality) Allows(count int) bool {
	return c.Unbounded() || count < c.Max
}

func (c Cardinality) String() string {
	bound := func(v int) string {
		if v == Infinite {
			return "*"
		}
		return fmt.Sprintf("%d", v)
	}
	return bound(c.Min) + ".." + bound(c.Max)
}

// CardinalityType classifies a definition by its maximum bounds.
type CardinalityType string

const (
	OneToOne   CardinalityType = "one-to-one"
	OneToMany  CardinalityType = "one-to-many"
	ManyToMany CardinalityType = "many-to-many"
)

// Valid reports whether t is one of the known cardinality types.
func (t CardinalityType) Valid() bool {
	switch t {
	case OneToOne, OneToMany, ManyToMany:
		return true
	}
	return false
}

// RoleDefinition describes what one role of a relationship accepts.
type RoleDefinition struct {
	Domain      Domain      `json:"domain"`
	Types       []string    `json:"types" validate:"dive,required,max=20"`
	TypeSetID   int64       `json:"type_set_id" validate:"gte=0"`
	Cardinality Cardinality `json:"cardinality"`
}

// AcceptsType reports whether t is one of the role's types. A role with an
// empty type set accepts any type.
func (r RoleDefinition) AcceptsType(t string) bool {
	if len(r.Types) == 0 {
		return true
	}
	for _, candidate := range r.Types {
		if candidate == t {
			return true
		}
	}
	return false
}

// RoleNames holds the custom role names shown to users.
type RoleNames struct {
	Parent       string `json:"parent" validate:"max=255"`
	Child        string `json:"child" validate:"max=255"`
	Intermediary string `json:"intermediary" validate:"max=255"`
}

// RoleLabels holds the singular and plural labels of the primary roles.
type RoleLabels struct {
	ParentSingular string `json:"parent_singular" validate:"max=255"`
	ParentPlural   string `json:"parent_plural" validate:"max=255"`
	ChildSingular  string `json:"child_singular" validate:"max=255"`
	ChildPlural    string `json:"child_plural" validate:"max=255"`
}

// Definition is a named connection type between a parent role, a child role
// and an optional intermediary post type.
type Definition struct {
	ID                  int64          `json:"id"`
	Slug                string         `json:"slug" validate:"required,max=255"`
	DisplayNamePlural   string         `json:"display_name_plural" validate:"max=255"`
	DisplayNameSingular string         `json:"display_name_singular" validate:"max=255"`
	Driver              string         `json:"driver" validate:"max=50"`
	Parent              RoleDefinition `json:"parent"`
	Child               RoleDefinition `json:"child"`
	IntermediaryType    string         `json:"intermediary_type" validate:"max=20"`
	Ownership           Ownership      `json:"ownership"`
	IsDistinct          bool           `json:"is_distinct"`
	Scope               string         `json:"scope"`
	Origin              Origin         `json:"origin"`
	RoleNames           RoleNames      `json:"role_names"`
	RoleLabels          RoleLabels     `json:"role_labels"`
	NeedsLegacySupport  bool           `json:"needs_legacy_support"`
	IsActive            bool           `json:"is_active"`
}

// Role returns the role definition for r. The intermediary role is always
// in the posts domain and accepts the intermediary type only.
func (d *Definition) Role(r Role) RoleDefinition {
	switch r {
	case RoleParent:
		return d.Parent
	case RoleChild:
		return d.Child
	}
	rd := RoleDefinition{Domain: DomainPosts, Cardinality: Cardinality{Min: 0, Max: Infinite}}
	if d.IntermediaryType != "" {
		rd.Types = []string{d.IntermediaryType}
	}
	return rd
}

// HasIntermediary reports whether associations carry an intermediary post.
func (d *Definition) HasIntermediary() bool {
	return d.IntermediaryType != ""
}

// CardinalityType classifies the definition.
func (d *Definition) CardinalityType() CardinalityType {
	parentMany := d.Parent.Cardinality.Max != 1
	childMany := d.Child.Cardinality.Max != 1
	switch {
	case !parentMany && !childMany:
		return OneToOne
	case parentMany && childMany:
		return ManyToMany
	}
	return OneToMany
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the invariants of a definition before it is persisted.
// Every returned error wraps ErrInvalidArgument.
func (d *Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: definition %q: %s", ErrInvalidArgument, d.Slug, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: definition %q: %v", ErrInvalidArgument, d.Slug, err)
	}
	if !d.Origin.Valid() {
		return fmt.Errorf("%w: definition %q: unknown origin %q", ErrInvalidArgument, d.Slug, d.Origin)
	}
	if d.Ownership != "" && !d.Ownership.Valid() {
		return fmt.Errorf("%w: definition %q: unknown ownership %q", ErrInvalidArgument, d.Slug, d.Ownership)
	}
	for _, r := range []Role{RoleParent, RoleChild} {
		rd := d.Role(r)
		if !rd.Domain.Valid() {
			return fmt.Errorf("%w: definition %q: unknown %s domain %q", ErrInvalidArgument, d.Slug, r, rd.Domain)
		}
		c := rd.Cardinality
		if c.Min != Infinite && c.Max != Infinite && c.Min > c.Max {
			return fmt.Errorf("%w: definition %q: %s cardinality %s has min above max", ErrInvalidArgument, d.Slug, r, c)
		}
	}
	return nil
}

// TypeSet is a group of concrete types stored under one set ID.
type TypeSet struct {
	SetID int64
	Types []string
}
