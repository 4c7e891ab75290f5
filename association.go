package m2m

// Association connects a parent element, a child element and optionally an
// intermediary post under one relationship definition.
type Association struct {
	ID             int64 `json:"id" db:"id"`
	RelationshipID int64 `json:"relationship_id" db:"relationship_id"`
	ParentID       int64 `json:"parent_id" db:"parent_id"`
	ChildID        int64 `json:"child_id" db:"child_id"`
	// IntermediaryID is 0 when the association has no intermediary post.
	IntermediaryID int64 `json:"intermediary_id" db:"intermediary_id"`

	// Translated holds the element IDs resolved to the requested language.
	// It is only filled by queries that requested translated elements.
	Translated ElementIDs `json:"translated,omitempty" db:"-"`
}

// ElementIDs holds one element ID per role.
type ElementIDs struct {
	Parent       int64 `json:"parent,omitempty"`
	Child        int64 `json:"child,omitempty"`
	Intermediary int64 `json:"intermediary,omitempty"`
}

// ElementID returns the stored element ID for role r.
func (a Association) ElementID(r Role) int64 {
	switch r {
	case RoleParent:
		return a.ParentID
	case RoleChild:
		return a.ChildID
	case RoleIntermediary:
		return a.IntermediaryID
	}
	return 0
}

// HasIntermediary reports whether an intermediary post is tied to a.
func (a Association) HasIntermediary() bool {
	return a.IntermediaryID != 0
}

// Validate checks the element IDs of an association about to be stored.
func (a Association) Validate() error {
	if a.RelationshipID <= 0 {
		return Invalidf("relationship id must be positive, got %d", a.RelationshipID)
	}
	if a.ParentID <= 0 || a.ChildID <= 0 {
		return Invalidf("parent and child ids must be positive, got %d and %d", a.ParentID, a.ChildID)
	}
	if a.IntermediaryID < 0 {
		return Invalidf("intermediary id must not be negative, got %d", a.IntermediaryID)
	}
	return nil
}

// DeletionContext travels with a post deletion through the cleanup chain.
// SuppressCascade is set when the engine itself deletes a post, so that the
// post-deletion handler does not start another cleanup for it.
type DeletionContext struct {
	SuppressCascade bool
}

// Purposeful returns a context for deletions issued by the engine.
func Purposeful() DeletionContext {
	return DeletionContext{SuppressCascade: true}
}
