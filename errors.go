package m2m

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
//
// Validation failures wrap ErrInvalidArgument and are returned from
// constructors immediately. Business-rule failures during batch work are
// carried inside a Result rather than returned, so batch callers can keep
// going. Use the Is*Err helpers to test for a specific failure.
var (
	// ErrInvalidArgument is returned for malformed input: negative IDs,
	// unknown roles, domains or operators, slugs that are too long.
	ErrInvalidArgument = errors.New("m2m: invalid argument")

	// ErrQueryConsumed is returned when a finalized query is executed twice.
	// Build a new query for every execution.
	ErrQueryConsumed = errors.New("m2m: query results already consumed")

	// ErrFoundRowsNotRequested is returned by FoundRows when the builder did
	// not call NeedFoundRows.
	ErrFoundRowsNotRequested = errors.New("m2m: found rows were not requested")

	// ErrQueryNotExecuted is returned by FoundRows before Results ran.
	ErrQueryNotExecuted = errors.New("m2m: query has not been executed")

	// ErrDefinitionNotFound is returned when no relationship matches a slug or ID.
	ErrDefinitionNotFound = errors.New("m2m: relationship definition not found")

	// ErrSlugTaken is returned when renaming a relationship to a slug in use.
	ErrSlugTaken = errors.New("m2m: relationship slug already in use")

	// ErrAlreadyAssociated is carried by a failed Result when the elements
	// are already connected under the relationship.
	ErrAlreadyAssociated = errors.New("m2m: elements already associated")

	// ErrCardinalityExceeded is carried by a failed Result when a new
	// association would break a role's maximum cardinality.
	ErrCardinalityExceeded = errors.New("m2m: cardinality limit reached")

	// ErrTypeMismatch is carried by a failed Result when an element's type is
	// not accepted by its role.
	ErrTypeMismatch = errors.New("m2m: element type not accepted by role")

	// ErrElementNotFound is returned when an element does not exist.
	ErrElementNotFound = errors.New("m2m: element not found")

	// ErrMigrationStateMismatch is returned when a migration step disagrees
	// with the persisted run state, for example a different items_per_step.
	ErrMigrationStateMismatch = errors.New("m2m: migration step does not match run state")

	// ErrTablesMissing is returned when the relationship tables do not exist.
	// Run `m2m migrate` to create them.
	ErrTablesMissing = errors.New("m2m: relationship tables missing")
)

// IsInvalidArgumentErr returns true if err is or wraps ErrInvalidArgument.
func IsInvalidArgumentErr(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsQueryConsumedErr returns true if err is or wraps ErrQueryConsumed.
func IsQueryConsumedErr(err error) bool {
	return errors.Is(err, ErrQueryConsumed)
}

// IsDefinitionNotFoundErr returns true if err is or wraps ErrDefinitionNotFound.
func IsDefinitionNotFoundErr(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsAlreadyAssociatedErr returns true if err is or wraps ErrAlreadyAssociated.
func IsAlreadyAssociatedErr(err error) bool {
	return errors.Is(err, ErrAlreadyAssociated)
}

// IsCardinalityExceededErr returns true if err is or wraps ErrCardinalityExceeded.
func IsCardinalityExceededErr(err error) bool {
	return errors.Is(err, ErrCardinalityExceeded)
}

// IsTypeMismatchErr returns true if err is or wraps ErrTypeMismatch.
func IsTypeMismatchErr(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}

// IsSlugTakenErr returns true if err is or wraps ErrSlugTaken.
func IsSlugTakenErr(err error) bool {
	return errors.Is(err, ErrSlugTaken)
}

// IsElementNotFoundErr returns true if err is or wraps ErrElementNotFound.
func IsElementNotFoundErr(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}

// IsMigrationStateMismatchErr returns true if err is or wraps ErrMigrationStateMismatch.
func IsMigrationStateMismatchErr(err error) bool {
	return errors.Is(err, ErrMigrationStateMismatch)
}

// IsTablesMissingErr returns true if err is or wraps ErrTablesMissing.
func IsTablesMissingErr(err error) bool {
	return errors.Is(err, ErrTablesMissing)
}

// Invalidf returns an error wrapping ErrInvalidArgument.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
