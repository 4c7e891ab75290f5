// Package host defines the collaborators the engine consumes from the system
// it is embedded in: element storage, the option store, post type settings,
// localization, maintenance mode and operator notices.
//
// The pghost subpackage implements them over the host's PostgreSQL tables.
package host

import (
	"context"
)

// Post is the part of a post the engine reads.
type Post struct {
	ID      int64  `db:"id"`
	Type    string `db:"post_type"`
	Status  string `db:"post_status"`
	Title   string `db:"post_title"`
	Excerpt string `db:"post_excerpt"`
	Content string `db:"post_content"`
}

// Elements gives access to the posts associations point at.
type Elements interface {
	// GetPost returns ErrElementNotFound when the post does not exist.
	GetPost(ctx context.Context, id int64) (Post, error)
	CreatePost(ctx context.Context, p Post) (int64, error)
	// DeletePost removes the post and its metadata permanently.
	DeletePost(ctx context.Context, id int64) error
}

// Options is a key/value settings store holding JSON values.
type Options interface {
	// GetOption decodes the option into dest and reports whether it exists.
	GetOption(ctx context.Context, name string, dest any) (bool, error)
	SetOption(ctx context.Context, name string, value any) error
	DeleteOption(ctx context.Context, name string) error
}

// PostTypes answers questions about the registered post types.
type PostTypes interface {
	// ActivePostTypes returns the post types currently enabled. A nil slice
	// means the information is unavailable and no filtering should happen.
	ActivePostTypes(ctx context.Context) ([]string, error)
}

// TranslationMode controls how a post type behaves under localization.
type TranslationMode int

const (
	NotTranslatable TranslationMode = iota
	Translatable
	DisplayAsTranslated
)

func (m TranslationMode) String() string {
	switch m {
	case NotTranslatable:
		return "not translatable"
	case Translatable:
		return "translatable"
	case DisplayAsTranslated:
		return "display as translated"
	}
	return "unknown"
}

// Localization answers translation questions.
type Localization interface {
	IsActive() bool
	DefaultLanguage() string
	CurrentLanguage() string
	// IsShowingAllLanguages reports whether the current view lists elements
	// in every language.
	IsShowingAllLanguages() bool

	// PostLanguage returns the language code of a post, or "" when the post
	// is not part of a translation group.
	PostLanguage(ctx context.Context, postID int64) (string, error)
	// DefaultLanguagePost returns the ID of the post's translation in the
	// default language, or 0 when there is none.
	DefaultLanguagePost(ctx context.Context, postID int64) (int64, error)
	// CreateDefaultLanguagePost creates the default language translation of
	// a post, as an empty draft or as a copy of its content.
	CreateDefaultLanguagePost(ctx context.Context, postID int64, copyContent bool) (int64, error)

	PostTypeTranslationMode(ctx context.Context, postType string) (TranslationMode, error)
	SetPostTypeTranslationMode(ctx context.Context, postType string, mode TranslationMode) error
}

// Maintenance toggles the host's maintenance mode.
type Maintenance interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	IsEnabled(ctx context.Context) (bool, error)
}

// Notices shows and dismisses operator-facing notices.
type Notices interface {
	Show(ctx context.Context, id, message string) error
	Dismiss(ctx context.Context, id string) error
}
