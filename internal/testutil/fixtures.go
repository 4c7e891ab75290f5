package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// Fixtures inserts host rows (posts, postmeta, options, translations) for
// tests. Every helper fails the test on error.
type Fixtures struct {
	tb  testing.TB
	db  *sqlx.DB
	ctx context.Context
}

// NewFixtures returns fixture helpers for db.
func NewFixtures(tb testing.TB, db *sqlx.DB) *Fixtures {
	return &Fixtures{tb: tb, db: db, ctx: context.Background()}
}

// Post inserts a published post and returns its ID.
func (f *Fixtures) Post(postType, title string) int64 {
	f.tb.Helper()
	return f.PostWith(postType, "publish", title, "")
}

// PostWith inserts a post with the given status and content.
func (f *Fixtures) PostWith(postType, status, title, content string) int64 {
	f.tb.Helper()

	var id int64
	err := f.db.GetContext(f.ctx, &id,
		`INSERT INTO wp_posts (post_type, post_status, post_title, post_content) VALUES ($1, $2, $3, $4) RETURNING id`,
		postType, status, title, content)
	require.NoError(f.tb, err, "insert post")
	return id
}

// PostWithID inserts a published post under a fixed ID.
func (f *Fixtures) PostWithID(id int64, postType, title string) {
	f.tb.Helper()

	_, err := f.db.ExecContext(f.ctx,
		`INSERT INTO wp_posts (id, post_type, post_title) VALUES ($1, $2, $3)`,
		id, postType, title)
	require.NoError(f.tb, err, "insert post")
}

// Posts inserts n published posts of postType and returns their IDs.
func (f *Fixtures) Posts(postType string, n int) []int64 {
	f.tb.Helper()

	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, f.Post(postType, ""))
	}
	return ids
}

// Meta adds a postmeta row.
func (f *Fixtures) Meta(postID int64, key, value string) {
	f.tb.Helper()

	_, err := f.db.ExecContext(f.ctx,
		`INSERT INTO wp_postmeta (post_id, meta_key, meta_value) VALUES ($1, $2, $3)`,
		postID, key, value)
	require.NoError(f.tb, err, "insert postmeta")
}

// Option stores value as a JSON encoded option.
func (f *Fixtures) Option(name string, value any) {
	f.tb.Helper()

	raw, err := json.Marshal(value)
	require.NoError(f.tb, err, "encode option")

	_, err = f.db.ExecContext(f.ctx,
		`INSERT INTO wp_options (option_name, option_value) VALUES ($1, $2)
		 ON CONFLICT (option_name) DO UPDATE SET option_value = EXCLUDED.option_value`,
		name, string(raw))
	require.NoError(f.tb, err, "insert option")
}

// Translation links a post into the translation group trid under lang.
// source is empty for the original (default language) post.
func (f *Fixtures) Translation(postID int64, postType string, trid int64, lang, source string) {
	f.tb.Helper()

	var src any
	if source != "" {
		src = source
	}
	_, err := f.db.ExecContext(f.ctx,
		`INSERT INTO wp_icl_translations (element_type, element_id, trid, language_code, source_language_code)
		 VALUES ($1, $2, $3, $4, $5)`,
		"post_"+postType, postID, trid, lang, src)
	require.NoError(f.tb, err, "insert translation")
}

// CountPosts returns the number of posts of postType.
func (f *Fixtures) CountPosts(postType string) int {
	f.tb.Helper()

	var n int
	err := f.db.GetContext(f.ctx, &n, `SELECT COUNT(*) FROM wp_posts WHERE post_type = $1`, postType)
	require.NoError(f.tb, err, "count posts")
	return n
}

// PostExists reports whether a post with id exists.
func (f *Fixtures) PostExists(id int64) bool {
	f.tb.Helper()

	var exists bool
	err := f.db.GetContext(f.ctx, &exists, `SELECT EXISTS (SELECT 1 FROM wp_posts WHERE id = $1)`, id)
	require.NoError(f.tb, err, "check post")
	return exists
}

// OptionValue decodes the JSON encoded option name into dest and reports
// whether it exists.
func (f *Fixtures) OptionValue(name string, dest any) bool {
	f.tb.Helper()

	var raw []string
	err := f.db.SelectContext(f.ctx, &raw, `SELECT option_value FROM wp_options WHERE option_name = $1`, name)
	require.NoError(f.tb, err, "load option")
	if len(raw) == 0 {
		return false
	}
	require.NoError(f.tb, json.Unmarshal([]byte(raw[0]), dest), "decode option")
	return true
}

// CountAssociations returns the number of association rows.
func (f *Fixtures) CountAssociations() int {
	f.tb.Helper()

	var n int
	err := f.db.GetContext(f.ctx, &n, `SELECT COUNT(*) FROM wp_toolset_associations`)
	require.NoError(f.tb, err, "count associations")
	return n
}
