package cleanup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/host/pghost"
	"github.com/pthm/m2m/pkg/schema"
)

func TestDanglingStmt(t *testing.T) {
	sql := danglingStmt(schema.DefaultCatalog(), host.NoLocalization{}, 25).SQL()

	assert.Contains(t, sql, "SELECT post.id\nFROM wp_posts AS post")
	assert.Contains(t, sql, "post.post_type IN (\nSELECT DISTINCT rel.intermediary_type\nFROM wp_toolset_relationships AS rel")
	assert.Contains(t, sql, "NOT EXISTS (\nSELECT 1\nFROM wp_toolset_associations AS assoc\nWHERE assoc.intermediary_id = post.id\n)")
	assert.Contains(t, sql, "ORDER BY post.id")
	assert.Contains(t, sql, "LIMIT 25")
	assert.NotContains(t, sql, "icl_translations")
}

func TestDanglingStmt_Localized(t *testing.T) {
	loc := pghost.NewLocalization(nil, pghost.LanguageConfig{Active: true, DefaultLanguage: "en"})
	sql := danglingStmt(schema.DefaultCatalog(), loc, 10).SQL()

	assert.Contains(t, sql, "FROM wp_icl_translations AS tr")
	assert.Contains(t, sql, "default_tr.language_code = 'en'")
	assert.Contains(t, sql, "default_assoc.intermediary_id = default_tr.element_id")
	assert.Contains(t, sql, "tr.element_id = post.id")
}

func TestDanglingStmt_Count(t *testing.T) {
	sql := danglingStmt(schema.DefaultCatalog(), nil, 25).CountStmt("dangling").SQL()

	assert.Contains(t, sql, "SELECT COUNT(*)")
	assert.Contains(t, sql, ") AS dangling")
	assert.NotContains(t, sql, "LIMIT")
}
