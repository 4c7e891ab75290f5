package migration_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/m2m"
	m2mtest "github.com/pthm/m2m/internal/testutil"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/host/pghost"
	"github.com/pthm/m2m/pkg/migration"
	"github.com/pthm/m2m/pkg/schema"
)

type fakeMaintenance struct {
	enabled   bool
	toggles   int
	enableErr error
}

func (m *fakeMaintenance) Enable(context.Context) error {
	if m.enableErr != nil {
		return m.enableErr
	}
	m.enabled = true
	m.toggles++
	return nil
}

func (m *fakeMaintenance) Disable(context.Context) error {
	m.enabled = false
	m.toggles++
	return nil
}

func (m *fakeMaintenance) IsEnabled(context.Context) (bool, error) { return m.enabled, nil }

type env struct {
	db          *sqlx.DB
	host        *pghost.Host
	fx          *m2mtest.Fixtures
	maintenance *fakeMaintenance
}

func setup(t *testing.T) env {
	t.Helper()
	db := m2mtest.HostDB(t)
	return env{
		db:          db,
		host:        pghost.New(db, schema.DefaultCatalog()),
		fx:          m2mtest.NewFixtures(t, db),
		maintenance: &fakeMaintenance{},
	}
}

func (e env) controller(opts ...migration.Option) *migration.Controller {
	opts = append([]migration.Option{migration.WithMaintenance(e.maintenance)}, opts...)
	return migration.New(e.db, schema.DefaultCatalog(), e.host, e.host, opts...)
}

func step(t *testing.T, c *migration.Controller, req migration.StepRequest) migration.StepResponse {
	t.Helper()
	resp, err := c.Step(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, m2m.StatusError, resp.Status, resp.Message)
	return resp
}

func TestMigration_BookReview(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c := e.controller()

	e.fx.Option(migration.LegacyRelationshipsOption, map[string]any{"book": map[string]any{"review": map[string]any{}}})
	e.fx.PostWithID(42, "book", "Dune")
	review := e.fx.Post("review", "Great")
	e.fx.Meta(review, "_wpcf_belongs_book_id", "42")

	opts := migration.Options{UseMaintenanceMode: true}
	resp := step(t, c, migration.StepRequest{Phase: migration.PhaseDBDelta, Step: 0, ItemsPerStep: 50, Options: opts})
	assert.True(t, resp.Continue)
	assert.Equal(t, migration.PhaseDBDelta, resp.Phase)
	assert.Equal(t, 1, resp.Step)
	assert.NotEmpty(t, resp.RunID)
	assert.True(t, e.maintenance.enabled)
	runID := resp.RunID

	resp = step(t, c, resp.Next(opts))
	assert.Equal(t, migration.PhaseDBDelta, resp.Phase)
	assert.Equal(t, 2, resp.Step)

	resp = step(t, c, resp.Next(opts))
	assert.Equal(t, migration.PhaseDefinitionMigration, resp.Phase)
	assert.Equal(t, 3, resp.Step)

	resp = step(t, c, resp.Next(opts))
	assert.Equal(t, migration.PhaseAssociationMigration, resp.Phase)
	assert.Equal(t, 4, resp.Step)
	assert.Equal(t, 4, resp.FirstPhaseStep)

	resp = step(t, c, resp.Next(opts))
	assert.Equal(t, migration.PhaseAssociationMigration, resp.Phase)
	assert.Equal(t, 1, resp.Processed)
	assert.Equal(t, m2m.StatusSuccess, resp.Status, resp.Message)
	assert.Equal(t, runID, resp.RunID)

	ops := dbops.New(e.db, schema.DefaultCatalog())
	def, err := definition.NewRepository(ops, e.db).GetBySlug(ctx, "book_review")
	require.NoError(t, err)
	assert.Equal(t, m2m.OneToMany, def.CardinalityType())
	assert.True(t, def.IsDistinct)
	assert.True(t, def.NeedsLegacySupport)
	assert.Equal(t, m2m.OriginMigration, def.Origin)
	assert.Equal(t, []string{"book"}, def.Parent.Types)
	assert.Equal(t, []string{"review"}, def.Child.Types)

	var rows []m2m.Association
	require.NoError(t, e.db.SelectContext(ctx, &rows,
		`SELECT id, relationship_id, parent_id, child_id, intermediary_id FROM wp_toolset_associations`))
	require.Len(t, rows, 1)
	assert.Equal(t, def.ID, rows[0].RelationshipID)
	assert.Equal(t, int64(42), rows[0].ParentID)
	assert.Equal(t, review, rows[0].ChildID)
	assert.Zero(t, rows[0].IntermediaryID)

	resp = step(t, c, resp.Next(opts))
	assert.Equal(t, migration.PhaseFinish, resp.Phase)
	assert.True(t, resp.Continue)

	resp = step(t, c, resp.Next(opts))
	assert.False(t, resp.Continue)
	assert.Equal(t, m2m.StatusSuccess, resp.Status, resp.Message)
	assert.False(t, e.maintenance.enabled)

	enabled, err := c.IsEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	_, inProgress, err := c.InProgress(ctx)
	require.NoError(t, err)
	assert.False(t, inProgress)
}

func TestMigration_FullPageThenFinish(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	c := e.controller()

	e.fx.Option(migration.LegacyRelationshipsOption, map[string]any{"book": map[string]any{"review": map[string]any{}}})
	book := e.fx.Post("book", "Dune")
	_, err := e.db.ExecContext(ctx, `INSERT INTO wp_posts (post_type) SELECT 'review' FROM generate_series(1, 500)`)
	require.NoError(t, err)
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO wp_postmeta (post_id, meta_key, meta_value)
		 SELECT id, '_wpcf_belongs_book_id', $1::text FROM wp_posts WHERE post_type = 'review'`, book)
	require.NoError(t, err)

	var opts migration.Options
	resp := migration.StepResponse{Phase: migration.PhaseDBDelta, ItemsPerStep: 500}
	for resp.Phase != migration.PhaseAssociationMigration {
		resp = step(t, c, resp.Next(opts))
	}
	first := resp.Step

	resp = step(t, c, resp.Next(opts))
	assert.True(t, resp.Continue)
	assert.Equal(t, migration.PhaseAssociationMigration, resp.Phase)
	assert.Equal(t, 500, resp.Processed)
	assert.Equal(t, first+1, resp.Step)
	assert.Equal(t, 500, e.fx.CountAssociations())

	resp = step(t, c, resp.Next(opts))
	assert.True(t, resp.Continue)
	assert.Equal(t, migration.PhaseFinish, resp.Phase)
	assert.Zero(t, resp.Processed)
	assert.Equal(t, 500, e.fx.CountAssociations())
}

func TestMigration_RunIsIdempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := migration.NewMetrics(reg)
	c := e.controller(migration.WithMetrics(metrics))

	e.fx.Option(migration.LegacyRelationshipsOption, map[string]any{
		"book":   map[string]any{"review": map[string]any{}},
		"author": map[string]any{"book": map[string]any{}},
	})
	author := e.fx.Post("author", "Frank")
	books := e.fx.Posts("book", 3)
	for _, b := range books {
		e.fx.Meta(b, "_wpcf_belongs_author_id", "0")
		e.fx.Meta(e.fx.Post("review", ""), "_wpcf_belongs_book_id", itoa(b))
	}
	e.fx.Meta(books[0], "_wpcf_belongs_author_id", itoa(author))

	resp, err := c.Run(ctx, 2, migration.Options{}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Continue)
	assert.Equal(t, m2m.StatusWarning, resp.Status, "rows without a parent id are reported")
	assert.Equal(t, 4, e.fx.CountAssociations())

	var messages []string
	resp, err = c.Run(ctx, 2, migration.Options{}, func(r migration.StepResponse) {
		if r.Processed > 0 {
			messages = append(messages, r.Message)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 4, e.fx.CountAssociations())
	assert.Equal(t, 4, strings.Count(strings.Join(messages, "\n"), "already associated, skipped"))

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.LegacyRowsTotal.WithLabelValues("created")))
	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.LegacyRowsTotal.WithLabelValues("skipped")))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.StepsTotal.WithLabelValues("finish", "success")))
}

func TestMigration_RejectsItemsPerStepChange(t *testing.T) {
	e := setup(t)
	c := e.controller()

	opts := migration.Options{UseMaintenanceMode: true}
	resp := migration.StepResponse{Phase: migration.PhaseDBDelta, ItemsPerStep: 50}
	for resp.Phase != migration.PhaseAssociationMigration {
		resp = step(t, c, resp.Next(opts))
	}
	require.True(t, e.maintenance.enabled)

	req := resp.Next(opts)
	req.ItemsPerStep = 10
	resp, err := c.Step(context.Background(), req)
	assert.True(t, m2m.IsMigrationStateMismatchErr(err))
	assert.Equal(t, m2m.StatusError, resp.Status)
	assert.False(t, resp.Continue)
	assert.False(t, e.maintenance.enabled, "maintenance mode is released")

	req.ItemsPerStep = 50
	req.FirstPhaseStep = 0
	_, err = c.Step(context.Background(), req)
	assert.True(t, m2m.IsMigrationStateMismatchErr(err))
}

func TestMigration_MaintenanceFailureIsFatal(t *testing.T) {
	e := setup(t)
	e.maintenance.enableErr = errors.New("read-only filesystem")
	c := e.controller()

	resp, err := c.Step(context.Background(), migration.StepRequest{
		Phase:   migration.PhaseDBDelta,
		Options: migration.Options{UseMaintenanceMode: true},
	})
	require.NoError(t, err)
	assert.Equal(t, m2m.StatusError, resp.Status)
	assert.False(t, resp.Continue)
	assert.Contains(t, resp.Message, "unable to enable maintenance mode")
	assert.Zero(t, e.maintenance.toggles, "a failed enable is not followed by a disable")
}

func TestMigration_ResetTables(t *testing.T) {
	db := m2mtest.DB(t)
	ctx := context.Background()
	h := pghost.New(db, schema.DefaultCatalog())
	c := migration.New(db, schema.DefaultCatalog(), h, h)

	_, err := db.ExecContext(ctx,
		`INSERT INTO wp_toolset_associations (relationship_id, parent_id, child_id, intermediary_id) VALUES (1, 2, 3, 0)`)
	require.NoError(t, err)

	opts := migration.Options{ResetTables: true}
	resp := step(t, c, migration.StepRequest{Phase: migration.PhaseDBDelta, Step: 1, Options: opts})
	assert.Contains(t, resp.Message, "dropped table wp_toolset_associations")

	missing, err := dbops.New(db, schema.DefaultCatalog()).MissingTables(ctx)
	require.NoError(t, err)
	assert.Len(t, missing, 3)

	step(t, c, resp.Next(opts))
	assert.Zero(t, m2mtest.NewFixtures(t, db).CountAssociations())
}

func TestMigration_PostsWithoutDefaultTranslation(t *testing.T) {
	for _, policy := range []migration.MissingTranslationPolicy{migration.SkipMissingTranslations, migration.CreateMissingTranslations} {
		t.Run(string(policy), func(t *testing.T) {
			e := setup(t)
			ctx := context.Background()
			loc := pghost.NewLocalization(e.host, pghost.LanguageConfig{Active: true, DefaultLanguage: "en"})
			c := e.controller(migration.WithLocalization(loc))

			e.fx.Option(migration.LegacyRelationshipsOption, map[string]any{"book": map[string]any{"review": map[string]any{}}})
			book := e.fx.Post("book", "Dune")
			e.fx.Translation(book, "book", 1, "en", "")
			review := e.fx.PostWith("review", "publish", "Großartig", "Ein Klassiker")
			e.fx.Translation(review, "review", 2, "de", "")
			e.fx.Meta(review, "_wpcf_belongs_book_id", itoa(book))

			opts := migration.Options{PostsWithoutDefaultTranslation: policy, CopyContentWhenCreatingPosts: true}
			resp, err := c.Run(ctx, 10, opts, nil)
			require.NoError(t, err)

			if policy == migration.SkipMissingTranslations {
				assert.Equal(t, m2m.StatusWarning, resp.Status)
				assert.Zero(t, e.fx.CountAssociations())
				return
			}

			assert.Equal(t, m2m.StatusSuccess, resp.Status)
			require.Equal(t, 1, e.fx.CountAssociations())
			created, err := loc.DefaultLanguagePost(ctx, review)
			require.NoError(t, err)
			require.NotZero(t, created)
			assert.NotEqual(t, review, created)

			p, err := e.host.GetPost(ctx, created)
			require.NoError(t, err)
			assert.Equal(t, "Ein Klassiker", p.Content)

			var child int64
			require.NoError(t, e.db.GetContext(ctx, &child, `SELECT child_id FROM wp_toolset_associations`))
			assert.Equal(t, created, child)
		})
	}
}

func TestMigration_AdjustTranslationMode(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	loc := pghost.NewLocalization(e.host, pghost.LanguageConfig{Active: true, DefaultLanguage: "en"})
	c := e.controller(migration.WithLocalization(loc))

	e.fx.Option(migration.LegacyRelationshipsOption, map[string]any{"book": map[string]any{"review": map[string]any{}}})
	e.fx.Option(pghost.TranslationSettingsOption, map[string]any{"custom_posts_sync_option": map[string]any{"book": 1, "review": 0}})

	_, err := c.Run(ctx, 10, migration.Options{AdjustTranslationMode: true}, nil)
	require.NoError(t, err)

	mode, err := loc.PostTypeTranslationMode(ctx, "book")
	require.NoError(t, err)
	assert.Equal(t, "display as translated", mode.String())

	mode, err = loc.PostTypeTranslationMode(ctx, "review")
	require.NoError(t, err)
	assert.Equal(t, "not translatable", mode.String())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
