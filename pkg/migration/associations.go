package migration

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/association"
)

const (
	legacyMetaPrefix = "_wpcf_belongs_"
	legacyMetaSuffix = "_id"
	// legacyMetaPattern matches _wpcf_belongs_{parent_type}_id.
	legacyMetaPattern = `\_wpcf\_belongs\_%\_id`
)

// legacyRow is one _wpcf_belongs_{parent_type}_id postmeta entry.
type legacyRow struct {
	MetaID    int64  `db:"meta_id"`
	PostID    int64  `db:"post_id"`
	MetaKey   string `db:"meta_key"`
	MetaValue string `db:"meta_value"`
}

func (r legacyRow) parentType() string {
	return strings.TrimSuffix(strings.TrimPrefix(r.MetaKey, legacyMetaPrefix), legacyMetaSuffix)
}

// checkState compares the step with the persisted run state. A run without
// state (started before state was persisted, or by an older caller) adopts
// the request.
func (c *Controller) checkState(ctx context.Context, req StepRequest) (runState, error) {
	state, ok, err := c.loadState(ctx)
	if err != nil {
		return runState{}, err
	}
	if !ok {
		state = newRunState(req.ItemsPerStep)
		state.AssociationFirstStep = req.FirstPhaseStep
		if err := c.options.SetOption(ctx, StateOption, state); err != nil {
			return runState{}, fmt.Errorf("storing migration state: %w", err)
		}
		return state, nil
	}
	if state.ItemsPerStep != req.ItemsPerStep {
		return runState{}, fmt.Errorf("%w: run %s uses %d items per step, got %d",
			m2m.ErrMigrationStateMismatch, state.RunID, state.ItemsPerStep, req.ItemsPerStep)
	}
	if state.AssociationFirstStep != req.FirstPhaseStep {
		return runState{}, fmt.Errorf("%w: run %s started association migration at step %d, got %d",
			m2m.ErrMigrationStateMismatch, state.RunID, state.AssociationFirstStep, req.FirstPhaseStep)
	}
	return state, nil
}

func (c *Controller) migrateAssociations(ctx context.Context, req StepRequest) (StepResponse, error) {
	state, err := c.checkState(ctx, req)
	if err != nil {
		return StepResponse{}, err
	}

	var rs m2m.ResultSet
	offset := (req.Step - req.FirstPhaseStep) * req.ItemsPerStep

	rows, err := c.legacyPage(ctx, offset, req.ItemsPerStep)
	if err != nil {
		rs.AddFatal(m2m.Failed(err, "unable to read legacy associations at offset %d", offset))
		return c.fail(ctx, req, rs), nil
	}

	if len(rows) == 0 {
		rs.Add(m2m.Succeeded("no legacy associations left after offset %d", offset))
		resp := c.respond(req, rs, true, PhaseFinish, req.Step+1, req.Step+1)
		resp.RunID = state.RunID
		return resp, nil
	}

	defs := map[string]*m2m.Definition{}
	for _, row := range rows {
		r, outcome := c.migrateRow(ctx, req.Options, defs, row)
		c.metrics.LegacyRowsTotal.WithLabelValues(outcome).Inc()
		rs.Add(r)
	}

	c.logger.Info("migrated legacy association page",
		zap.Int("offset", offset),
		zap.Int("rows", len(rows)),
		zap.Int64("created", rs.Affected()),
		zap.Int("failed", rs.Failures()))

	// A full page does not tell whether more rows exist; the next step finds out.
	resp := c.respond(req, rs, true, PhaseAssociationMigration, req.Step+1, req.FirstPhaseStep)
	resp.RunID = state.RunID
	resp.Processed = len(rows)
	return resp, nil
}

func (c *Controller) legacyPage(ctx context.Context, offset, limit int) ([]legacyRow, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("meta_id", "post_id", "meta_key", "COALESCE(meta_value, '') AS meta_value")
	sb.From(c.catalog.Postmeta())
	sb.Where(sb.Like("meta_key", legacyMetaPattern))
	sb.OrderBy("meta_id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()

	var rows []legacyRow
	if err := sqlx.SelectContext(ctx, c.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying legacy postmeta: %w", err)
	}
	return rows, nil
}

// Outcomes of one legacy row, used as metric labels.
const (
	outcomeCreated = "created"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

func (c *Controller) migrateRow(ctx context.Context, opts Options, defs map[string]*m2m.Definition, row legacyRow) (m2m.Result, string) {
	parentType := row.parentType()
	parentID, err := strconv.ParseInt(strings.TrimSpace(row.MetaValue), 10, 64)
	if err != nil || parentID <= 0 {
		return m2m.Failed(nil, "legacy row %d of post %d has no valid parent id %q, skipped", row.MetaID, row.PostID, row.MetaValue), outcomeFailed
	}

	child, err := c.elements.GetPost(ctx, row.PostID)
	if err != nil {
		return m2m.Failed(err, "legacy row %d points from a missing post, skipped", row.MetaID), outcomeFailed
	}

	slug := parentType + "_" + child.Type
	def, ok := defs[slug]
	if !ok {
		d, err := c.repo.GetBySlug(ctx, slug)
		if err != nil {
			return m2m.Failed(err, "no relationship %s for legacy row %d", slug, row.MetaID), outcomeFailed
		}
		def = &d
		defs[slug] = def
	}

	childID, res, ok := c.defaultLanguageElement(ctx, opts, row.PostID)
	if !ok {
		return res, outcomeFailed
	}
	parentID, res, ok = c.defaultLanguageElement(ctx, opts, parentID)
	if !ok {
		return res, outcomeFailed
	}

	_, res = c.driver.Create(ctx, def, association.Request{ParentID: parentID, ChildID: childID})
	switch {
	case res.Success:
		return res, outcomeCreated
	case m2m.IsAlreadyAssociatedErr(res.Err):
		// Translations of one legacy link resolve to the same default
		// language pair.
		return m2m.Succeeded("%d and %d in %s already associated, skipped", parentID, childID, slug), outcomeSkipped
	}
	return res, outcomeFailed
}

// defaultLanguageElement resolves a post to its default language version.
// Posts outside a translation group, or in the default language, are
// returned as they are.
func (c *Controller) defaultLanguageElement(ctx context.Context, opts Options, postID int64) (int64, m2m.Result, bool) {
	if !c.localization.IsActive() {
		return postID, m2m.Result{}, true
	}
	lang, err := c.localization.PostLanguage(ctx, postID)
	if err != nil {
		return 0, m2m.Failed(err, "unable to read the language of post %d", postID), false
	}
	if lang == "" || lang == c.localization.DefaultLanguage() {
		return postID, m2m.Result{}, true
	}

	id, err := c.localization.DefaultLanguagePost(ctx, postID)
	if err != nil {
		return 0, m2m.Failed(err, "unable to find the default language version of post %d", postID), false
	}
	if id != 0 {
		return id, m2m.Result{}, true
	}

	if opts.PostsWithoutDefaultTranslation != CreateMissingTranslations {
		return 0, m2m.Failed(nil, "post %d (%s) has no default language version, skipped", postID, lang), false
	}
	id, err = c.localization.CreateDefaultLanguagePost(ctx, postID, opts.CopyContentWhenCreatingPosts)
	if err != nil {
		return 0, m2m.Failed(err, "unable to create the default language version of post %d", postID), false
	}
	c.logger.Info("created default language post", zap.Int64("post_id", postID), zap.Int64("default_language_post_id", id))
	return id, m2m.Result{}, true
}
