package migration

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/host"
)

// legacyRelationships is the shape of the wpcf_post_relationship option:
// parent type => child type => display options. The display options are not
// migrated.
type legacyRelationships map[string]map[string]json.RawMessage

// LegacyDefinition returns the definition a legacy parent/child pair
// migrates into: one-to-many, distinct and flagged for legacy support.
func LegacyDefinition(parentType, childType string) *m2m.Definition {
	return &m2m.Definition{
		Slug:                parentType + "_" + childType,
		DisplayNamePlural:   parentType + " " + childType,
		DisplayNameSingular: parentType + " " + childType,
		Driver:              "toolset",
		Parent: m2m.RoleDefinition{
			Domain:      m2m.DomainPosts,
			Types:       []string{parentType},
			Cardinality: m2m.Cardinality{Min: 0, Max: m2m.Infinite},
		},
		Child: m2m.RoleDefinition{
			Domain:      m2m.DomainPosts,
			Types:       []string{childType},
			Cardinality: m2m.Cardinality{Min: 0, Max: 1},
		},
		Ownership:          m2m.OwnershipNone,
		IsDistinct:         true,
		Origin:             m2m.OriginMigration,
		RoleNames:          m2m.RoleNames{Parent: "parent", Child: "child", Intermediary: "association"},
		NeedsLegacySupport: true,
		IsActive:           true,
	}
}

func (c *Controller) migrateDefinitions(ctx context.Context, req StepRequest) StepResponse {
	var rs m2m.ResultSet
	next := req.Step + 1

	var legacy legacyRelationships
	found, err := c.options.GetOption(ctx, LegacyRelationshipsOption, &legacy)
	if err != nil {
		rs.AddFatal(m2m.Failed(err, "unable to read legacy relationships"))
		return c.fail(ctx, req, rs)
	}
	if !found || len(legacy) == 0 {
		rs.Add(m2m.Succeeded("no legacy relationships to migrate"))
	}

	parents := make([]string, 0, len(legacy))
	for parent := range legacy {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	migrated := 0
	for _, parent := range parents {
		children := make([]string, 0, len(legacy[parent]))
		for child := range legacy[parent] {
			children = append(children, child)
		}
		sort.Strings(children)

		for _, child := range children {
			if req.Options.AdjustTranslationMode {
				for _, postType := range []string{parent, child} {
					if r, changed := c.adjustTranslationMode(ctx, postType); changed {
						rs.Add(r)
					}
				}
			}

			d := LegacyDefinition(parent, child)
			if err := c.repo.Persist(ctx, d); err != nil {
				rs.Add(m2m.Failed(err, "unable to migrate relationship %s", d.Slug))
				continue
			}
			migrated++
			rs.Add(m2m.Succeeded("migrated relationship %s", d.Slug))
		}
	}

	state, ok, err := c.loadState(ctx)
	if err != nil {
		rs.AddFatal(m2m.Failed(err, "unable to read migration state"))
		return c.fail(ctx, req, rs)
	}
	if !ok {
		state = newRunState(req.ItemsPerStep)
	}
	state.AssociationFirstStep = next
	if err := c.options.SetOption(ctx, StateOption, state); err != nil {
		rs.AddFatal(m2m.Failed(err, "unable to store migration state"))
		return c.fail(ctx, req, rs)
	}

	c.logger.Info("migrated legacy relationship definitions", zap.Int("count", migrated))
	resp := c.respond(req, rs, true, PhaseAssociationMigration, next, next)
	resp.RunID = state.RunID
	return resp
}

// adjustTranslationMode switches a post type that only shows translated
// posts to display-as-translated, which associations need to fall back to
// the default language. It reports whether anything was done.
func (c *Controller) adjustTranslationMode(ctx context.Context, postType string) (m2m.Result, bool) {
	if !c.localization.IsActive() {
		return m2m.Result{}, false
	}
	mode, err := c.localization.PostTypeTranslationMode(ctx, postType)
	if err != nil {
		return m2m.Failed(err, "unable to read translation mode of %s", postType), true
	}
	if mode != host.Translatable {
		return m2m.Result{}, false
	}
	if err := c.localization.SetPostTypeTranslationMode(ctx, postType, host.DisplayAsTranslated); err != nil {
		return m2m.Failed(err, "unable to adjust translation mode of %s", postType), true
	}
	c.logger.Info("adjusted translation mode", zap.String("post_type", postType))
	return m2m.Succeeded("post type %s set to %s", postType, host.DisplayAsTranslated), true
}
