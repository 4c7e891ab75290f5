// Package migration converts legacy post relationships into relationship
// definitions and associations.
//
// The legacy format stores one parent per child post in a postmeta entry
// named _wpcf_belongs_{parent_type}_id, and the list of relationships in the
// wpcf_post_relationship option. The conversion runs as a sequence of
// bounded steps driven by the caller:
//
//	DBDELTA                0: enable maintenance mode, 1: drop tables, 2: create tables
//	DEFINITION_MIGRATION   one definition per legacy parent/child pair
//	ASSOCIATION_MIGRATION  one page of legacy rows per step
//	FINISH                 mark the engine as enabled
//
// The controller keeps no state in memory between steps. The caller sends
// the position back with every step, and the run identity together with the
// page size is persisted in the option store so that a step with a different
// page size is rejected instead of skipping or repeating rows.
package migration

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/association"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/definition"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/schema"
)

// Option names read and written by the migration.
const (
	LegacyRelationshipsOption = "wpcf_post_relationship"
	EnabledOption             = "toolset_is_m2m_enabled"
	StateOption               = "toolset_m2m_migration_state"
)

// DefaultItemsPerStep is the page size used when a step does not set one.
const DefaultItemsPerStep = 50

// Controller runs migration steps.
type Controller struct {
	db           m2m.Querier
	catalog      schema.Catalog
	ops          *dbops.Operations
	repo         *definition.Repository
	driver       *association.Driver
	elements     host.Elements
	options      host.Options
	localization host.Localization
	maintenance  host.Maintenance
	metrics      *Metrics
	logger       *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithLocalization enables the default language checks of the association
// phase and the translation mode adjustment.
func WithLocalization(l host.Localization) Option {
	return func(c *Controller) { c.localization = l }
}

// WithMaintenance sets the maintenance mode switch used when a step asks for
// maintenance mode.
func WithMaintenance(m host.Maintenance) Option {
	return func(c *Controller) { c.maintenance = m }
}

// WithMetrics records step outcomes on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New returns a controller migrating the legacy data found through elements
// and options into the relationship tables of catalog.
func New(db m2m.Querier, catalog schema.Catalog, elements host.Elements, options host.Options, opts ...Option) *Controller {
	c := &Controller{
		db:           db,
		catalog:      catalog,
		elements:     elements,
		options:      options,
		localization: host.NoLocalization{},
		metrics:      NewMetrics(nil),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ops = dbops.New(db, catalog, dbops.WithLogger(c.logger))
	c.repo = definition.NewRepository(c.ops, db, definition.WithLogger(c.logger))
	c.driver = association.NewDriver(db, c.ops, elements, association.WithLogger(c.logger))
	return c
}

// runState is persisted under StateOption for the duration of a run.
type runState struct {
	RunID                string `json:"run_id"`
	ItemsPerStep         int    `json:"items_per_step"`
	AssociationFirstStep int    `json:"association_first_step"`
}

// Step performs one step and returns where to continue. Operational failures
// are reported through the response status. The returned error is non-nil
// only when the request itself is invalid or disagrees with the persisted run
// state; the response then carries StatusError and Continue is false.
func (c *Controller) Step(ctx context.Context, req StepRequest) (StepResponse, error) {
	logger := c.logger.With(zap.Stringer("phase", req.Phase), zap.Int("step", req.Step))

	if req.ItemsPerStep == 0 {
		req.ItemsPerStep = DefaultItemsPerStep
	}
	if err := validateRequest(req); err != nil {
		return c.reject(ctx, req, err), err
	}

	var (
		resp StepResponse
		err  error
	)
	switch req.Phase {
	case PhaseDBDelta:
		resp = c.dbDelta(ctx, req)
	case PhaseDefinitionMigration:
		resp = c.migrateDefinitions(ctx, req)
	case PhaseAssociationMigration:
		resp, err = c.migrateAssociations(ctx, req)
	case PhaseFinish:
		resp = c.finish(ctx, req)
	}
	if err != nil {
		return c.reject(ctx, req, err), err
	}

	c.metrics.StepsTotal.WithLabelValues(req.Phase.String(), resp.Status.String()).Inc()
	logger.Info("migration step done",
		zap.Stringer("status", resp.Status),
		zap.Bool("continue", resp.Continue),
		zap.Stringer("next_phase", resp.Phase),
		zap.Int("next_step", resp.Step))
	return resp, nil
}

func validateRequest(req StepRequest) error {
	switch {
	case !req.Phase.Valid():
		return m2m.Invalidf("unknown phase %d", int(req.Phase))
	case req.Step < 0:
		return m2m.Invalidf("step must not be negative, got %d", req.Step)
	case req.FirstPhaseStep < 0 || req.FirstPhaseStep > req.Step:
		return m2m.Invalidf("first phase step %d must be between 0 and step %d", req.FirstPhaseStep, req.Step)
	case req.ItemsPerStep < 0:
		return m2m.Invalidf("items per step must not be negative (0 uses the default), got %d", req.ItemsPerStep)
	case req.Phase == PhaseDBDelta && req.Step > stepCreateTables:
		return m2m.Invalidf("dbdelta has steps 0 to %d, got %d", stepCreateTables, req.Step)
	case !req.Options.PostsWithoutDefaultTranslation.Valid():
		return m2m.Invalidf("unknown policy for posts without default translation %q", req.Options.PostsWithoutDefaultTranslation)
	}
	return nil
}

// reject answers a request that cannot run. Maintenance mode is released so
// the host does not stay locked after the caller gives up.
func (c *Controller) reject(ctx context.Context, req StepRequest, err error) StepResponse {
	var rs m2m.ResultSet
	rs.AddFatal(m2m.Failed(err, "migration step %d of %s rejected", req.Step, req.Phase))
	c.releaseMaintenance(ctx, req, &rs)

	c.metrics.StepsTotal.WithLabelValues(req.Phase.String(), m2m.StatusError.String()).Inc()
	c.logger.Warn("migration step rejected", zap.Stringer("phase", req.Phase), zap.Int("step", req.Step), zap.Error(err))
	return c.respond(req, rs, false, req.Phase, req.Step, req.FirstPhaseStep)
}

func (c *Controller) respond(req StepRequest, rs m2m.ResultSet, cont bool, phase Phase, step, first int) StepResponse {
	return StepResponse{
		Continue:       cont && !rs.IsFatal(),
		Phase:          phase,
		Step:           step,
		FirstPhaseStep: first,
		ItemsPerStep:   req.ItemsPerStep,
		Status:         rs.Status(),
		Message:        rs.Message(),
	}
}

// fail ends the run after a fatal result.
func (c *Controller) fail(ctx context.Context, req StepRequest, rs m2m.ResultSet) StepResponse {
	c.releaseMaintenance(ctx, req, &rs)
	c.logger.Error("migration step failed", zap.Stringer("phase", req.Phase), zap.Int("step", req.Step), zap.Error(rs.Err()))
	return c.respond(req, rs, false, req.Phase, req.Step, req.FirstPhaseStep)
}

func (c *Controller) releaseMaintenance(ctx context.Context, req StepRequest, rs *m2m.ResultSet) {
	if !req.Options.UseMaintenanceMode || c.maintenance == nil {
		return
	}
	if err := c.maintenance.Disable(ctx); err != nil {
		rs.Add(m2m.Failed(err, "unable to disable maintenance mode"))
		return
	}
	rs.Add(m2m.Succeeded("maintenance mode disabled"))
}

func (c *Controller) dbDelta(ctx context.Context, req StepRequest) StepResponse {
	var rs m2m.ResultSet
	next := func() StepResponse {
		if req.Step == stepCreateTables {
			return c.respond(req, rs, true, PhaseDefinitionMigration, req.Step+1, req.Step+1)
		}
		return c.respond(req, rs, true, PhaseDBDelta, req.Step+1, req.FirstPhaseStep)
	}

	switch req.Step {
	case stepMaintenance:
		if req.Options.UseMaintenanceMode {
			if c.maintenance == nil {
				rs.AddFatal(m2m.Failed(nil, "maintenance mode requested but not available"))
				c.logger.Error("maintenance mode requested but not available")
				return c.respond(req, rs, false, req.Phase, req.Step, req.FirstPhaseStep)
			}
			if err := c.maintenance.Enable(ctx); err != nil {
				// Nothing to release: enabling is what failed.
				rs.AddFatal(m2m.Failed(err, "unable to enable maintenance mode"))
				c.logger.Error("failed to enable maintenance mode", zap.Error(err))
				return c.respond(req, rs, false, req.Phase, req.Step, req.FirstPhaseStep)
			}
			rs.Add(m2m.Succeeded("maintenance mode enabled"))
		}
		state := newRunState(req.ItemsPerStep)
		if err := c.options.SetOption(ctx, StateOption, state); err != nil {
			rs.AddFatal(m2m.Failed(err, "unable to store migration state"))
			return c.fail(ctx, req, rs)
		}
		rs.Add(m2m.Succeeded("started migration run %s", state.RunID))
		resp := next()
		resp.RunID = state.RunID
		return resp

	case stepDropTables:
		if req.Options.ResetTables {
			dropped := c.ops.DropTables(ctx)
			for _, r := range dropped.Results() {
				rs.AddFatal(r)
			}
			if rs.IsFatal() {
				return c.fail(ctx, req, rs)
			}
		}

	case stepCreateTables:
		created := c.ops.CreateTables(ctx)
		for _, r := range created.Results() {
			rs.AddFatal(r)
		}
		if rs.IsFatal() {
			return c.fail(ctx, req, rs)
		}
	}
	resp := next()
	resp.RunID = c.runID(ctx)
	return resp
}

func (c *Controller) finish(ctx context.Context, req StepRequest) StepResponse {
	var rs m2m.ResultSet
	runID := c.runID(ctx)

	if err := c.options.SetOption(ctx, EnabledOption, true); err != nil {
		rs.AddFatal(m2m.Failed(err, "unable to mark the relationship engine as enabled"))
		return c.fail(ctx, req, rs)
	}
	rs.Add(m2m.Succeeded("relationship engine enabled"))

	if err := c.options.DeleteOption(ctx, StateOption); err != nil {
		rs.Add(m2m.Failed(err, "unable to clear migration state"))
	}
	c.releaseMaintenance(ctx, req, &rs)

	resp := c.respond(req, rs, false, PhaseFinish, req.Step, req.FirstPhaseStep)
	resp.RunID = runID
	return resp
}

func newRunState(itemsPerStep int) runState {
	return runState{RunID: uuid.NewString(), ItemsPerStep: itemsPerStep}
}

func (c *Controller) loadState(ctx context.Context) (runState, bool, error) {
	var state runState
	ok, err := c.options.GetOption(ctx, StateOption, &state)
	if err != nil {
		return runState{}, false, fmt.Errorf("loading migration state: %w", err)
	}
	return state, ok, nil
}

func (c *Controller) runID(ctx context.Context) string {
	state, ok, err := c.loadState(ctx)
	if err != nil || !ok {
		return ""
	}
	return state.RunID
}

// IsEnabled reports whether a migration has finished.
func (c *Controller) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	if _, err := c.options.GetOption(ctx, EnabledOption, &enabled); err != nil {
		return false, err
	}
	return enabled, nil
}

// Progress is the persisted state of an unfinished run.
type Progress struct {
	RunID                string
	ItemsPerStep         int
	AssociationFirstStep int
}

// InProgress returns the state of an unfinished run, or false when no run
// is in progress.
func (c *Controller) InProgress(ctx context.Context) (Progress, bool, error) {
	state, ok, err := c.loadState(ctx)
	if err != nil || !ok {
		return Progress{}, false, err
	}
	return Progress(state), true, nil
}

// Run drives every step of a migration from the beginning. progress, when
// not nil, receives each response. Run stops at the first fatal step and
// returns its response together with an error.
func (c *Controller) Run(ctx context.Context, itemsPerStep int, opts Options, progress func(StepResponse)) (StepResponse, error) {
	req := StepRequest{Phase: PhaseDBDelta, ItemsPerStep: itemsPerStep, Options: opts}
	warnings := 0
	for {
		if err := ctx.Err(); err != nil {
			return StepResponse{}, err
		}
		resp, err := c.Step(ctx, req)
		if progress != nil {
			progress(resp)
		}
		if err != nil {
			return resp, err
		}
		switch resp.Status {
		case m2m.StatusError:
			return resp, fmt.Errorf("migration failed in %s step %d: %s", req.Phase, req.Step, resp.Message)
		case m2m.StatusWarning:
			warnings++
		}
		if !resp.Continue {
			if warnings > 0 {
				resp.Status = m2m.StatusWarning
			}
			return resp, nil
		}
		req = resp.Next(opts)
	}
}
