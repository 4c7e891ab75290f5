// Package cleanup removes dangling intermediary posts: posts of an
// intermediary type that no association owns any more.
//
// Work is done in bounded batches. Deleting a post that takes part in
// associations removes the association rows at once and deletes a first batch
// of their intermediary posts. If more remain, a recurring job is scheduled
// that deletes one batch per run and unschedules itself when nothing is left.
//
// Posts deleted by the cleanup itself carry m2m.Purposeful() so that the
// post-deletion handler does not start another cleanup for them.
package cleanup

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/pthm/m2m"
	"github.com/pthm/m2m/pkg/dbops"
	"github.com/pthm/m2m/pkg/host"
	"github.com/pthm/m2m/pkg/query"
	"github.com/pthm/m2m/pkg/scheduler"
	"github.com/pthm/m2m/pkg/schema"
)

const (
	// JobName is the name of the recurring cleanup job.
	JobName = "toolset_m2m_dangling_intermediary_cleanup"
	// NoticeID identifies the operator notice shown while dangling posts remain.
	NoticeID = "toolset_m2m_dangling_intermediary_posts"

	DefaultBatchSize = 25
	DefaultSchedule  = "@every 1h"
)

// Scheduler registers the recurring cleanup job.
type Scheduler interface {
	Schedule(name, spec string, job scheduler.Job) error
	IsScheduled(name string) bool
	Unschedule(name string)
}

// Cleaner deletes dangling intermediary posts.
type Cleaner struct {
	db           m2m.Querier
	catalog      schema.Catalog
	ops          *dbops.Operations
	engine       *query.Engine
	elements     host.Elements
	localization host.Localization
	scheduler    Scheduler
	notices      host.Notices
	batchSize    int
	schedule     string
	metrics      *Metrics
	logger       *zap.Logger
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cleaner) { c.logger = l }
}

// WithBatchSize sets how many posts one batch deletes. Values below 1 keep
// DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(c *Cleaner) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithScheduler lets the cleaner schedule the recurring job on s using spec.
// An empty spec keeps DefaultSchedule.
func WithScheduler(s Scheduler, spec string) Option {
	return func(c *Cleaner) {
		c.scheduler = s
		if spec != "" {
			c.schedule = spec
		}
	}
}

// WithNotices shows an operator notice while dangling posts remain.
func WithNotices(n host.Notices) Option {
	return func(c *Cleaner) { c.notices = n }
}

// WithLocalization makes translations of owned intermediary posts count as
// owned.
func WithLocalization(l host.Localization) Option {
	return func(c *Cleaner) { c.localization = l }
}

// WithMetrics records cleanup progress on m.
func WithMetrics(m *Metrics) Option {
	return func(c *Cleaner) { c.metrics = m }
}

// New returns a cleaner for the tables of catalog. elements deletes posts.
func New(db m2m.Querier, catalog schema.Catalog, elements host.Elements, opts ...Option) *Cleaner {
	c := &Cleaner{
		db:           db,
		catalog:      catalog,
		elements:     elements,
		localization: host.NoLocalization{},
		batchSize:    DefaultBatchSize,
		schedule:     DefaultSchedule,
		metrics:      NewMetrics(nil),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ops = dbops.New(db, catalog, dbops.WithLogger(c.logger))
	c.engine = query.NewEngine(db, catalog, query.WithLogger(c.logger))
	return c
}

// BatchSize returns the number of posts one batch deletes.
func (c *Cleaner) BatchSize() int { return c.batchSize }

// Batch is the outcome of one cleanup batch.
type Batch struct {
	Results m2m.ResultSet
	// Found is the number of dangling posts before the batch ran.
	Found int64
	// Deleted is the number of posts the batch deleted.
	Deleted int64
	batchSize int
}

// HasRemainingPosts reports whether dangling posts were left for another
// batch.
func (b Batch) HasRemainingPosts() bool {
	return b.Found > int64(b.batchSize)
}

// Remaining returns how many dangling posts the batch left behind, counting
// failed deletions.
func (b Batch) Remaining() int64 {
	return b.Found - b.Deleted
}

// DanglingCount returns the number of dangling intermediary posts.
func (c *Cleaner) DanglingCount(ctx context.Context) (int64, error) {
	var n int64
	stmt := danglingStmt(c.catalog, c.localization, 0).CountStmt("dangling")
	if err := sqlx.GetContext(ctx, c.db, &n, stmt.SQL()); err != nil {
		return 0, fmt.Errorf("counting dangling intermediary posts: %w", err)
	}
	return n, nil
}

// RunBatch deletes up to BatchSize dangling intermediary posts. A failed
// deletion is reported in the results and does not stop the batch.
func (c *Cleaner) RunBatch(ctx context.Context) (Batch, error) {
	b := Batch{batchSize: c.batchSize}

	var ids []int64
	stmt := danglingStmt(c.catalog, c.localization, c.batchSize)
	if err := sqlx.SelectContext(ctx, c.db, &ids, stmt.SQL()); err != nil {
		return b, fmt.Errorf("querying dangling intermediary posts: %w", err)
	}
	if err := sqlx.GetContext(ctx, c.db, &b.Found, stmt.CountStmt("dangling").SQL()); err != nil {
		return b, fmt.Errorf("counting dangling intermediary posts: %w", err)
	}

	for _, id := range ids {
		rs := c.DeletePost(ctx, m2m.Purposeful(), id)
		b.Deleted += rs.Affected()
		b.Results.Merge(rs)
	}

	c.metrics.DeletedPostsTotal.Add(float64(b.Deleted))
	c.metrics.RemainingPosts.Set(float64(b.Remaining()))
	c.metrics.BatchesTotal.WithLabelValues(b.Results.Status().String()).Inc()
	c.logger.Info("dangling intermediary cleanup batch done",
		zap.Int64("found", b.Found),
		zap.Int64("deleted", b.Deleted),
		zap.Bool("remaining", b.HasRemainingPosts()))
	return b, nil
}

// CleanAll runs batches until no dangling posts remain or a batch makes no
// progress.
func (c *Cleaner) CleanAll(ctx context.Context) (m2m.ResultSet, error) {
	var rs m2m.ResultSet
	for {
		if err := ctx.Err(); err != nil {
			return rs, err
		}
		b, err := c.RunBatch(ctx)
		if err != nil {
			return rs, err
		}
		rs.Merge(b.Results)
		if !b.HasRemainingPosts() || b.Deleted == 0 {
			if !b.HasRemainingPosts() {
				c.finished(ctx)
			}
			return rs, nil
		}
	}
}

// Job returns the recurring job: one batch per run, unscheduling itself once
// no dangling posts remain.
func (c *Cleaner) Job() scheduler.Job {
	return scheduler.JobFunc(func(ctx context.Context) error {
		b, err := c.RunBatch(ctx)
		if err != nil {
			return err
		}
		if !b.HasRemainingPosts() {
			c.finished(ctx)
			return nil
		}
		c.notify(ctx, b.Remaining())
		return b.Results.Err()
	})
}

// ScheduleJob registers the recurring job unless it is already scheduled.
func (c *Cleaner) ScheduleJob() error {
	if c.scheduler == nil {
		return nil
	}
	if c.scheduler.IsScheduled(JobName) {
		return nil
	}
	if err := c.scheduler.Schedule(JobName, c.schedule, c.Job()); err != nil {
		return fmt.Errorf("scheduling dangling intermediary cleanup: %w", err)
	}
	return nil
}

// finished unschedules the job and dismisses the notice.
func (c *Cleaner) finished(ctx context.Context) {
	if c.scheduler != nil && c.scheduler.IsScheduled(JobName) {
		c.scheduler.Unschedule(JobName)
		c.logger.Info("no dangling intermediary posts left, cleanup job unscheduled")
	}
	if c.notices != nil {
		if err := c.notices.Dismiss(ctx, NoticeID); err != nil {
			c.logger.Warn("failed to dismiss cleanup notice", zap.Error(err))
		}
	}
}

func (c *Cleaner) notify(ctx context.Context, remaining int64) {
	if c.notices == nil {
		return
	}
	msg := fmt.Sprintf("%d intermediary posts are no longer part of any association. "+
		"They are deleted in the background; run `m2m cleanup` to delete them now.", remaining)
	if err := c.notices.Show(ctx, NoticeID, msg); err != nil {
		c.logger.Warn("failed to show cleanup notice", zap.Error(err))
	}
}

// DeletePost deletes a post and, unless dctx suppresses the cascade, the
// associations it takes part in.
func (c *Cleaner) DeletePost(ctx context.Context, dctx m2m.DeletionContext, postID int64) m2m.ResultSet {
	var rs m2m.ResultSet
	if !dctx.SuppressCascade {
		rs.Merge(c.OnPostDeleted(ctx, dctx, postID))
	}
	if err := c.elements.DeletePost(ctx, postID); err != nil {
		rs.Add(m2m.Failed(err, "unable to delete post %d", postID))
		return rs
	}
	rs.Add(m2m.SucceededCount(1, "deleted post %d", postID))
	return rs
}

// OnPostDeleted removes the associations of a post that is being deleted.
//
// Intermediary posts of those associations are deleted first, at most
// BatchSize of them. The association rows are then deleted in one statement,
// which leaves any intermediary posts beyond the batch dangling: the
// recurring job is scheduled and a notice is shown for them.
//
// Nothing happens when dctx suppresses the cascade.
func (c *Cleaner) OnPostDeleted(ctx context.Context, dctx m2m.DeletionContext, postID int64) m2m.ResultSet {
	var rs m2m.ResultSet
	if dctx.SuppressCascade {
		return rs
	}

	assocs, err := c.postAssociations(ctx, postID)
	if err != nil {
		rs.Add(m2m.Failed(err, "unable to find the associations of post %d", postID))
		return rs
	}
	if len(assocs) == 0 {
		return rs
	}

	var pending int
	for _, a := range assocs {
		if !a.HasIntermediary() || a.IntermediaryID == postID {
			continue
		}
		if pending >= c.batchSize {
			pending++
			continue
		}
		pending++
		if err := c.elements.DeletePost(ctx, a.IntermediaryID); err != nil {
			rs.Add(m2m.Failed(err, "unable to delete intermediary post %d of association %d", a.IntermediaryID, a.ID))
			continue
		}
		rs.Add(m2m.SucceededCount(1, "deleted intermediary post %d of association %d", a.IntermediaryID, a.ID))
	}

	rs.Add(c.ops.DeleteAssociationsByElement(ctx, m2m.DomainPosts, postID))

	if pending > c.batchSize {
		left := int64(pending - c.batchSize)
		c.logger.Info("intermediary posts left for the cleanup job",
			zap.Int64("post_id", postID),
			zap.Int64("remaining", left))
		if err := c.ScheduleJob(); err != nil {
			rs.Add(m2m.Failed(err, "unable to schedule the dangling intermediary cleanup"))
		}
		c.notify(ctx, left)
	}
	return rs
}

// postAssociations returns the associations a post takes part in as parent,
// child or intermediary, whatever the state of their relationship.
func (c *Cleaner) postAssociations(ctx context.Context, postID int64) ([]m2m.Association, error) {
	parent, err := query.ElementID(m2m.RoleParent, postID, query.InDomain(m2m.DomainPosts))
	if err != nil {
		return nil, err
	}
	child, err := query.ElementID(m2m.RoleChild, postID, query.InDomain(m2m.DomainPosts))
	if err != nil {
		return nil, err
	}
	intermediary, err := query.IntermediaryID(postID)
	if err != nil {
		return nil, err
	}

	q, err := c.engine.Associations().
		Add(query.Or(parent, child, intermediary)).
		DoNotAddDefaultConditions().
		Finalize(ctx)
	if err != nil {
		return nil, err
	}
	return q.Results(ctx)
}
