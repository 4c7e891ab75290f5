package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/m2m/internal/cli"
	"github.com/pthm/m2m/pkg/cleanup"
	"github.com/pthm/m2m/pkg/scheduler"
)

var (
	cleanupDB          string
	cleanupBatchSize   int
	cleanupSchedule    string
	cleanupMetricsAddr string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete dangling intermediary posts",
	Long: `Delete intermediary posts that no association owns any more.

Posts are deleted in batches of --batch-size until none are left. A pending
cleanup notice is dismissed afterwards.`,
	Example: `  # Delete every dangling intermediary post
  m2m cleanup --db postgres://localhost/mydb`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, cleanupDB)
		if err != nil {
			return err
		}
		defer e.Close()

		c := newCleaner(e, nil, nil)
		rs, err := c.CleanAll(ctx)
		if err != nil {
			return cli.GeneralError("cleanup failed", err)
		}

		if !quiet {
			fmt.Printf("Deleted %d dangling intermediary posts.\n", rs.Affected())
			if n := rs.Failures(); n > 0 {
				fmt.Printf("%d posts could not be deleted:\n%s\n", n, indent(rs.Err().Error()))
			}
		}
		if rs.Failures() > 0 {
			return cli.IncompleteError("some posts could not be deleted", nil)
		}
		return nil
	},
}

var cleanupWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Delete dangling intermediary posts on a schedule",
	Long: `Run the recurring cleanup job until interrupted.

Each run deletes one batch. When nothing is left the job unschedules itself
and the command exits.`,
	Example: `  # One batch every ten minutes, with metrics on :9500
  m2m cleanup watch --schedule "@every 10m" --metrics-addr :9500`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, cleanupDB)
		if err != nil {
			return err
		}
		defer e.Close()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if err := scheduler.RegisterMetrics(reg); err != nil {
			return cli.GeneralError("registering metrics", err)
		}
		if cleanupMetricsAddr != "" {
			serveMetrics(reg, cleanupMetricsAddr)
		}

		sched := scheduler.New(scheduler.WithLogger(logger))
		defer sched.Stop()

		c := newCleaner(e, sched, cleanup.NewMetrics(reg))
		n, err := c.DanglingCount(ctx)
		if err != nil {
			return cli.GeneralError("counting dangling intermediary posts", err)
		}
		if n == 0 {
			if !quiet {
				fmt.Println("No dangling intermediary posts.")
			}
			return nil
		}
		if err := c.ScheduleJob(); err != nil {
			return cli.GeneralError("scheduling cleanup", err)
		}
		logger.Info("cleanup job scheduled", zap.Any("jobs", sched.Jobs()))

		// The job unschedules itself once no dangling posts are left.
		if err := sched.WaitUnscheduled(ctx, cleanup.JobName); err != nil {
			logger.Info("cleanup watch interrupted")
			return nil
		}
		if !quiet {
			fmt.Println("No dangling intermediary posts left.")
		}
		return nil
	},
}

func init() {
	f := cleanupCmd.PersistentFlags()
	f.StringVar(&cleanupDB, "db", "", "database URL")
	f.IntVar(&cleanupBatchSize, "batch-size", 0, "posts deleted per batch (default from config)")

	wf := cleanupWatchCmd.Flags()
	wf.StringVar(&cleanupSchedule, "schedule", "", "cron spec of the job (default from config)")
	wf.StringVar(&cleanupMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cleanupCmd.AddCommand(cleanupWatchCmd)
}

func newCleaner(e *env, sched cleanup.Scheduler, metrics *cleanup.Metrics) *cleanup.Cleaner {
	opts := []cleanup.Option{
		cleanup.WithLogger(logger),
		cleanup.WithBatchSize(resolveInt(cleanupBatchSize, cfg.Cleanup.BatchSize)),
		cleanup.WithLocalization(e.localization),
		cleanup.WithNotices(e.host),
	}
	if sched != nil {
		spec := cleanupSchedule
		if spec == "" {
			spec = cfg.Cleanup.Schedule
		}
		opts = append(opts, cleanup.WithScheduler(sched, spec))
	}
	if metrics != nil {
		opts = append(opts, cleanup.WithMetrics(metrics))
	}
	return cleanup.New(e.db, e.catalog, e.host, opts...)
}

func serveMetrics(reg *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		err := http.ListenAndServe(addr, mux)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("started Prometheus metrics server", zap.String("addr", addr))
}
